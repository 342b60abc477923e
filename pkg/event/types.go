package event

import (
	"encoding/json"
	"time"
)

// Type はライブチャネルに配信するイベントの種類を表す。
type Type string

const (
	// TypeNewNotification は新しい通知が作成されたことを表す。
	TypeNewNotification Type = "new_notification"
)

// Envelope はライブチャネルに配信するイベントの外枠。
// 配信は best-effort であり、Envelope 自体は永続化されない。
type Envelope struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// Channel は配信先のチャネル名。
	Channel string `json:"channel"`
	// Type はイベントの種類。
	Type Type `json:"type"`
	// Payload はイベント固有のデータ（JSON形式）。
	Payload json.RawMessage `json:"payload"`
	// PublishedAt はイベントが生成された日時。
	PublishedAt time.Time `json:"published_at"`
}

// NewNotificationPayload はnew_notificationイベントのデータ。
type NewNotificationPayload struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// Name は通知のタイトル。
	Name string `json:"name"`
	// Message は通知本文。
	Message string `json:"message"`
	// Type は通知の種類（info, success, warning, danger）。
	Type string `json:"type"`
	// ActionType は通知に紐づくアクションの種類。
	ActionType string `json:"action_type"`
	// ResModel はRecordアクションの対象モデル名。
	ResModel string `json:"res_model,omitempty"`
	// ResID はRecordアクションの対象レコードID。
	ResID int64 `json:"res_id,omitempty"`
	// CreateDate は通知の作成日時（UTC, "2006-01-02 15:04:05"）。
	CreateDate string `json:"create_date"`
	// SenderName は送信者の表示名。
	SenderName string `json:"sender_name"`
}
