package notification

import (
	"errors"
	"time"
)

var (
	// ErrNotFound は通知が存在しないことを表す。
	ErrNotFound = errors.New("通知が見つかりません")
	// ErrUnknownUser は送信者または受信者がディレクトリに存在しないことを表す。
	ErrUnknownUser = errors.New("不明なユーザーです")
	// ErrInvalidAction はアクションの指定が不正であることを表す。
	ErrInvalidAction = errors.New("アクションの指定が不正です")
)

// ReadState は通知の既読状態。
type ReadState string

const (
	// Unread は未読。作成直後の状態。
	Unread ReadState = "unread"
	// Read は既読。
	Read ReadState = "read"
)

// Type は通知の種類。表示上の強調に使われる。
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeDanger  Type = "danger"
)

// Notification はユーザーに届けられた1件の通知。
type Notification struct {
	// ID は通知の一意識別子（UUID）。作成後は不変。
	ID string `json:"id"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知本文。
	Body string `json:"body"`
	// Recipient は通知先のユーザーID。作成後は不変。
	Recipient string `json:"recipient"`
	// Sender は送信者のユーザーID。作成後は不変。
	Sender string `json:"sender"`
	// Type は通知の種類。
	Type Type `json:"type"`
	// ReadState は既読状態。
	ReadState ReadState `json:"state"`
	// ReadAt は既読になった日時。ReadState が Read のときだけ設定される。
	ReadAt *time.Time `json:"read_at,omitempty"`
	// Active は false のとき非表示（論理削除）であることを表す。
	Active bool `json:"active"`
	// Action はアクティブ化したときの動作。
	Action Action `json:"-"`
	// CreatedAt は作成日時（UTC）。
	CreatedAt time.Time `json:"created_at"`
}

// ActionKind はアクションの種類を表す文字列。保存形式と配信ペイロードで使う。
type ActionKind string

const (
	ActionKindMessage ActionKind = "message"
	ActionKindRecord  ActionKind = "record"
	ActionKindURL     ActionKind = "url"
	ActionKindWindow  ActionKind = "window"
)

// Action は通知に紐づく動作。MessageAction, RecordAction, URLAction, WindowAction のいずれか。
type Action interface {
	Kind() ActionKind
	sealed()
}

// MessageAction は既読化以外の動作を持たない通知。
type MessageAction struct{}

// RecordAction は特定のレコードのフォームを開く。
type RecordAction struct {
	Model    string
	RecordID int64
}

// URLAction はURLを新しいコンテキストで開く。
type URLAction struct {
	URL string
}

// WindowAction はアクションレジストリに登録されたウィンドウアクションを呼び出す。
// ActionID と XMLID の両方が指定された場合は ActionID を優先する。
type WindowAction struct {
	ActionID int64
	XMLID    string
	// Context はアクションのコンテキストにマージするJSONオブジェクト。
	Context string
}

func (MessageAction) Kind() ActionKind { return ActionKindMessage }
func (RecordAction) Kind() ActionKind  { return ActionKindRecord }
func (URLAction) Kind() ActionKind     { return ActionKindURL }
func (WindowAction) Kind() ActionKind  { return ActionKindWindow }

func (MessageAction) sealed() {}
func (RecordAction) sealed()  {}
func (URLAction) sealed()     {}
func (WindowAction) sealed()  {}

// actionOrDefault は未指定のアクションを MessageAction に置き換える。
func actionOrDefault(a Action) Action {
	if a == nil {
		return MessageAction{}
	}
	return a
}
