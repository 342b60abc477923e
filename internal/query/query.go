// Package query はクライアント向けに通知一覧・未読件数・表示件数設定をまとめて返す。
//
// 作成日時はユーザーのタイムゾーンに変換して "2006-01-02 15:04:05" 形式で返す。
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/bell/internal/directory"
	"github.com/nao1215/bell/internal/notification"
	"github.com/nao1215/bell/internal/settings"
)

// DateLayout は一覧の作成日時の表示形式。
const DateLayout = "2006-01-02 15:04:05"

type notificationReader interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]*notification.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type settingsReader interface {
	Get(ctx context.Context, userID string) (settings.Settings, error)
}

type userDirectory interface {
	Get(ctx context.Context, id string) (directory.User, error)
}

// Item は一覧の1件。
type Item struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Message    string `json:"message"`
	CreateDate string `json:"create_date"`
	State      string `json:"state"`
	Type       string `json:"type"`
	SenderName string `json:"sender_name"`
	SenderID   string `json:"sender_id"`
}

// SettingsView はレスポンスに含める表示件数設定。
type SettingsView struct {
	NotificationsLimit int `json:"notifications_limit"`
}

// Result は一覧取得の結果。
type Result struct {
	Notifications []Item       `json:"notifications"`
	UnreadCount   int          `json:"unread_count"`
	Settings      SettingsView `json:"settings"`
}

// Facade は一覧取得の読み取り専用の窓口。
type Facade struct {
	notifications notificationReader
	settings      settingsReader
	users         userDirectory
}

// NewFacade は新しいFacadeを生成する。
func NewFacade(notifications notificationReader, settings settingsReader, users userDirectory) *Facade {
	return &Facade{notifications: notifications, settings: settings, users: users}
}

// Notifications はユーザーの最新の通知と未読件数を返す。
// limit が0以下の場合はユーザー設定の表示件数を使う。設定は未作成なら作成される。
func (f *Facade) Notifications(ctx context.Context, userID string, limit int) (Result, error) {
	st, err := f.settings.Get(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	if limit <= 0 {
		limit = st.ListLimit
	}

	list, err := f.notifications.ListRecent(ctx, userID, limit)
	if err != nil {
		return Result{}, err
	}
	count, err := f.notifications.UnreadCount(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	loc, err := f.location(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	senders := map[string]string{}
	items := make([]Item, 0, len(list))
	for _, n := range list {
		name, ok := senders[n.Sender]
		if !ok {
			if name, err = f.senderName(ctx, n.Sender); err != nil {
				return Result{}, err
			}
			senders[n.Sender] = name
		}
		items = append(items, Item{
			ID:         n.ID,
			Name:       n.Title,
			Message:    n.Body,
			CreateDate: Localize(n.CreatedAt, loc),
			State:      string(n.ReadState),
			Type:       string(n.Type),
			SenderName: name,
			SenderID:   n.Sender,
		})
	}

	return Result{
		Notifications: items,
		UnreadCount:   count,
		Settings:      SettingsView{NotificationsLimit: st.ListLimit},
	}, nil
}

// Localize は時刻をタイムゾーンに変換して表示形式の文字列にする。locがnilの場合はUTC。
func Localize(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// location はユーザーのタイムゾーンを返す。ディレクトリに存在しないユーザーはUTC。
func (f *Facade) location(ctx context.Context, userID string) (*time.Location, error) {
	u, err := f.users.Get(ctx, userID)
	if errors.Is(err, directory.ErrUserNotFound) {
		return time.UTC, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー %s のタイムゾーン取得に失敗: %w", userID, err)
	}
	return u.Location(), nil
}

func (f *Facade) senderName(ctx context.Context, id string) (string, error) {
	u, err := f.users.Get(ctx, id)
	if errors.Is(err, directory.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.Name, nil
}
