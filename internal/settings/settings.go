// Package settings はユーザーごとの通知設定を管理する。
//
// 設定は初回参照時に既定値で作成される。同時に初回参照が起きても
// user_id の一意制約により1ユーザー1行に収束する。
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nao1215/bell/internal/database"
)

// DefaultLimit は一覧表示件数の既定値。
const DefaultLimit = 10

// ErrInvalidLimit は表示件数が正の整数でないことを表す。
var ErrInvalidLimit = errors.New("表示件数は正の整数である必要があります")

// Settings はユーザーの通知設定。
type Settings struct {
	// ID は設定行の識別子。
	ID int64 `json:"id"`
	// UserID は設定の持ち主。
	UserID string `json:"user_id"`
	// ListLimit は一覧で返す通知の件数。
	ListLimit int `json:"notifications_limit"`
	// CreatedAt は設定が作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

type settingsRow struct {
	ID        int64  `db:"id"`
	UserID    string `db:"user_id"`
	ListLimit int    `db:"notifications_limit"`
	CreatedAt string `db:"created_at"`
}

func (r settingsRow) toSettings() (Settings, error) {
	createdAt, err := database.ParseTime(r.CreatedAt)
	if err != nil {
		return Settings{}, err
	}
	return Settings{ID: r.ID, UserID: r.UserID, ListLimit: r.ListLimit, CreatedAt: createdAt}, nil
}

// Store はnotification_settingsテーブルに対する設定ストア。
type Store struct {
	db           *sqlx.DB
	defaultLimit int
	now          func() time.Time
}

// Option はStoreの生成オプション。
type Option func(*Store)

// WithDefaultLimit は新規作成時の表示件数を変更する。
func WithDefaultLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.defaultLimit = limit
		}
	}
}

// NewStore は新しい設定ストアを生成する。
func NewStore(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, defaultLimit: DefaultLimit, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get はユーザーの設定を返す。存在しない場合は既定値で作成してから返す。
func (s *Store) Get(ctx context.Context, userID string) (Settings, error) {
	if userID == "" {
		return Settings{}, errors.New("ユーザーIDが空です")
	}

	// 競合した場合は先に作成された行が残り、この挿入は無視される。
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_settings (user_id, notifications_limit, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, s.defaultLimit, database.FormatTime(s.now()),
	)
	if err != nil {
		return Settings{}, fmt.Errorf("ユーザー %s の設定作成に失敗: %w", userID, err)
	}

	return s.find(ctx, userID)
}

// SetLimit はユーザーの表示件数を更新し、更新後の設定を返す。
func (s *Store) SetLimit(ctx context.Context, userID string, limit int) (Settings, error) {
	if limit <= 0 {
		return Settings{}, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return Settings{}, err
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE notification_settings SET notifications_limit = ? WHERE user_id = ?", limit, userID,
	); err != nil {
		return Settings{}, fmt.Errorf("ユーザー %s の設定更新に失敗: %w", userID, err)
	}
	return s.find(ctx, userID)
}

func (s *Store) find(ctx context.Context, userID string) (Settings, error) {
	var row settingsRow
	if err := s.db.GetContext(ctx, &row,
		"SELECT id, user_id, notifications_limit, created_at FROM notification_settings WHERE user_id = ?", userID,
	); err != nil {
		return Settings{}, fmt.Errorf("ユーザー %s の設定取得に失敗: %w", userID, err)
	}
	return row.toSettings()
}
