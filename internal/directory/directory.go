// Package directory はユーザーディレクトリを提供する。
//
// 通知の送信者・受信者の存在確認、送信者の表示名、受信者のタイムゾーンの
// 解決に使う。認証やユーザー管理そのものは扱わない。
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/jmoiron/sqlx"
)

// ErrUserNotFound はユーザーが存在しないことを表す。
var ErrUserNotFound = errors.New("ユーザーが見つかりません")

// ErrInvalidUser は登録しようとしたユーザーの内容が不正であることを表す。
var ErrInvalidUser = errors.New("ユーザーの内容が不正です")

// User はディレクトリに登録されたユーザー。
type User struct {
	// ID はユーザーの一意識別子。
	ID string `db:"id" json:"id"`
	// Name は表示名。
	Name string `db:"name" json:"name"`
	// TZ はIANAタイムゾーン名。空の場合はUTC。
	TZ string `db:"tz" json:"tz"`
}

// Location はユーザーのタイムゾーンを返す。
// 未設定または解決できないタイムゾーンはUTCとして扱う。
func (u User) Location() *time.Location {
	if u.TZ == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Store はusersテーブルに対するユーザーディレクトリ。
type Store struct {
	db *sqlx.DB
}

// NewStore は新しいユーザーディレクトリを生成する。
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Get はIDでユーザーを取得する。存在しない場合はErrUserNotFoundを返す。
func (s *Store) Get(ctx context.Context, id string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, "SELECT id, name, tz FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return User{}, fmt.Errorf("ユーザー %s の取得に失敗: %w", id, err)
	}
	return u, nil
}

// Upsert はユーザーを登録、または表示名とタイムゾーンを更新する。
func (s *Store) Upsert(ctx context.Context, u User) error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("%w: ユーザーIDが空です", ErrInvalidUser)
	}
	if strings.TrimSpace(u.Name) == "" {
		return fmt.Errorf("%w: 表示名が空です", ErrInvalidUser)
	}
	if u.TZ != "" {
		if _, err := time.LoadLocation(u.TZ); err != nil {
			return fmt.Errorf("%w: 不明なタイムゾーンです: %q: %v", ErrInvalidUser, u.TZ, err)
		}
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, tz) VALUES (:id, :name, :tz)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, tz = excluded.tz`, u)
	if err != nil {
		return fmt.Errorf("ユーザー %s の登録に失敗: %w", u.ID, err)
	}
	return nil
}
