// Package databasetest はテスト用のデータベースを提供する。
package databasetest

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/nao1215/bell/internal/database"
)

// New は一時ディレクトリにマイグレーション適用済みのデータベースを作成する。
// テスト終了時に自動でクローズする。
func New(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.Open(t.Context(), filepath.Join(t.TempDir(), "bell.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("テスト用データベースの作成に失敗: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("テスト用データベースのクローズに失敗: %v", err)
		}
	})
	return db
}
