// Package migration はSQLiteのスキーマを番号付きSQLファイルで管理する。
//
// ファイル名は 000001_description.up.sql の形式。適用履歴は schema_migrations に
// バージョンと名前を記録する。
package migration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// ErrDuplicateVersion は同じバージョン番号のファイルが複数あることを表す。
var ErrDuplicateVersion = errors.New("マイグレーションのバージョンが重複しています")

var fileNamePattern = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// Migration は1つのスキーマ変更。
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Record は適用済みマイグレーションの履歴。
type Record struct {
	Version   int    `db:"version"`
	Name      string `db:"name"`
	AppliedAt string `db:"applied_at"`
}

// Load はディレクトリから up.sql を読み込み、バージョン順に並べて返す。
// 命名規則に合わないファイルは無視する。
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("ディレクトリ %s の読み込みに失敗: %w", dir, err)
	}

	seen := map[int]string{}
	var out []Migration
	for _, entry := range entries {
		m := fileNamePattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("%w: %d (%s, %s)", ErrDuplicateVersion, version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s の読み込みに失敗: %w", entry.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: m[2], SQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// Migrator はマイグレーションを適用する。
type Migrator struct {
	db     *sqlx.DB
	logger zerolog.Logger
	now    func() time.Time
}

// New は新しいMigratorを生成する。
func New(db *sqlx.DB, logger zerolog.Logger) *Migrator {
	return &Migrator{db: db, logger: logger, now: time.Now}
}

func (m *Migrator) init(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("schema_migrations の作成に失敗: %w", err)
	}
	return nil
}

// Applied は適用済みの履歴をバージョン順に返す。
func (m *Migrator) Applied(ctx context.Context) ([]Record, error) {
	if err := m.init(ctx); err != nil {
		return nil, err
	}
	var records []Record
	if err := m.db.SelectContext(ctx, &records,
		"SELECT version, name, applied_at FROM schema_migrations ORDER BY version"); err != nil {
		return nil, fmt.Errorf("適用履歴の取得に失敗: %w", err)
	}
	return records, nil
}

// Up は未適用のマイグレーションを順に適用し、今回適用したバージョンを返す。
// 途中で失敗した場合は、それまでに適用したバージョンとエラーを返す。
func (m *Migrator) Up(ctx context.Context, migrations []Migration) ([]int, error) {
	records, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[int]struct{}, len(records))
	for _, r := range records {
		applied[r.Version] = struct{}{}
	}

	var done []int
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return done, fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", mig.Version, mig.Name, err)
		}
		m.logger.Info().Int("version", mig.Version).Str("name", mig.Name).Msg("マイグレーションを適用しました")
		done = append(done, mig.Version)
	}
	return done, nil
}

// apply はSQLと履歴の記録を1つのトランザクションで行う。
func (m *Migrator) apply(ctx context.Context, mig Migration) (err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		mig.Version, mig.Name, m.now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Run はディレクトリのマイグレーションを読み込んで未適用のものを適用する。
func Run(ctx context.Context, db *sqlx.DB, fsys fs.FS, dir string, logger zerolog.Logger) ([]int, error) {
	migrations, err := Load(fsys, dir)
	if err != nil {
		return nil, err
	}
	return New(db, logger).Up(ctx, migrations)
}
