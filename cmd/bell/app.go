package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/nao1215/bell/internal/config"
	"github.com/nao1215/bell/internal/database"
	"github.com/nao1215/bell/pkg/logging"
)

// app はサブコマンド共通の依存。
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *sqlx.DB
}

// newApp は設定を読み込み、ロガーとデータベースを初期化する。
func newApp(ctx context.Context, cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	}).With().Str("service", "bell").Logger()

	db, err := database.Open(ctx, cfg.Database.DSN, logger)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	return &app{cfg: cfg, logger: logger, db: db}, nil
}

// Close はデータベース接続を閉じる。
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("データベース接続のクローズに失敗しました")
	}
}
