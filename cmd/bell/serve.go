package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/bell/internal/actions"
	"github.com/nao1215/bell/internal/directory"
	"github.com/nao1215/bell/internal/livechannel"
	"github.com/nao1215/bell/internal/notification"
	"github.com/nao1215/bell/internal/query"
	"github.com/nao1215/bell/internal/server"
	"github.com/nao1215/bell/internal/settings"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTPサーバーを起動する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfgFile)
		},
	}
}

func serve(ctx context.Context, cfgFile string) error {
	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	transport, err := livechannel.New(a.cfg.LiveChannel, a.logger)
	if err != nil {
		return fmt.Errorf("ライブチャネルの初期化に失敗: %w", err)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("ライブチャネルのクローズに失敗しました")
		}
	}()

	registry, err := loadRegistry(ctx, a)
	if err != nil {
		return err
	}

	users := directory.NewStore(a.db)
	store := notification.NewStore(a.db)
	settingsStore := settings.NewStore(a.db, settings.WithDefaultLimit(a.cfg.Notifications.DefaultLimit))
	publisher := notification.NewPublisher(transport, users, a.logger, a.cfg.LiveChannel.PublishTimeout)
	svc := notification.NewService(store, users, publisher, registry, a.logger)

	deps := server.Deps{
		Notifications: svc,
		Query:         query.NewFacade(store, settingsStore, users),
		Settings:      settingsStore,
		Users:         users,
	}
	if sub, ok := transport.(livechannel.Subscriber); ok {
		deps.Subscriber = sub
	}

	srv := server.New(a.cfg.Server.Port, a.cfg.Server.JWTSecret, deps, a.logger,
		server.WithAllowedOrigins(a.cfg.Server.AllowedOrigins))
	return srv.Run(ctx)
}

// loadRegistry はアクション定義を読み込み、設定に応じて変更の監視を開始する。
func loadRegistry(ctx context.Context, a *app) (*actions.Registry, error) {
	if a.cfg.Actions.File == "" {
		a.logger.Warn().Msg("アクション定義ファイルが未設定のため、windowアクションは解決できません")
		return actions.NewRegistry(a.logger), nil
	}

	registry, err := actions.Load(a.cfg.Actions.File, a.logger)
	if err != nil {
		return nil, fmt.Errorf("アクション定義の読み込みに失敗: %w", err)
	}
	a.logger.Info().Str("file", a.cfg.Actions.File).Int("count", registry.Len()).Msg("アクション定義を読み込みました")

	if a.cfg.Actions.Watch {
		go func() {
			if err := registry.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("アクション定義の監視を停止しました")
			}
		}()
	}
	return registry, nil
}
