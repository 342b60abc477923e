package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/bell/internal/config"
	"github.com/nao1215/bell/internal/directory"
	"github.com/nao1215/bell/internal/livechannel"
	"github.com/nao1215/bell/internal/notification"
	"github.com/nao1215/bell/pkg/middleware"
	"github.com/nao1215/bell/pkg/migration"
)

func newMigrateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "データベースのスキーマを最新にする",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := migration.New(a.db, a.logger).Applied(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%06d %s %s\n", r.Version, r.Name, r.AppliedAt)
			}
			return nil
		},
	}
}

// sendFlags は send コマンドのフラグ。
type sendFlags struct {
	recipient string
	sender    string
	title     string
	body      string
	typ       string
	model     string
	recordID  int64
	url       string
	actionID  int64
	xmlID     string
	context   string
}

func newSendCmd(cfgFile *string) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:   "send",
		Short: "通知を1件送信する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			transport, err := livechannel.New(a.cfg.LiveChannel, a.logger)
			if err != nil {
				return fmt.Errorf("ライブチャネルの初期化に失敗: %w", err)
			}
			defer transport.Close()

			users := directory.NewStore(a.db)
			svc := notification.NewService(notification.NewStore(a.db), users,
				notification.NewPublisher(transport, users, a.logger, a.cfg.LiveChannel.PublishTimeout), nil, a.logger)

			typ := notification.Type(f.typ)
			var n *notification.Notification
			switch {
			case f.model != "":
				n, err = svc.SendRecord(ctx, f.recipient, f.sender, f.title, f.body, f.model, f.recordID, typ)
			case f.url != "":
				n, err = svc.SendURL(ctx, f.recipient, f.sender, f.title, f.body, f.url, typ)
			case f.actionID > 0 || f.xmlID != "":
				var actionContext map[string]any
				if f.context != "" {
					if err := json.Unmarshal([]byte(f.context), &actionContext); err != nil {
						return fmt.Errorf("--context はJSONオブジェクトで指定してください: %w", err)
					}
				}
				n, err = svc.SendWindow(ctx, f.recipient, f.sender, f.title, f.body, f.actionID, f.xmlID, actionContext, typ)
			default:
				n, err = svc.Send(ctx, notification.SendParams{
					Recipient: f.recipient, Sender: f.sender, Title: f.title, Body: f.body, Type: typ,
				})
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.recipient, "to", "", "通知先のユーザーID")
	cmd.Flags().StringVar(&f.sender, "from", "", "送信者のユーザーID")
	cmd.Flags().StringVar(&f.title, "title", "", "タイトル")
	cmd.Flags().StringVar(&f.body, "body", "", "本文")
	cmd.Flags().StringVar(&f.typ, "type", string(notification.TypeInfo), "種類（info, success, warning, danger）")
	cmd.Flags().StringVar(&f.model, "model", "", "recordアクションの対象モデル")
	cmd.Flags().Int64Var(&f.recordID, "record-id", 0, "recordアクションの対象レコードID")
	cmd.Flags().StringVar(&f.url, "url", "", "urlアクションのURL")
	cmd.Flags().Int64Var(&f.actionID, "action-id", 0, "windowアクションのID")
	cmd.Flags().StringVar(&f.xmlID, "action-xml-id", "", "windowアクションの外部ID")
	cmd.Flags().StringVar(&f.context, "context", "", "windowアクションに渡すコンテキスト（JSON）")
	for _, name := range []string{"to", "from", "title", "body"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newUserCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "ユーザーディレクトリを操作する",
	}

	var name, tz string
	set := &cobra.Command{
		Use:   "set <id>",
		Short: "ユーザーを登録または更新する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()

			u := directory.User{ID: args[0], Name: name, TZ: tz}
			if err := directory.NewStore(a.db).Upsert(cmd.Context(), u); err != nil {
				return err
			}
			a.logger.Info().Str("user_id", u.ID).Msg("ユーザーを登録しました")
			return nil
		},
	}
	set.Flags().StringVar(&name, "name", "", "表示名")
	set.Flags().StringVar(&tz, "tz", "", "IANAタイムゾーン名（例: Asia/Tokyo）")
	_ = set.MarkFlagRequired("name")

	cmd.AddCommand(set)
	return cmd
}

func newTokenCmd(cfgFile *string) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "開発用のアクセストークンを発行する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			token, err := middleware.GenerateJWT(cfg.Server.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "トークンの有効期間")
	return cmd
}
