// bellのエントリポイント。
// ユーザーごとの通知ベルを提供するHTTPサーバーと、運用向けのサブコマンドを持つ。
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd はルートコマンドを生成する。
func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "bell",
		Short:         "ユーザーごとの通知ベルサービス",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("BELL_CONFIG"), "設定ファイル（YAML）のパス")

	root.AddCommand(
		newServeCmd(&cfgFile),
		newMigrateCmd(&cfgFile),
		newSendCmd(&cfgFile),
		newUserCmd(&cfgFile),
		newTokenCmd(&cfgFile),
	)
	return root
}
