// Package logging はzerologによる構造化ロガーを構築する。
//
// 出力先は標準エラー出力、またはlumberjackでローテーションするファイル。
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options はロガーの設定。
type Options struct {
	// Level はログレベル（debug, info, warn, error）。
	Level string
	// Format は出力形式（console, json）。
	Format string
	// File はログファイルのパス。空の場合は標準エラー出力に書き込む。
	File string
	// MaxSizeMB はローテーション前の最大ファイルサイズ（MB）。
	MaxSizeMB int
	// MaxBackups は保持する古いログファイルの最大数。
	MaxBackups int
	// MaxAgeDays は古いログファイルの保持日数。
	MaxAgeDays int
	// Compress はローテーション済みファイルをgzip圧縮するかどうか。
	Compress bool
}

// New は設定に従ってzerolog.Loggerを生成する。
func New(opts Options) zerolog.Logger {
	var w io.Writer = os.Stderr
	if strings.TrimSpace(opts.File) != "" {
		w = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
	}
	return NewWithWriter(w, opts)
}

// NewWithWriter は任意の出力先にログを書き込むロガーを生成する。
func NewWithWriter(w io.Writer, opts Options) zerolog.Logger {
	if strings.EqualFold(opts.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(ParseLevel(opts.Level)).With().Timestamp().Logger()
}

// ParseLevel はログレベル文字列をzerolog.Levelに変換する。
// 不明な値はinfoとして扱う。
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
