// Package config はbellサービスの設定を読み込む。
//
// YAMLファイルを読み込み、環境変数で上書きする。ファイルが存在しない場合は
// デフォルト値のみで動作する。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定。
type Config struct {
	Server        Server        `mapstructure:"server"`
	Database      Database      `mapstructure:"database"`
	Log           Log           `mapstructure:"log"`
	LiveChannel   LiveChannel   `mapstructure:"livechannel"`
	Actions       Actions       `mapstructure:"actions"`
	Notifications Notifications `mapstructure:"notifications"`
}

// Server はHTTPサーバーの設定。
type Server struct {
	Port           string   `mapstructure:"port"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Database はSQLiteデータベースの設定。
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Log はロガーの設定。
type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// LiveChannel はライブチャネル配信の設定。
type LiveChannel struct {
	Transport      string        `mapstructure:"transport"` // memory|redis|kafka|webhook|noop
	RedisURL       string        `mapstructure:"redis_url"`
	KafkaBrokers   []string      `mapstructure:"kafka_brokers"`
	KafkaTopic     string        `mapstructure:"kafka_topic"`
	WebhookURL     string        `mapstructure:"webhook_url"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// Actions はアクションレジストリの設定。
type Actions struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

// Notifications は通知の既定値に関する設定。
type Notifications struct {
	DefaultLimit int `mapstructure:"default_limit"`
}

// 対応しているライブチャネルのトランスポート。
const (
	TransportMemory  = "memory"
	TransportRedis   = "redis"
	TransportKafka   = "kafka"
	TransportWebhook = "webhook"
	TransportNoop    = "noop"
)

// envBindings は設定キーと環境変数の対応。
var envBindings = map[string]string{
	"server.port":               "PORT",
	"server.jwt_secret":         "JWT_SECRET",
	"database.dsn":              "DATABASE_DSN",
	"livechannel.redis_url":     "REDIS_URL",
	"livechannel.kafka_brokers": "KAFKA_BROKERS",
	"livechannel.webhook_url":   "WEBHOOK_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8086")
	v.SetDefault("server.jwt_secret", "dev-secret-key")
	v.SetDefault("database.dsn", "/data/bell.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("livechannel.transport", TransportMemory)
	v.SetDefault("livechannel.kafka_topic", "bell.notifications")
	v.SetDefault("livechannel.publish_timeout", 2*time.Second)
	v.SetDefault("actions.watch", true)
	v.SetDefault("notifications.default_limit", 10)
}

// Load は設定ファイルと環境変数から設定を読み込む。
// pathが空、またはファイルが存在しない場合はデフォルト値と環境変数のみを使う。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "BELL_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("環境変数 %s のバインドに失敗: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Port) == "" {
		return errors.New("server.port が空です")
	}
	if c.Notifications.DefaultLimit <= 0 {
		return fmt.Errorf("notifications.default_limit は正の整数である必要があります: %d", c.Notifications.DefaultLimit)
	}

	switch c.LiveChannel.Transport {
	case TransportMemory, TransportNoop:
	case TransportRedis:
		if c.LiveChannel.RedisURL == "" {
			return errors.New("livechannel.redis_url が必要です")
		}
	case TransportKafka:
		if len(c.LiveChannel.KafkaBrokers) == 0 {
			return errors.New("livechannel.kafka_brokers が必要です")
		}
	case TransportWebhook:
		if c.LiveChannel.WebhookURL == "" {
			return errors.New("livechannel.webhook_url が必要です")
		}
	default:
		return fmt.Errorf("未対応のトランスポートです: %q", c.LiveChannel.Transport)
	}
	return nil
}
