package livechannel

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nao1215/bell/internal/config"
	"github.com/nao1215/bell/pkg/httpclient"
)

// New は設定に応じたトランスポートを生成する。
func New(cfg config.LiveChannel, logger zerolog.Logger) (Transport, error) {
	logger = logger.With().Str("transport", cfg.Transport).Logger()

	switch cfg.Transport {
	case config.TransportMemory, "":
		return NewHub(), nil
	case config.TransportRedis:
		return NewRedis(cfg.RedisURL, logger)
	case config.TransportKafka:
		return NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
	case config.TransportWebhook:
		var opts []httpclient.Option
		if cfg.PublishTimeout > 0 {
			opts = append(opts, httpclient.WithTimeout(cfg.PublishTimeout))
		}
		return NewWebhook(cfg.WebhookURL, opts...)
	case config.TransportNoop:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("未知のトランスポートです: %q", cfg.Transport)
	}
}
