package livechannel

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nao1215/bell/pkg/event"
)

// redisClient はRedisTransportが使うクライアントの操作。
type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Close() error
}

// RedisTransport はRedisのPub/Subでイベントを配信する。複数インスタンス構成で使う。
type RedisTransport struct {
	client redisClient
	logger zerolog.Logger
}

// NewRedis はURL（例: "redis://localhost:6379/0"）からRedisTransportを生成する。
func NewRedis(url string, logger zerolog.Logger) (*RedisTransport, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("RedisのURLが不正です: %w", err)
	}
	return newRedisTransport(redis.NewClient(opt), logger), nil
}

func newRedisTransport(client redisClient, logger zerolog.Logger) *RedisTransport {
	return &RedisTransport{client: client, logger: logger}
}

// Publish はイベントをJSONにしてチャネルへPUBLISHする。
func (t *RedisTransport) Publish(ctx context.Context, ev *event.Envelope) error {
	b, err := event.Encode(ev)
	if err != nil {
		return err
	}
	if err := t.client.Publish(ctx, ev.Channel, b).Err(); err != nil {
		return fmt.Errorf("Redisへの配信に失敗: %w", err)
	}
	return nil
}

// Subscribe はチャネルをSUBSCRIBEし、受信したイベントを返す。
// 解析できないメッセージは読み飛ばす。
func (t *RedisTransport) Subscribe(ctx context.Context, channel string) (<-chan *event.Envelope, error) {
	pubsub := t.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("チャネル %s の購読に失敗: %w", channel, err)
	}

	out := make(chan *event.Envelope, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := event.Decode([]byte(msg.Payload))
				if err != nil {
					t.logger.Debug().Err(err).Str("channel", channel).Msg("解析できないメッセージを読み飛ばします")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close はRedisとの接続を閉じる。
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
