package livechannel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/bell/internal/config"
	"github.com/nao1215/bell/pkg/event"
)

// fakeRedis はPUBLISHされたメッセージを記録する。
type fakeRedis struct {
	channel string
	message any
	err     error
	closed  bool
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	f.channel, f.message = channel, message
	return redis.NewIntResult(1, f.err)
}

func (f *fakeRedis) Subscribe(context.Context, ...string) *redis.PubSub { return nil }

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

// fakeWriter は書き込まれたメッセージを記録する。
type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

// TestRedisTransport_Publish はRedisへの配信を検証する。
func TestRedisTransport_Publish(t *testing.T) {
	t.Parallel()

	t.Run("チャネル名でイベントのJSONをPUBLISHすること", func(t *testing.T) {
		t.Parallel()
		client := &fakeRedis{}
		tr := newRedisTransport(client, zerolog.Nop())
		ev := newEnvelope(t, ChannelKey("u2"))

		require.NoError(t, tr.Publish(t.Context(), ev))
		assert.Equal(t, "notifications:u2", client.channel)

		b, ok := client.message.([]byte)
		require.True(t, ok)
		got, err := event.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, ev.ID, got.ID)

		require.NoError(t, tr.Close())
		assert.True(t, client.closed)
	})

	t.Run("PUBLISHの失敗はエラーとして返ること", func(t *testing.T) {
		t.Parallel()
		tr := newRedisTransport(&fakeRedis{err: errors.New("connection refused")}, zerolog.Nop())
		assert.Error(t, tr.Publish(t.Context(), newEnvelope(t, "c")))
	})
}

// TestKafkaTransport_Publish はKafkaへの配信を検証する。
func TestKafkaTransport_Publish(t *testing.T) {
	t.Parallel()

	t.Run("チャネル名をキーにして書き込むこと", func(t *testing.T) {
		t.Parallel()
		w := &fakeWriter{}
		tr := &KafkaTransport{writer: w}
		ev := newEnvelope(t, ChannelKey("u2"))

		require.NoError(t, tr.Publish(t.Context(), ev))
		require.Len(t, w.msgs, 1)
		assert.Equal(t, "notifications:u2", string(w.msgs[0].Key))
		assert.Equal(t, "new_notification", string(w.msgs[0].Headers[0].Value))

		got, err := event.Decode(w.msgs[0].Value)
		require.NoError(t, err)
		assert.Equal(t, ev.ID, got.ID)
	})

	t.Run("書き込みの失敗はエラーとして返ること", func(t *testing.T) {
		t.Parallel()
		tr := &KafkaTransport{writer: &fakeWriter{err: errors.New("leader not available")}}
		assert.Error(t, tr.Publish(t.Context(), newEnvelope(t, "c")))
	})
}

// TestWebhookTransport_Publish はWebhookへの配信を検証する。
func TestWebhookTransport_Publish(t *testing.T) {
	t.Parallel()

	t.Run("イベントをJSONでPOSTすること", func(t *testing.T) {
		t.Parallel()
		received := make(chan []byte, 1)
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			received <- b
			w.WriteHeader(http.StatusAccepted)
		}))
		defer ts.Close()

		tr, err := NewWebhook(ts.URL)
		require.NoError(t, err)
		ev := newEnvelope(t, ChannelKey("u2"))
		require.NoError(t, tr.Publish(t.Context(), ev))

		var got event.Envelope
		require.NoError(t, json.Unmarshal(<-received, &got))
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, "notifications:u2", got.Channel)
	})

	t.Run("エンドポイントのエラーはエラーとして返ること", func(t *testing.T) {
		t.Parallel()
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		tr, err := NewWebhook(ts.URL)
		require.NoError(t, err)
		assert.Error(t, tr.Publish(t.Context(), newEnvelope(t, "c")))
	})
}

// TestNew は設定からのトランスポート生成を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.LiveChannel
		want    any
		wantErr bool
	}{
		{name: "memory", cfg: config.LiveChannel{Transport: "memory"}, want: &Hub{}},
		{name: "未指定はmemory", cfg: config.LiveChannel{}, want: &Hub{}},
		{name: "noop", cfg: config.LiveChannel{Transport: "noop"}, want: Noop{}},
		{name: "redis", cfg: config.LiveChannel{Transport: "redis", RedisURL: "redis://localhost:6379/0"}, want: &RedisTransport{}},
		{name: "redisのURLが不正", cfg: config.LiveChannel{Transport: "redis", RedisURL: "://"}, wantErr: true},
		{name: "kafka", cfg: config.LiveChannel{Transport: "kafka", KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, want: &KafkaTransport{}},
		{name: "kafkaのブローカーなし", cfg: config.LiveChannel{Transport: "kafka", KafkaTopic: "t"}, wantErr: true},
		{name: "webhook", cfg: config.LiveChannel{Transport: "webhook", WebhookURL: "http://localhost:9000/hook", PublishTimeout: time.Second}, want: &WebhookTransport{}},
		{name: "webhookのURLなし", cfg: config.LiveChannel{Transport: "webhook"}, wantErr: true},
		{name: "未知のトランスポート", cfg: config.LiveChannel{Transport: "smtp"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, err := New(tt.cfg, zerolog.Nop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer tr.Close()
			assert.IsType(t, tt.want, tr)
		})
	}
}
