package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/nao1215/bell/internal/livechannel"
	"github.com/nao1215/bell/pkg/event"
)

// createDateLayout は配信ペイロードの作成日時の形式。
const createDateLayout = "2006-01-02 15:04:05"

// Publisher は作成された通知を受信者のライブチャネルへ配信する。
// 配信は一度きりのbest-effortであり、失敗はログに記録するだけで呼び出し元へは返さない。
// 取りこぼした通知は保存済みのレコードから一覧取得で参照できる。
type Publisher struct {
	transport livechannel.Transport
	users     userDirectory
	logger    zerolog.Logger
	timeout   time.Duration
	failures  metric.Int64Counter
}

// NewPublisher は新しいPublisherを生成する。timeoutが0以下の場合は2秒とする。
func NewPublisher(transport livechannel.Transport, users userDirectory, logger zerolog.Logger, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Publisher{
		transport: transport,
		users:     users,
		logger:    logger,
		timeout:   timeout,
		failures:  newInstruments().publishFailures,
	}
}

// Publish は通知の配信イベントを受信者のチャネルへ送る。
func (p *Publisher) Publish(ctx context.Context, n *Notification) {
	channel := livechannel.ChannelKey(n.Recipient)
	if err := p.publish(ctx, channel, n); err != nil {
		p.failures.Add(ctx, 1)
		p.logger.Warn().Err(err).
			Str("channel", channel).
			Str("notification_id", n.ID).
			Msg("ライブチャネルへの配信に失敗しました")
	}
}

func (p *Publisher) publish(ctx context.Context, channel string, n *Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("配信中にパニックが発生: %v", r)
		}
	}()

	ev, err := event.New(channel, event.TypeNewNotification, p.payload(ctx, n))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.transport.Publish(ctx, ev)
}

// payload は配信ペイロードを組み立てる。送信者名が引けない場合は空のまま配信する。
func (p *Publisher) payload(ctx context.Context, n *Notification) event.NewNotificationPayload {
	out := event.NewNotificationPayload{
		ID:         n.ID,
		Name:       n.Title,
		Message:    n.Body,
		Type:       string(n.Type),
		ActionType: string(actionOrDefault(n.Action).Kind()),
		CreateDate: n.CreatedAt.UTC().Format(createDateLayout),
	}
	if rec, ok := n.Action.(RecordAction); ok {
		out.ResModel = rec.Model
		out.ResID = rec.RecordID
	}

	sender, err := p.users.Get(ctx, n.Sender)
	if err != nil {
		p.logger.Debug().Err(err).Str("sender", n.Sender).Msg("送信者名の解決に失敗しました")
		return out
	}
	out.SenderName = sender.Name
	return out
}
