package livechannel

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nao1215/bell/pkg/event"
)

// messageWriter はKafkaTransportが使うライターの操作。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTransport はKafkaのトピックへイベントを書き込む。
// メッセージキーにチャネル名を使うため、同じ受信者のイベントは同じパーティションに並ぶ。
type KafkaTransport struct {
	writer messageWriter
}

// NewKafka は新しいKafkaTransportを生成する。
func NewKafka(brokers []string, topic string) (*KafkaTransport, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("Kafkaのブローカーが指定されていません")
	}
	if topic == "" {
		return nil, fmt.Errorf("Kafkaのトピックが指定されていません")
	}
	return &KafkaTransport{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}, nil
}

// Publish はイベントを1件のメッセージとして書き込む。
func (t *KafkaTransport) Publish(ctx context.Context, ev *event.Envelope) error {
	b, err := event.Encode(ev)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(ev.Channel),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("Kafkaへの配信に失敗: %w", err)
	}
	return nil
}

// Close はライターを閉じる。
func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}
