// Package livechannel はユーザーごとのライブチャネルへ配信イベントを送るトランスポートを提供する。
//
// 配信はbest-effortで、確認応答や再送は行わない。
// 受信側が取りこぼしても、保存済みの通知を一覧取得で参照できる。
package livechannel

import (
	"context"
	"errors"

	"github.com/nao1215/bell/pkg/event"
)

//go:generate mockgen -destination=../mocks/livechannel/mock_transport.go -package=mocklivechannel github.com/nao1215/bell/internal/livechannel Transport

// ErrClosed はクローズ済みのトランスポートを使ったことを表す。
var ErrClosed = errors.New("トランスポートはクローズされています")

// channelPrefix はユーザーごとのチャネル名の接頭辞。
const channelPrefix = "notifications:"

// ChannelKey はユーザーIDからチャネル名を求める。
func ChannelKey(userID string) string {
	return channelPrefix + userID
}

// Transport は配信イベントをチャネルへ送る。
type Transport interface {
	// Publish はイベントを ev.Channel へ送る。
	Publish(ctx context.Context, ev *event.Envelope) error
	// Close は接続などの資源を解放する。
	Close() error
}

// Subscriber はチャネルのイベントを購読できるトランスポート。
// SSEでクライアントへ中継するために使う。
type Subscriber interface {
	// Subscribe はチャネルを購読する。返されたチャネルは ctx の終了で閉じられる。
	Subscribe(ctx context.Context, channel string) (<-chan *event.Envelope, error)
}

// Noop はイベントを破棄するトランスポート。
type Noop struct{}

// Publish は何もしない。
func (Noop) Publish(context.Context, *event.Envelope) error { return nil }

// Close は何もしない。
func (Noop) Close() error { return nil }
