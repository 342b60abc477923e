package livechannel

import (
	"context"
	"sync"

	"github.com/nao1215/bell/pkg/event"
)

// subscriberBuffer は購読者ごとのバッファサイズ。
const subscriberBuffer = 16

// Hub はプロセス内で完結するトランスポート。単一インスタンス構成で使う。
// 購読者のバッファが埋まっている場合、そのイベントは破棄する。
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan *event.Envelope]struct{}
	closed bool
}

// NewHub は新しいHubを生成する。
func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan *event.Envelope]struct{}{}}
}

// Publish はチャネルの購読者全員にイベントを送る。購読者がいなければ何もしない。
func (h *Hub) Publish(ctx context.Context, ev *event.Envelope) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for ch := range h.subs[ev.Channel] {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

// Subscribe はチャネルを購読する。
func (h *Hub) Subscribe(ctx context.Context, channel string) (<-chan *event.Envelope, error) {
	ch := make(chan *event.Envelope, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if h.subs[channel] == nil {
		h.subs[channel] = map[chan *event.Envelope]struct{}{}
	}
	h.subs[channel][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(channel, ch)
	}()
	return ch, nil
}

func (h *Hub) unsubscribe(channel string, ch chan *event.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[channel][ch]; !ok {
		return
	}
	delete(h.subs[channel], ch)
	if len(h.subs[channel]) == 0 {
		delete(h.subs, channel)
	}
	close(ch)
}

// Subscribers はチャネルの購読者数を返す。
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

// Close はすべての購読を終了する。
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for channel, set := range h.subs {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, channel)
	}
	return nil
}
