package livechannel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/bell/pkg/event"
)

func newEnvelope(t *testing.T, channel string) *event.Envelope {
	t.Helper()
	ev, err := event.New(channel, event.TypeNewNotification, event.NewNotificationPayload{ID: "n1", Name: "Hi"})
	require.NoError(t, err)
	return ev
}

func receive(t *testing.T, ch <-chan *event.Envelope) *event.Envelope {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("イベントを受信できませんでした")
		return nil
	}
}

// TestChannelKey はチャネル名の形式を検証する。
func TestChannelKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "notifications:u2", ChannelKey("u2"))
}

// TestHub はプロセス内トランスポートの配信と購読を検証する。
func TestHub(t *testing.T) {
	t.Parallel()

	t.Run("購読者にだけイベントが届くこと", func(t *testing.T) {
		t.Parallel()
		hub := NewHub()
		defer hub.Close()

		mine, err := hub.Subscribe(t.Context(), ChannelKey("u2"))
		require.NoError(t, err)
		other, err := hub.Subscribe(t.Context(), ChannelKey("u1"))
		require.NoError(t, err)

		ev := newEnvelope(t, ChannelKey("u2"))
		require.NoError(t, hub.Publish(t.Context(), ev))

		assert.Equal(t, ev.ID, receive(t, mine).ID)
		assert.Empty(t, other)
	})

	t.Run("購読者がいなくてもエラーにならないこと", func(t *testing.T) {
		t.Parallel()
		hub := NewHub()
		assert.NoError(t, hub.Publish(t.Context(), newEnvelope(t, ChannelKey("nobody"))))
	})

	t.Run("コンテキストの終了で購読が解除されること", func(t *testing.T) {
		t.Parallel()
		hub := NewHub()
		ctx, cancel := context.WithCancel(t.Context())

		ch, err := hub.Subscribe(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, 1, hub.Subscribers("c"))

		cancel()
		require.Eventually(t, func() bool { return hub.Subscribers("c") == 0 }, 2*time.Second, 10*time.Millisecond)
		_, ok := <-ch
		assert.False(t, ok)
	})

	t.Run("バッファが埋まった購読者へのイベントは破棄されること", func(t *testing.T) {
		t.Parallel()
		hub := NewHub()
		defer hub.Close()

		ch, err := hub.Subscribe(t.Context(), "c")
		require.NoError(t, err)
		for range subscriberBuffer + 5 {
			require.NoError(t, hub.Publish(t.Context(), newEnvelope(t, "c")))
		}
		assert.Len(t, ch, subscriberBuffer)
	})

	t.Run("クローズ後は配信も購読もできないこと", func(t *testing.T) {
		t.Parallel()
		hub := NewHub()
		ch, err := hub.Subscribe(t.Context(), "c")
		require.NoError(t, err)

		require.NoError(t, hub.Close())
		require.NoError(t, hub.Close())
		_, ok := <-ch
		assert.False(t, ok)

		assert.ErrorIs(t, hub.Publish(t.Context(), newEnvelope(t, "c")), ErrClosed)
		_, err = hub.Subscribe(t.Context(), "c")
		assert.ErrorIs(t, err, ErrClosed)
	})
}
