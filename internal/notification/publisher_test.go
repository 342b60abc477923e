package notification

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/bell/pkg/event"
)

// TestPublisher_Payload は配信ペイロードの組み立てを検証する。
func TestPublisher_Payload(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 4, 5, 6, 7, 890000000, time.UTC)

	tests := []struct {
		name string
		n    *Notification
		want event.NewNotificationPayload
	}{
		{
			name: "recordアクションはモデルとIDを含むこと",
			n: &Notification{
				ID: "n1", Title: "Order", Body: "confirmed", Recipient: "u2", Sender: "u1",
				Type: TypeSuccess, Action: RecordAction{Model: "sale.order", RecordID: 42}, CreatedAt: created,
			},
			want: event.NewNotificationPayload{
				ID: "n1", Name: "Order", Message: "confirmed", Type: "success", ActionType: "record",
				ResModel: "sale.order", ResID: 42, CreateDate: "2026-03-04 05:06:07", SenderName: "Alice",
			},
		},
		{
			name: "送信者名が引けない場合は空で配信すること",
			n: &Notification{
				ID: "n2", Title: "Hi", Body: "msg", Recipient: "u2", Sender: "ghost",
				Type: TypeInfo, Action: WindowAction{XMLID: "sales.action_orders"}, CreatedAt: created,
			},
			want: event.NewNotificationPayload{
				ID: "n2", Name: "Hi", Message: "msg", Type: "info", ActionType: "window",
				CreateDate: "2026-03-04 05:06:07",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			var got *event.NewNotificationPayload
			f.transport.EXPECT().Publish(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, ev *event.Envelope) error {
					assert.Equal(t, "notifications:u2", ev.Channel)
					var err error
					got, err = event.DecodePayload[event.NewNotificationPayload](ev)
					return err
				})

			NewPublisher(f.transport, f.users, zerolog.Nop(), 0).Publish(t.Context(), tt.n)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}
