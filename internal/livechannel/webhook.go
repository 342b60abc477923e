package livechannel

import (
	"context"
	"fmt"

	"github.com/nao1215/bell/pkg/event"
	"github.com/nao1215/bell/pkg/httpclient"
)

// WebhookTransport はイベントを外部のHTTPエンドポイントへPOSTする。
type WebhookTransport struct {
	client *httpclient.Client
}

// NewWebhook は新しいWebhookTransportを生成する。
func NewWebhook(url string, opts ...httpclient.Option) (*WebhookTransport, error) {
	if url == "" {
		return nil, fmt.Errorf("WebhookのURLが指定されていません")
	}
	return &WebhookTransport{client: httpclient.New(url, opts...)}, nil
}

// Publish はイベントをJSONでPOSTする。レスポンスボディは読まない。
func (t *WebhookTransport) Publish(ctx context.Context, ev *event.Envelope) error {
	if err := t.client.PostJSON(ctx, "", ev, nil); err != nil {
		return fmt.Errorf("Webhookへの配信に失敗: %w", err)
	}
	return nil
}

// Close は何もしない。
func (t *WebhookTransport) Close() error { return nil }
