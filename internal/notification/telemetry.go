package notification

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nao1215/bell/internal/notification"

// 属性キー。
const (
	attrUserID         = attribute.Key("bell.user_id")
	attrNotificationID = attribute.Key("bell.notification_id")
	attrActionKind     = attribute.Key("bell.action_kind")
)

// instruments はトレースとメトリクスの計装。
// グローバルプロバイダが未設定の場合はno-opとして動作する。
type instruments struct {
	tracer          trace.Tracer
	sent            metric.Int64Counter
	publishFailures metric.Int64Counter
	activations     metric.Int64Counter
}

func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)
	return instruments{
		tracer:          otel.Tracer(instrumentationName),
		sent:            counter(meter, "bell.notifications.sent", "作成された通知の件数"),
		publishFailures: counter(meter, "bell.notifications.publish_failures", "ライブチャネルへの配信に失敗した件数"),
		activations:     counter(meter, "bell.notifications.activations", "アクティブ化された通知の件数"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// endSpan はエラーを記録してスパンを終了する。
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (i instruments) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "notification."+name, trace.WithAttributes(attrs...))
}
