package telemetry

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const messagingTracer = "portfolio-engine/kafka"

// headerCarrier adapts a Kafka header list to propagation.TextMapCarrier.
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set replaces any header already stored under key.
func (c headerCarrier) Set(key, value string) {
	out := (*c.headers)[:0]
	for _, h := range *c.headers {
		if h.Key != key {
			out = append(out, h)
		}
	}
	*c.headers = append(out, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

// PublishSpan starts a producer span for one event and returns the message
// headers carrying its trace context. key is the partition key, normally
// the account id.
func PublishSpan(ctx context.Context, topic, eventType, key string) (context.Context, trace.Span, []kafka.Header) {
	ctx, span := otel.Tracer(messagingTracer).Start(ctx, topic+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", topic),
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.kafka.message.key", key),
			attribute.String("event.type", eventType),
		),
	)

	headers := make([]kafka.Header, 0, 2)
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &headers})
	return ctx, span, headers
}

// ConsumeSpan continues the trace carried by msg and starts a consumer span
// for it.
func ConsumeSpan(ctx context.Context, msg kafka.Message) (context.Context, trace.Span) {
	headers := msg.Headers
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &headers})

	return otel.Tracer(messagingTracer).Start(ctx, msg.Topic+" receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
			attribute.String("messaging.operation", "receive"),
			attribute.String("messaging.kafka.message.key", string(msg.Key)),
			attribute.Int("messaging.kafka.partition", msg.Partition),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
		),
	)
}

// SetEventAttributes records the event id and encoded size on the current
// span.
func SetEventAttributes(ctx context.Context, eventID string, size int) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("messaging.message.id", eventID),
		attribute.Int("messaging.message.body.size", size),
	)
}
