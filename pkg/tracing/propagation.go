package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InjectHeaders returns a copy of headers with the trace context of ctx
// added. headers itself is not modified.
func InjectHeaders(ctx context.Context, headers map[string]string) map[string]string {
	out := make(propagation.MapCarrier, len(headers)+2)
	for k, v := range headers {
		out[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, out)
	return out
}

// ExtractHeaders returns ctx with the remote span carried in headers.
func ExtractHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}

// StartPublish starts a producer span for a message sent to destination.
func StartPublish(ctx context.Context, system, destination string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "publish "+destination,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(messagingAttributes(system, destination)...),
	)
}

// StartConsume starts a consumer span parented by the trace found in
// headers, so a worker's spans join the gateway request that enqueued it.
func StartConsume(ctx context.Context, system, destination, messageID string, headers map[string]string) (context.Context, trace.Span) {
	attrs := append(messagingAttributes(system, destination), semconv.MessagingMessageID(messageID))
	return Tracer().Start(ExtractHeaders(ctx, headers), "process "+destination,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func messagingAttributes(system, destination string) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.MessagingSystemKey.String(system),
		semconv.MessagingDestinationName(destination),
	}
}
