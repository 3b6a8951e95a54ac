package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"connectivity/internal/config"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestInit_DisabledStillPropagates(t *testing.T) {
	p, err := Init(config.TracingConfig{}, "verification-worker")
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NoError(t, p.Shutdown(context.Background()))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	in := map[string]string{"request_id": "r1"}
	out := InjectHeaders(ctx, in)
	assert.Len(t, in, 1)
	assert.Equal(t, "r1", out["request_id"])
	assert.Contains(t, out["traceparent"], "4bf92f3577b34da6a3ce929d0e0e4736")

	extracted := ExtractHeaders(context.Background(), out)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", TraceIDFromContext(extracted))
	assert.Equal(t, "", TraceIDFromContext(ExtractHeaders(context.Background(), nil)))
}

func TestInit_EnabledNeedsEndpoint(t *testing.T) {
	_, err := Init(config.TracingConfig{Enabled: true}, "gateway")
	assert.Error(t, err)
}

func TestSampler(t *testing.T) {
	tests := []struct {
		typ     string
		wantErr bool
	}{
		{typ: ""},
		{typ: "always_on"},
		{typ: "ALWAYS_OFF"},
		{typ: "traceidratio"},
		{typ: "parentbased_traceidratio"},
		{typ: "sometimes", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			s, err := Sampler(config.SamplerConfig{Type: tt.typ, Param: 0.5})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestConsumeSpanJoinsPublisherTrace(t *testing.T) {
	Init(config.TracingConfig{}, "")
	recorder := recordSpans(t)

	pubCtx, pubSpan := StartPublish(context.Background(), "kafka", "verification.affiliation")
	headers := InjectHeaders(pubCtx, nil)
	EndSpan(pubSpan, nil)

	_, consumeSpan := StartConsume(context.Background(), "kafka", "verification.affiliation", "m1", headers)
	EndSpan(consumeSpan, errors.New("centralizer unavailable"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, trace.SpanKindProducer, spans[0].SpanKind())
	assert.Equal(t, trace.SpanKindConsumer, spans[1].SpanKind())
	assert.Equal(t, spans[0].SpanContext().TraceID(), spans[1].SpanContext().TraceID())
	assert.Equal(t, spans[0].SpanContext().SpanID(), spans[1].Parent().SpanID())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
