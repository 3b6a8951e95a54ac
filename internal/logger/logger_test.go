package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"connectivity/pkg/logging"
)

func observed(level zap.AtomicLevel) (*SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &SugaredLogger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestSugaredLogger_ContextFields(t *testing.T) {
	l, logs := observed(zap.NewAtomicLevelAt(zap.InfoLevel))
	l.SetServiceName("verification-worker")

	ctx := logging.WithRequestID(context.Background(), "r1")
	l.Named("affiliation-check").InfowCtx(ctx, "Outcome persisted", "status", "approved")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "r1", fields["request_id"])
	assert.Equal(t, "verification-worker", fields["service_name"])
	assert.Equal(t, "approved", fields["status"])
	assert.Equal(t, "affiliation-check", entries[0].LoggerName)
}

func TestSugaredLogger_TraceIDFromSpan(t *testing.T) {
	l, logs := observed(zap.NewAtomicLevelAt(zap.InfoLevel))

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.WarnwCtx(ctx, "Requeue")
	l.WarnwCtx(logging.WithTraceID(ctx, "explicit"), "Requeue")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entries[0].ContextMap()["trace_id"])
	assert.Equal(t, "explicit", entries[1].ContextMap()["trace_id"])
}

func TestSugaredLogger_LevelFiltering(t *testing.T) {
	l, logs := observed(zap.NewAtomicLevelAt(zap.WarnLevel))

	l.DebugwCtx(context.Background(), "dropped")
	l.InfowCtx(context.Background(), "dropped")
	l.ErrorwCtx(context.Background(), "kept")

	require.Len(t, logs.All(), 1)
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := New("debug", format)
		require.NoError(t, err)
		assert.NotNil(t, l)
	}

	_, err := New("", "json")
	assert.NoError(t, err)

	_, err = New("verbose", "json")
	assert.Error(t, err)
}
