package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"connectivity/internal/logger"
)

func TestInvoke_PanicBecomesRequeue(t *testing.T) {
	d := invoke(context.Background(), logger.NopLogger(), func(context.Context, Message) Disposition {
		panic("boom")
	}, Message{ID: "m1"})

	assert.Equal(t, Requeue, d)
}

func TestInvoke_PassesDisposition(t *testing.T) {
	d := invoke(context.Background(), logger.NopLogger(), func(context.Context, Message) Disposition {
		return Ack
	}, Message{ID: "m1"})

	assert.Equal(t, Ack, d)
	assert.Equal(t, "ack", d.String())
	assert.Equal(t, "requeue", Requeue.String())
}

func TestSettleContext_SurvivesCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	ctx, done := settleContext(parent)
	defer done()
	assert.NoError(t, ctx.Err())
}

func TestSleepCtx(t *testing.T) {
	assert.True(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepCtx(ctx, time.Hour))
}
