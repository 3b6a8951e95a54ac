package broker

import (
	"context"
	"time"

	"connectivity/internal/logger"
	"connectivity/pkg/errors"
)

const settleTimeout = 10 * time.Second

// invoke runs handler and turns a panic into Requeue.
func invoke(ctx context.Context, log logger.Logger, handler HandlerFunc, msg Message) (disposition Disposition) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorwCtx(ctx, "Panic recovered during message handling",
				"error", errors.RecoverPanic(r),
				"message_id", msg.ID,
			)
			disposition = Requeue
		}
	}()
	return handler(ctx, msg)
}

// settleContext outlives shutdown so an ack or commit for a message that was
// already handled still reaches the broker.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
