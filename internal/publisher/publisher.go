package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"connectivity/internal/broker"
	"connectivity/internal/constants"
	"connectivity/internal/logger"
	"connectivity/internal/outcome"
	"connectivity/pkg/errors"
	"connectivity/pkg/models"
	"connectivity/pkg/tracing"
)

// Publisher emits OutcomeEvents for one worker's outcome topic.
type Publisher struct {
	producer broker.Producer
	store    outcome.Store
	topic    string
	timeout  time.Duration
	logger   logger.Logger
}

func New(producer broker.Producer, store outcome.Store, topic string, timeout time.Duration, log logger.Logger) *Publisher {
	if timeout <= 0 {
		timeout = constants.DefaultPublishTimeout
	}
	return &Publisher{
		producer: producer,
		store:    store,
		topic:    topic,
		timeout:  timeout,
		logger:   log.Named("publisher"),
	}
}

func (p *Publisher) Topic() string {
	return p.topic
}

// Publish records the attempt durably, then hands the event to the broker.
// It returns once the broker has acknowledged the event or the publish
// timeout has elapsed.
func (p *Publisher) Publish(ctx context.Context, o *models.Outcome) error {
	attempt, err := p.store.RecordPublish(ctx, o.RequestID)
	if err != nil {
		return fmt.Errorf("failed to record publish attempt for %s: %w", o.RequestID, err)
	}

	body, err := json.Marshal(models.NewOutcomeEvent(o, attempt))
	if err != nil {
		return fmt.Errorf("failed to marshal outcome event: %w", err)
	}

	msg := broker.Message{
		ID:   o.RequestID,
		Key:  []byte(o.RequestID),
		Body: body,
		Headers: map[string]string{
			"request_id": o.RequestID,
			"kind":       string(o.Kind),
		},
	}
	if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
		msg.Headers["trace_id"] = traceID
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.producer.Publish(publishCtx, p.topic, msg); err != nil {
		return errors.Wrap(err, errors.ErrBrokerUnavailable.
			WithDetail("topic", p.topic).
			WithDetail("request_id", o.RequestID))
	}

	p.logger.DebugwCtx(ctx, "Outcome event published",
		"request_id", o.RequestID,
		"topic", p.topic,
		"status", o.Status,
		"publish_attempt", attempt,
	)
	return nil
}
