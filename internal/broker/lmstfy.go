package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/bitleak/lmstfy/client"

	"connectivity/internal/config"
	"connectivity/internal/constants"
	"connectivity/internal/logger"
	"connectivity/pkg/logging"
	"connectivity/pkg/metrics"
	"connectivity/pkg/tracing"
)

// LmstfyProducer publishes jobs to lmstfy queues. A publish is durable once
// the server returns a job id.
type LmstfyProducer struct {
	cfg    config.LmstfyConfig
	client *client.LmstfyClient
	logger logger.Logger
}

func NewLmstfyProducer(cfg config.LmstfyConfig, log logger.Logger) *LmstfyProducer {
	return &LmstfyProducer{
		cfg:    cfg,
		client: client.NewLmstfyClient(cfg.Host, cfg.Port, cfg.Namespace, cfg.Token),
		logger: log,
	}
}

type publishResult struct {
	jobID string
	err   error
}

// Publish sends msg.Body as the job payload. lmstfy jobs carry no headers,
// so msg.Headers are not transmitted.
func (p *LmstfyProducer) Publish(ctx context.Context, queue string, msg Message) (err error) {
	ctx, span := tracing.StartPublish(ctx, constants.BrokerLmstfy, queue)
	defer func() { tracing.EndSpan(span, err) }()

	tries := p.cfg.Tries
	if tries == 0 {
		tries = 1
	}

	start := time.Now()
	done := make(chan publishResult, 1)
	go func() {
		jobID, err := p.client.Publish(queue, msg.Body, p.cfg.TTLSeconds, tries, 0)
		done <- publishResult{jobID: jobID, err: err}
	}()

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case res := <-done:
		err = res.err
		if err == nil {
			p.logger.DebugwCtx(ctx, "Job published", "queue", queue, "job_id", res.jobID)
		}
	}
	metrics.ObservePublish(constants.BrokerLmstfy, queue, err, time.Since(start))

	if err != nil {
		return fmt.Errorf("lmstfy publish failed: %w", err)
	}
	return nil
}

func (p *LmstfyProducer) Close() error {
	return nil
}

const maxTrackedDeliveries = 10000

// LmstfyConsumer pulls jobs one at a time. A job that is not acknowledged
// is redelivered by lmstfy once its TTR expires, which is how Requeue is
// carried out.
type LmstfyConsumer struct {
	cfg         config.LmstfyConfig
	client      *client.LmstfyClient
	logger      logger.Logger
	serviceName string
	deliveries  map[string]int
}

func NewLmstfyConsumer(cfg config.LmstfyConfig, log logger.Logger) *LmstfyConsumer {
	return &LmstfyConsumer{
		cfg:         cfg,
		client:      client.NewLmstfyClient(cfg.Host, cfg.Port, cfg.Namespace, cfg.Token),
		logger:      log,
		serviceName: "unknown",
		deliveries:  make(map[string]int),
	}
}

func (c *LmstfyConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *LmstfyConsumer) Consume(ctx context.Context, queue string, handler HandlerFunc) error {
	consumeCtx := logging.WithWorker(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming",
		"queue", queue,
		"namespace", c.cfg.Namespace,
		"ttr_seconds", c.cfg.TTRSeconds,
	)

	for {
		if ctx.Err() != nil {
			c.logger.InfowCtx(consumeCtx, "Stopped consuming", "queue", queue, "reason", "context canceled")
			return nil
		}

		job, err := c.client.Consume(queue, c.cfg.TTRSeconds, c.cfg.PollTimeoutSeconds)
		if err != nil {
			c.logger.WarnwCtx(consumeCtx, "Consume error, retrying",
				"error", err,
				"queue", queue,
			)
			if !sleepCtx(ctx, constants.ConsumeErrorBackoff) {
				return nil
			}
			continue
		}
		if job == nil {
			continue
		}
		if ctx.Err() != nil {
			// Not handled; lmstfy redelivers it after TTR.
			return nil
		}

		metrics.IncConsumed(constants.BrokerLmstfy, queue)
		if len(c.deliveries) > maxTrackedDeliveries {
			c.deliveries = make(map[string]int)
		}
		c.deliveries[job.ID]++
		msg := Message{
			ID:      job.ID,
			Body:    job.Data,
			Headers: map[string]string{},
			Attempt: c.deliveries[job.ID],
		}

		jobCtx, span := tracing.StartConsume(consumeCtx, constants.BrokerLmstfy, queue, job.ID, nil)
		disposition := invoke(jobCtx, c.logger, handler, msg)
		span.End()
		if disposition == Requeue {
			metrics.IncRequeued(constants.BrokerLmstfy, queue)
			c.logger.WarnwCtx(consumeCtx, "Job left unacknowledged for redelivery",
				"queue", queue,
				"job_id", job.ID,
				"redelivery_after_seconds", c.cfg.TTRSeconds,
			)
			continue
		}

		delete(c.deliveries, job.ID)
		if err := c.client.Ack(queue, job.ID); err != nil {
			// Redelivered after TTR and answered from the result store.
			c.logger.ErrorwCtx(consumeCtx, "Failed to ack job",
				"error", err,
				"queue", queue,
				"job_id", job.ID,
			)
		}
	}
}

func (c *LmstfyConsumer) Close() error {
	return nil
}
