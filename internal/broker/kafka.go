package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"connectivity/internal/config"
	"connectivity/internal/constants"
	"connectivity/internal/logger"
	"connectivity/pkg/logging"
	"connectivity/pkg/metrics"
	"connectivity/pkg/retry"
	"connectivity/pkg/tracing"
)

type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log}
}

// Publish returns only after every in-sync replica has the message.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, msg Message) (err error) {
	ctx, span := tracing.StartPublish(ctx, constants.BrokerKafka, topic)
	defer func() { tracing.EndSpan(span, err) }()

	carried := tracing.InjectHeaders(ctx, msg.Headers)
	headers := make([]kafka.Header, 0, len(carried))
	for k, v := range carried {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     msg.Key,
			Value:   msg.Body,
			Headers: headers,
			Time:    start,
		},
	)
	metrics.ObservePublish(constants.BrokerKafka, topic, err, time.Since(start))

	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	mu          sync.Mutex
	reader      *kafka.Reader
	logger      logger.Logger
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
	}
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	consumeCtx := logging.WithWorker(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		GroupID:     c.cfg.GroupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", topic,
					"reason", "context canceled",
				)
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("kafka reader for %s closed: %w", topic, err)
			}
			c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			if !sleepCtx(ctx, constants.ConsumeErrorBackoff) {
				return nil
			}
			continue
		}

		metrics.IncConsumed(constants.BrokerKafka, topic)
		c.deliver(consumeCtx, reader, m, handler)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// deliver hands m to handler until it is acknowledged or ctx ends. A
// requeued message is not committed, so a restarted consumer group resumes
// from it.
func (c *KafkaConsumer) deliver(ctx context.Context, reader *kafka.Reader, m kafka.Message, handler HandlerFunc) {
	redelivery := c.cfg.Redelivery
	b := retry.ExponentialBackoff(redelivery.InitialInterval, redelivery.MaxInterval, redelivery.Multiplier)
	b.Reset()

	msg := Message{
		ID:      m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10),
		Key:     m.Key,
		Body:    m.Value,
		Headers: make(map[string]string, len(m.Headers)),
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}

	msgCtx, span := tracing.StartConsume(ctx, constants.BrokerKafka, m.Topic, msg.ID, msg.Headers)
	defer span.End()

	for attempt := 1; ; attempt++ {
		msg.Attempt = attempt
		if invoke(msgCtx, c.logger, handler, msg) == Ack {
			commitCtx, cancel := settleContext(msgCtx)
			if err := reader.CommitMessages(commitCtx, m); err != nil {
				c.logger.ErrorwCtx(msgCtx, "Failed to commit message",
					"error", err,
					"message_id", msg.ID,
				)
			}
			cancel()
			return
		}

		metrics.IncRequeued(constants.BrokerKafka, m.Topic)
		delay := b.NextBackOff()
		c.logger.WarnwCtx(msgCtx, "Message requeued",
			"message_id", msg.ID,
			"attempt", attempt,
			"next_delivery_in", delay,
		)
		if !sleepCtx(ctx, delay) {
			c.logger.InfowCtx(msgCtx, "Leaving message uncommitted for redelivery after restart",
				"message_id", msg.ID,
			)
			return
		}
	}
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
