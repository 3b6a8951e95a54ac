package broker

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"connectivity/internal/config"
	"connectivity/internal/logger"
)

func setupKafka(t *testing.T) []string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	ctx := context.Background()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	if err != nil {
		t.Fatalf("failed to start kafka container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	return brokers
}

func testKafkaConfig(brokers []string, group string) config.KafkaConfig {
	return config.KafkaConfig{
		Brokers: brokers,
		GroupID: group,
		Redelivery: config.RetryConfig{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

func publishEventually(t *testing.T, p Producer, topic string, msg Message) {
	t.Helper()
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.Publish(ctx, topic, msg) == nil
	}, 60*time.Second, time.Second)
}

func TestKafkaConsumer_RequeueRedeliversThenCommits(t *testing.T) {
	brokers := setupKafka(t)
	log := logger.NopLogger()
	topic := "work.requeue"

	producer := NewKafkaProducer(testKafkaConfig(brokers, ""), log)
	defer producer.Close()
	publishEventually(t, producer, topic, Message{Key: []byte("r1"), Body: []byte(`{"request_id":"r1"}`)})

	consumer := NewKafkaConsumer(testKafkaConfig(brokers, "requeue-group"), log)
	consumer.SetServiceName("test-worker")
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	var mu sync.Mutex
	var attempts []int
	err := consumer.Consume(ctx, topic, func(_ context.Context, msg Message) Disposition {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, msg.Attempt)
		assert.Equal(t, `{"request_id":"r1"}`, string(msg.Body))
		if msg.Attempt < 3 {
			return Requeue
		}
		cancel()
		return Ack
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)

	// The same group must not see the acknowledged message again.
	again := NewKafkaConsumer(testKafkaConfig(brokers, "requeue-group"), log)
	defer again.Close()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel2()

	seen := 0
	require.NoError(t, again.Consume(ctx2, topic, func(context.Context, Message) Disposition {
		seen++
		return Ack
	}))
	assert.Equal(t, 0, seen)
}

func TestKafkaConsumer_UnackedMessageSurvivesRestart(t *testing.T) {
	brokers := setupKafka(t)
	log := logger.NopLogger()
	topic := "work.restart"

	producer := NewKafkaProducer(testKafkaConfig(brokers, ""), log)
	defer producer.Close()
	publishEventually(t, producer, topic, Message{Key: []byte("r2"), Body: []byte(`{"request_id":"r2"}`)})

	first := NewKafkaConsumer(testKafkaConfig(brokers, "restart-group"), log)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	require.NoError(t, first.Consume(ctx, topic, func(context.Context, Message) Disposition {
		cancel()
		return Requeue
	}))
	require.NoError(t, first.Close())

	second := NewKafkaConsumer(testKafkaConfig(brokers, "restart-group"), log)
	defer second.Close()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel2()

	var got string
	require.NoError(t, second.Consume(ctx2, topic, func(_ context.Context, msg Message) Disposition {
		got = string(msg.Body)
		cancel2()
		return Ack
	}))
	assert.Equal(t, `{"request_id":"r2"}`, got)
}
