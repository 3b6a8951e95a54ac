package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectivity/internal/broker"
	"connectivity/internal/config"
	"connectivity/internal/constants"
	"connectivity/internal/logger"
	"connectivity/internal/outcome"
	"connectivity/internal/publisher"
	"connectivity/internal/testinfra"
	"connectivity/internal/verification"
	"connectivity/pkg/models"
)

type capturingProducer struct {
	mu       sync.Mutex
	messages []broker.Message
}

func (p *capturingProducer) Publish(ctx context.Context, topic string, msg broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func (p *capturingProducer) events(t *testing.T) []models.OutcomeEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]models.OutcomeEvent, 0, len(p.messages))
	for _, msg := range p.messages {
		var e models.OutcomeEvent
		require.NoError(t, json.Unmarshal(msg.Body, &e))
		events = append(events, e)
	}
	return events
}

func testVerificationConfig(baseURL string) config.VerificationConfig {
	endpoint := func(path, method, rule string) config.EndpointConfig {
		return config.EndpointConfig{Path: path, Method: method, ApproveWhen: rule}
	}
	return config.VerificationConfig{
		BaseURL: baseURL,
		APIKey:  "k",
		Timeout: time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
			Multiplier:      2,
		},
		Affiliation: config.EndpointConfig{
			Path:              constants.DefaultAffiliationPath,
			Method:            http.MethodPost,
			ApproveWhen:       constants.DefaultAffiliationRule,
			RejectStatusCodes: []int{http.StatusConflict},
		},
		Document:       endpoint(constants.DefaultDocumentPath, http.MethodPut, constants.DefaultDocumentRule),
		Eligibility:    endpoint(constants.DefaultEligibilityPath, http.MethodGet, constants.DefaultEligibilityRule),
		OperatorName:   constants.DefaultOperatorName,
		DefaultAddress: constants.DefaultCitizenAddress,
	}
}

// newPipeline wires a worker to a real Postgres store and a real
// verification client talking to a fake centralizer.
func newPipeline(t *testing.T, centralizer http.HandlerFunc) (*Worker, outcome.Store, *capturingProducer) {
	t.Helper()
	db := testinfra.Postgres(t)
	store := outcome.NewPostgresStore(db)

	srv := httptest.NewServer(centralizer)
	t.Cleanup(srv.Close)

	client, err := verification.NewClient(testVerificationConfig(srv.URL), logger.NopLogger())
	require.NoError(t, err)

	producer := &capturingProducer{}
	pub := publisher.New(producer, store, constants.DefaultAffiliationOutcomeTopic, time.Second, logger.NopLogger())

	w := New(Options{
		Name:         constants.WorkerAffiliation,
		Kind:         models.KindAffiliation,
		Queue:        constants.DefaultAffiliationQueue,
		DrainTimeout: time.Second,
	}, nopConsumer{},
		verification.NewAffiliationVerifier(client, constants.DefaultOperatorName, constants.DefaultCitizenAddress),
		store, pub, logger.NopLogger())
	return w, store, producer
}

func TestPipeline_ApprovedThenRedelivered(t *testing.T) {
	var calls int32
	w, store, producer := newPipeline(t, func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		rw.WriteHeader(http.StatusCreated)
		rw.Write([]byte(`{"message":"created"}`))
	})
	ctx := context.Background()
	body := workItemBody(t, "r1", "S1")

	disposition, err := w.Process(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)

	stored, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, http.StatusCreated, stored.Detail.StatusCode)

	disposition, err = w.Process(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	events := producer.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].PublishAttempt)
	assert.Equal(t, 2, events[1].PublishAttempt)
	assert.Equal(t, events[0].Status, events[1].Status)
}

func TestPipeline_UnavailableThenRecovers(t *testing.T) {
	var calls int32
	var healthy atomic.Bool
	w, store, producer := newPipeline(t, func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if !healthy.Load() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusCreated)
	})
	ctx := context.Background()
	body := workItemBody(t, "r1", "S1")

	disposition, err := w.Process(ctx, body)
	require.Error(t, err)
	assert.Equal(t, broker.Requeue, disposition)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	_, err = store.Get(ctx, "r1")
	assert.ErrorIs(t, err, outcome.ErrNotFound)
	assert.Empty(t, producer.events(t))

	healthy.Store(true)
	disposition, err = w.Process(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)

	stored, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, stored.Status)
	require.Len(t, producer.events(t), 1)
}

func TestPipeline_RejectionIsTerminal(t *testing.T) {
	var calls int32
	w, store, producer := newPipeline(t, func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		rw.WriteHeader(http.StatusConflict)
		rw.Write([]byte(`{"message":"citizen already registered"}`))
	})
	ctx := context.Background()

	disposition, err := w.Process(ctx, workItemBody(t, "r2", "S2"))
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	stored, err := store.Get(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
	require.Len(t, producer.events(t), 1)
}
