package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectivity/internal/broker"
	"connectivity/internal/constants"
	"connectivity/internal/logger"
	"connectivity/internal/outcome"
	"connectivity/internal/verification"
	"connectivity/pkg/models"
)

type memStore struct {
	mu        sync.Mutex
	outcomes  map[string]*models.Outcome
	getErr    error
	putErr    error
	forceMiss bool
	puts      int
}

func newMemStore() *memStore {
	return &memStore{outcomes: map[string]*models.Outcome{}}
}

func (s *memStore) PutIfAbsent(ctx context.Context, o *models.Outcome) (outcome.PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return outcome.PutResult{}, s.putErr
	}
	if existing, ok := s.outcomes[o.RequestID]; ok {
		if existing.SameContent(o) {
			return outcome.PutResult{Existing: existing}, nil
		}
		return outcome.PutResult{Existing: existing}, fmt.Errorf("%w: %s", outcome.ErrConflict, o.RequestID)
	}
	stored := *o
	s.outcomes[o.RequestID] = &stored
	return outcome.PutResult{Stored: true}, nil
}

func (s *memStore) Get(ctx context.Context, requestID string) (*models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	o, ok := s.outcomes[requestID]
	if !ok || s.forceMiss {
		return nil, outcome.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *memStore) RecordPublish(ctx context.Context, requestID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[requestID]
	if !ok {
		return 0, outcome.ErrNotFound
	}
	o.PublishAttempts++
	return o.PublishAttempts, nil
}

func (s *memStore) get(requestID string) *models.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes[requestID]
}

type fakeVerifier struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, item *models.WorkItem) (*verification.Response, error)
}

func (v *fakeVerifier) Verify(ctx context.Context, item *models.WorkItem) (*verification.Response, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()
	return v.fn(ctx, item)
}

func (v *fakeVerifier) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func approve(ctx context.Context, item *models.WorkItem) (*verification.Response, error) {
	return &verification.Response{StatusCode: 201, Body: json.RawMessage(`{"ok":true}`), Attempts: 1}, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	store  *memStore
	events []models.OutcomeEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, o *models.Outcome) error {
	attempt, err := p.store.RecordPublish(ctx, o.RequestID)
	if err != nil {
		return err
	}
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, models.NewOutcomeEvent(o, attempt))
	return nil
}

func (p *fakePublisher) published() []models.OutcomeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OutcomeEvent(nil), p.events...)
}

type nopConsumer struct{}

func (nopConsumer) Consume(ctx context.Context, queue string, handler broker.HandlerFunc) error {
	<-ctx.Done()
	return nil
}
func (nopConsumer) Close() error          { return nil }
func (nopConsumer) SetServiceName(string) {}

type harness struct {
	worker    *Worker
	store     *memStore
	verifier  *fakeVerifier
	publisher *fakePublisher
}

func newHarness(t *testing.T, verify func(ctx context.Context, item *models.WorkItem) (*verification.Response, error)) *harness {
	t.Helper()
	store := newMemStore()
	verifier := &fakeVerifier{fn: verify}
	publisher := &fakePublisher{store: store}
	w := New(Options{
		Name:         constants.WorkerAffiliation,
		Kind:         models.KindAffiliation,
		Queue:        constants.DefaultAffiliationQueue,
		DrainTimeout: time.Second,
	}, nopConsumer{}, verifier, store, publisher, logger.NopLogger())
	return &harness{worker: w, store: store, verifier: verifier, publisher: publisher}
}

func workItemBody(t *testing.T, requestID, subject string) []byte {
	t.Helper()
	item, err := models.NewWorkItemBuilder(models.KindAffiliation).
		WithRequestID(requestID).
		WithSubject(subject).
		WithPayload(models.AffiliationPayload{CitizenID: 1032, Name: "Ana", Email: "ana@example.com"}).
		Build()
	require.NoError(t, err)
	body, err := json.Marshal(item)
	require.NoError(t, err)
	return body
}

func TestProcess_ApprovedOutcomeStoredPublishedAcked(t *testing.T) {
	h := newHarness(t, approve)

	disposition, err := h.worker.Process(context.Background(), workItemBody(t, "r1", "S1"))
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)

	stored := h.store.get("r1")
	require.NotNil(t, stored)
	assert.Equal(t, models.StatusApproved, stored.Status)
	assert.Equal(t, "S1", stored.SubjectReference)

	events := h.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, "r1", events[0].RequestID)
	assert.Equal(t, models.StatusApproved, events[0].Status)
	assert.Equal(t, 1, events[0].PublishAttempt)
}

func TestProcess_RedeliveryRepublishesWithoutCallingAPI(t *testing.T) {
	h := newHarness(t, approve)
	body := workItemBody(t, "r1", "S1")

	_, err := h.worker.Process(context.Background(), body)
	require.NoError(t, err)

	disposition, err := h.worker.Process(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)

	assert.Equal(t, 1, h.verifier.callCount())
	events := h.publisher.published()
	require.Len(t, events, 2)
	assert.Equal(t, events[0].Status, events[1].Status)
	assert.Equal(t, 2, events[1].PublishAttempt)
}

func TestProcess_TerminalVerificationOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus models.OutcomeStatus
		wantClass  string
	}{
		{
			name:       "rejected",
			err:        &verification.Error{Class: verification.ClassRejected, StatusCode: 200, Message: "approval rule not satisfied"},
			wantStatus: models.StatusRejected,
		},
		{
			name:       "timeout after retries",
			err:        &verification.Error{Class: verification.ClassTimeout, Message: "no response within 10s", Attempts: 3},
			wantStatus: models.StatusError,
			wantClass:  "timeout",
		},
		{
			name:       "unavailable after retries",
			err:        &verification.Error{Class: verification.ClassUnavailable, StatusCode: 503, Message: "centralizer unavailable", Attempts: 3},
			wantStatus: models.StatusError,
			wantClass:  "unavailable",
		},
		{
			name:       "invalid request",
			err:        &verification.Error{Class: verification.ClassInvalidRequest, StatusCode: 400, Message: "request refused"},
			wantStatus: models.StatusError,
			wantClass:  "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(ctx context.Context, item *models.WorkItem) (*verification.Response, error) {
				return nil, tt.err
			})

			disposition, err := h.worker.Process(context.Background(), workItemBody(t, "r1", "S1"))
			require.NoError(t, err)
			assert.Equal(t, broker.Ack, disposition)

			stored := h.store.get("r1")
			require.NotNil(t, stored)
			assert.Equal(t, tt.wantStatus, stored.Status)
			assert.Equal(t, tt.wantClass, stored.Detail.ErrorClass)
			assert.Len(t, h.publisher.published(), 1)
		})
	}
}

func TestProcess_PoisonMessagesAreAcked(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "not json", body: []byte("{not json")},
		{name: "missing request id", body: []byte(`{"kind":"affiliation","payload":{"citizen_id":1}}`)},
		{name: "request id too long", body: []byte(`{"request_id":"` + strings.Repeat("r", 300) + `","kind":"affiliation","payload":{"citizen_id":1}}`)},
		{name: "request id with nul", body: []byte(`{"request_id":"r\u00009","kind":"affiliation","payload":{"citizen_id":1}}`)},
		{name: "foreign kind", body: []byte(`{"request_id":"r9","kind":"document_authentication","payload":{"citizen_id":1}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, approve)

			disposition, err := h.worker.Process(context.Background(), tt.body)
			assert.NoError(t, err)
			assert.Equal(t, broker.Ack, disposition)
			assert.Equal(t, 0, h.verifier.callCount())
			assert.Equal(t, 0, h.store.puts)
			assert.Empty(t, h.publisher.published())
		})
	}
}

func TestProcess_InvalidEnvelopeStoresErrorOutcome(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantSubject string
		wantField   string
	}{
		{
			name:        "missing payload",
			body:        `{"request_id":"r7","kind":"affiliation","subject_reference":"S7"}`,
			wantSubject: "S7",
			wantField:   "payload",
		},
		{
			name:        "unknown kind",
			body:        `{"request_id":"r7","kind":"passport","subject_reference":"S7","payload":{"citizen_id":1}}`,
			wantSubject: "S7",
			wantField:   "kind",
		},
		{
			name:      "subject reference too long",
			body:      `{"request_id":"r7","kind":"affiliation","subject_reference":"` + strings.Repeat("s", 300) + `","payload":{"citizen_id":1}}`,
			wantField: "subject_reference",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, approve)

			disposition, err := h.worker.Process(context.Background(), []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, broker.Ack, disposition)
			assert.Equal(t, 0, h.verifier.callCount())

			stored := h.store.get("r7")
			require.NotNil(t, stored)
			assert.Equal(t, models.StatusError, stored.Status)
			assert.Equal(t, string(verification.ClassInvalidRequest), stored.Detail.ErrorClass)
			assert.Equal(t, models.KindAffiliation, stored.Kind)
			assert.Equal(t, tt.wantSubject, stored.SubjectReference)
			assert.Contains(t, stored.Detail.Message, tt.wantField)

			events := h.publisher.published()
			require.Len(t, events, 1)
			assert.Equal(t, "r7", events[0].RequestID)

			disposition, err = h.worker.Process(context.Background(), []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, broker.Ack, disposition)
			assert.Len(t, h.publisher.published(), 2)
		})
	}
}

func TestProcess_UnstorableOutcomeIsAckedOnce(t *testing.T) {
	h := newHarness(t, approve)
	h.store.putErr = fmt.Errorf("%w: value too long for type character varying(255)", outcome.ErrInvalidOutcome)

	disposition, err := h.worker.Process(context.Background(), workItemBody(t, "r1", "S1"))
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)
	assert.Equal(t, 1, h.verifier.callCount())
	assert.Empty(t, h.publisher.published())
}

func TestProcess_InvalidPayloadPersistsError(t *testing.T) {
	h := newHarness(t, nil)
	h.verifier.fn = func(ctx context.Context, item *models.WorkItem) (*verification.Response, error) {
		return nil, &verification.Error{Class: verification.ClassInvalidRequest, Message: "invalid affiliation payload"}
	}

	body := []byte(`{"request_id":"r2","kind":"affiliation","subject_reference":"S2","payload":{"citizen_id":-1}}`)
	disposition, err := h.worker.Process(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)
	assert.Equal(t, models.StatusError, h.store.get("r2").Status)
}

func TestProcess_ConflictIsAckedWithoutPublish(t *testing.T) {
	h := newHarness(t, approve)
	h.store.outcomes["r1"] = &models.Outcome{
		RequestID:        "r1",
		Kind:             models.KindAffiliation,
		SubjectReference: "S1",
		Status:           models.StatusRejected,
		Detail:           models.OutcomeDetail{StatusCode: 200, Message: "approval rule not satisfied"},
	}
	h.store.forceMiss = true

	disposition, err := h.worker.Process(context.Background(), workItemBody(t, "r1", "S1"))
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)
	assert.Empty(t, h.publisher.published())
	assert.Equal(t, models.StatusRejected, h.store.get("r1").Status)
}

func TestProcess_LostInsertRacePublishesStoredOutcome(t *testing.T) {
	h := newHarness(t, approve)
	h.store.outcomes["r1"] = &models.Outcome{
		RequestID:        "r1",
		Kind:             models.KindAffiliation,
		SubjectReference: "S1",
		Status:           models.StatusApproved,
		Detail:           models.OutcomeDetail{StatusCode: 201, Message: "approved by centralizer", Response: json.RawMessage(`{"ok": true}`)},
		CompletedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	h.store.forceMiss = true

	disposition, err := h.worker.Process(context.Background(), workItemBody(t, "r1", "S1"))
	require.NoError(t, err)
	assert.Equal(t, broker.Ack, disposition)

	events := h.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), events[0].CompletedAt)
}

func TestProcess_TransientFailuresRequeue(t *testing.T) {
	t.Run("lookup failure skips the API", func(t *testing.T) {
		h := newHarness(t, approve)
		h.store.getErr = errors.New("connection reset")

		disposition, err := h.worker.Process(context.Background(), workItemBody(t, "r1", "S1"))
		assert.Error(t, err)
		assert.Equal(t, broker.Requeue, disposition)
		assert.Equal(t, 0, h.verifier.callCount())
	})

	t.Run("persist failure skips publish", func(t *testing.T) {
		h := newHarness(t, approve)
		h.store.putErr = errors.New("connection reset")

		disposition, err := h.worker.Process(context.Background(), workItemBody(t, "r1", "S1"))
		assert.Error(t, err)
		assert.Equal(t, broker.Requeue, disposition)
		assert.Empty(t, h.publisher.published())
	})

	t.Run("publish failure then redelivery", func(t *testing.T) {
		h := newHarness(t, approve)
		h.publisher.err = errors.New("broker down")
		body := workItemBody(t, "r1", "S1")

		disposition, err := h.worker.Process(context.Background(), body)
		assert.Error(t, err)
		assert.Equal(t, broker.Requeue, disposition)
		require.NotNil(t, h.store.get("r1"))

		h.publisher.err = nil
		disposition, err = h.worker.Process(context.Background(), body)
		require.NoError(t, err)
		assert.Equal(t, broker.Ack, disposition)
		assert.Equal(t, 1, h.verifier.callCount())

		events := h.publisher.published()
		require.Len(t, events, 1)
		assert.Equal(t, 2, events[0].PublishAttempt)
	})
}

func TestProcess_AbortedVerificationRequeuesWithoutPersisting(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, item *models.WorkItem) (*verification.Response, error) {
		return nil, fmt.Errorf("register_citizen aborted: %w", context.Canceled)
	})

	disposition, err := h.worker.Process(context.Background(), workItemBody(t, "r1", "S1"))
	assert.Error(t, err)
	assert.Equal(t, broker.Requeue, disposition)
	assert.Nil(t, h.store.get("r1"))
	assert.Empty(t, h.publisher.published())
}

func TestHandle_InFlightWorkFinishesWithinDrainWindow(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, item *models.WorkItem) (*verification.Response, error) {
		select {
		case <-release:
			return approve(ctx, item)
		case <-ctx.Done():
			return nil, fmt.Errorf("aborted: %w", ctx.Err())
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan broker.Disposition, 1)
	go func() {
		done <- h.worker.handle(ctx, broker.Message{ID: "m1", Body: workItemBody(t, "r1", "S1"), Attempt: 1})
	}()

	require.Eventually(t, func() bool { return h.verifier.callCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case disposition := <-done:
		assert.Equal(t, broker.Ack, disposition)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return")
	}
	require.NotNil(t, h.store.get("r1"))
	assert.Len(t, h.publisher.published(), 1)
}

func TestHandle_DrainTimeoutRequeues(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, item *models.WorkItem) (*verification.Response, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("aborted: %w", ctx.Err())
	})
	h.worker.drainTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan broker.Disposition, 1)
	go func() {
		done <- h.worker.handle(ctx, broker.Message{ID: "m1", Body: workItemBody(t, "r1", "S1"), Attempt: 1})
	}()

	require.Eventually(t, func() bool { return h.verifier.callCount() == 1 }, time.Second, 5*time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case disposition := <-done:
		assert.Equal(t, broker.Requeue, disposition)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return")
	}
	assert.Nil(t, h.store.get("r1"))
}

func TestRun_StopsCleanlyOnCancel(t *testing.T) {
	h := newHarness(t, approve)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.worker.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
