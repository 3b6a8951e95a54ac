package outcome

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectivity/internal/config"
	"connectivity/pkg/circuitbreaker"
	"connectivity/pkg/models"
)

type stubStore struct {
	putResult PutResult
	putErr    error
	getErr    error
	calls     int
}

func (s *stubStore) PutIfAbsent(ctx context.Context, o *models.Outcome) (PutResult, error) {
	s.calls++
	return s.putResult, s.putErr
}

func (s *stubStore) Get(ctx context.Context, requestID string) (*models.Outcome, error) {
	s.calls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	return sampleOutcome(requestID, models.StatusApproved), nil
}

func (s *stubStore) RecordPublish(ctx context.Context, requestID string) (int, error) {
	s.calls++
	return 7, nil
}

func breakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
}

func TestCircuitBreakerStore_Disabled(t *testing.T) {
	inner := &stubStore{}
	store := NewCircuitBreakerStore(inner, "test-disabled", config.CircuitBreakerConfig{})

	attempt, err := store.RecordPublish(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 7, attempt)
	assert.Equal(t, "disabled", store.State())
	assert.False(t, store.IsOpen())
}

func TestCircuitBreakerStore_OpensOnBackendFailures(t *testing.T) {
	inner := &stubStore{getErr: errors.New("connection refused")}
	store := NewCircuitBreakerStore(inner, "test-open", breakerConfig())

	for i := 0; i < 2; i++ {
		_, err := store.Get(context.Background(), "r1")
		require.Error(t, err)
	}
	assert.True(t, store.IsOpen())

	_, err := store.Get(context.Background(), "r1")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, inner.calls)
}

func TestCircuitBreakerStore_MissesAndConflictsKeepBreakerClosed(t *testing.T) {
	existing := sampleOutcome("r1", models.StatusApproved)
	inner := &stubStore{
		getErr:    ErrNotFound,
		putResult: PutResult{Existing: existing},
		putErr:    ErrConflict,
	}
	store := NewCircuitBreakerStore(inner, "test-closed", breakerConfig())

	for i := 0; i < 4; i++ {
		_, err := store.Get(context.Background(), "r1")
		assert.ErrorIs(t, err, ErrNotFound)

		result, err := store.PutIfAbsent(context.Background(), sampleOutcome("r1", models.StatusRejected))
		assert.ErrorIs(t, err, ErrConflict)
		assert.Same(t, existing, result.Existing)
	}
	assert.False(t, store.IsOpen())
}

func TestCircuitBreakerStore_InvalidOutcomesKeepBreakerClosed(t *testing.T) {
	inner := &stubStore{putErr: ErrInvalidOutcome}
	store := NewCircuitBreakerStore(inner, "test-invalid", breakerConfig())

	for i := 0; i < 4; i++ {
		_, err := store.PutIfAbsent(context.Background(), sampleOutcome("r1", models.StatusError))
		assert.ErrorIs(t, err, ErrInvalidOutcome)
	}
	assert.False(t, store.IsOpen())
	assert.Equal(t, 4, inner.calls)
}
