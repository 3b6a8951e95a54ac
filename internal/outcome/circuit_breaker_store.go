package outcome

import (
	"context"
	"errors"

	"connectivity/internal/config"
	"connectivity/pkg/circuitbreaker"
	"connectivity/pkg/models"
)

// CircuitBreakerStore fails fast while the backing store is down. Conflicts
// and misses are answers from a healthy store.
type CircuitBreakerStore struct {
	store   Store
	breaker *circuitbreaker.Breaker
}

func NewCircuitBreakerStore(store Store, name string, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	return &CircuitBreakerStore{
		store: store,
		breaker: circuitbreaker.New(name, cfg, func(err error) bool {
			return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidOutcome) ||
				errors.Is(err, context.Canceled)
		}),
	}
}

// PutIfAbsent keeps the Existing outcome that accompanies ErrConflict.
func (s *CircuitBreakerStore) PutIfAbsent(ctx context.Context, outcome *models.Outcome) (PutResult, error) {
	return circuitbreaker.Execute(ctx, s.breaker, func(ctx context.Context) (PutResult, error) {
		return s.store.PutIfAbsent(ctx, outcome)
	})
}

func (s *CircuitBreakerStore) Get(ctx context.Context, requestID string) (*models.Outcome, error) {
	return circuitbreaker.Execute(ctx, s.breaker, func(ctx context.Context) (*models.Outcome, error) {
		return s.store.Get(ctx, requestID)
	})
}

func (s *CircuitBreakerStore) RecordPublish(ctx context.Context, requestID string) (int, error) {
	return circuitbreaker.Execute(ctx, s.breaker, func(ctx context.Context) (int, error) {
		return s.store.RecordPublish(ctx, requestID)
	})
}

func (s *CircuitBreakerStore) State() string {
	return s.breaker.State()
}

func (s *CircuitBreakerStore) IsOpen() bool {
	return s.breaker.IsOpen()
}
