// Package circuitbreaker guards calls to a dependency with a gobreaker
// circuit and exports its state as prometheus metrics.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"connectivity/internal/config"
	"connectivity/pkg/metrics"
)

// ErrOpen is returned, wrapped with the breaker name, when a call is
// refused without reaching the dependency.
var ErrOpen = errors.New("circuit breaker is open")

const (
	defaultMaxRequests  = 3
	defaultWindow       = 60 * time.Second
	defaultOpenFor      = 60 * time.Second
	defaultMinRequests  = 3
	defaultFailureRatio = 0.5
)

// Classifier reports whether err means the dependency is healthy. An
// answer the caller did not like, such as a not-found, is still a success.
type Classifier func(err error) bool

// Breaker is a named circuit. A nil *Breaker lets every call through, which
// is how a disabled breaker is represented.
type Breaker struct {
	cb      *gobreaker.CircuitBreaker
	healthy Classifier
}

// New returns nil when cfg is not enabled.
func New(name string, cfg config.CircuitBreakerConfig, healthy Classifier) *Breaker {
	if !cfg.Enabled {
		return nil
	}

	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = defaultMinRequests
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = defaultFailureRatio
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: orDefault(cfg.MaxRequests, defaultMaxRequests),
		Interval:    orDefaultDuration(cfg.Interval, defaultWindow),
		Timeout:     orDefaultDuration(cfg.Timeout, defaultOpenFor),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			setState(name, to)
		},
	}
	if healthy != nil {
		settings.IsSuccessful = func(err error) bool { return healthy(err) }
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	setState(name, cb.State())
	return &Breaker{cb: cb, healthy: healthy}
}

// Execute runs fn through b. fn's result is returned even alongside its
// error, so callers that pair a value with a sentinel error keep both.
func Execute[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if b == nil {
		return fn(ctx)
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		var callErr error
		out, callErr = fn(ctx)
		return nil, callErr
	})
	b.record(err)

	if isRefusal(err) {
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrOpen, b.cb.Name(), err)
	}
	return out, err
}

func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}
	return b.cb.Name()
}

// State is "disabled" for a nil Breaker.
func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

func (b *Breaker) IsOpen() bool {
	return b != nil && b.cb.State() == gobreaker.StateOpen
}

func isRefusal(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (b *Breaker) record(err error) {
	name := b.cb.Name()
	metrics.CircuitBreakerRequests.WithLabelValues(name, b.cb.State().String()).Inc()
	if err == nil {
		return
	}
	if isRefusal(err) || b.healthy == nil || !b.healthy(err) {
		metrics.CircuitBreakerFailures.WithLabelValues(name).Inc()
	}
}

func setState(name string, state gobreaker.State) {
	value := map[gobreaker.State]float64{
		gobreaker.StateClosed:   0,
		gobreaker.StateHalfOpen: 1,
		gobreaker.StateOpen:     2,
	}[state]
	metrics.CircuitBreakerState.WithLabelValues(name).Set(value)
}

func orDefault(v, def uint32) uint32 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
