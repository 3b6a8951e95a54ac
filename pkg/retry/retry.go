package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retryable is implemented by errors that know whether another attempt
// could succeed.
type Retryable interface {
	IsRetryable() bool
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// Phase is the state of one retried operation.
type Phase int

const (
	PhaseAttempting Phase = iota
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseAttempting:
		return "attempting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Decision int

const (
	DecisionRetry Decision = iota
	DecisionStop
)

// State is a snapshot of the machine. Attempt counts completed attempts.
type State struct {
	Phase   Phase
	Attempt int
	Err     error
}

// Classify reports whether err may be retried. Permanent errors and
// cancellation never are. Errors that do not say otherwise are.
func Classify(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	var r Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

// Decide is the transition function: after attempt number attempt ended
// with err, either retry or stop.
func Decide(err error, attempt, maxAttempts int) Decision {
	if err == nil || !Classify(err) || attempt >= maxAttempts {
		return DecisionStop
	}
	return DecisionRetry
}

// Next applies the outcome of one attempt to s.
func (s State) Next(err error, maxAttempts int) State {
	next := State{Phase: PhaseAttempting, Attempt: s.Attempt + 1, Err: err}
	if err == nil {
		next.Phase = PhaseSucceeded
		return next
	}
	if Decide(err, next.Attempt, maxAttempts) == DecisionStop {
		next.Phase = PhaseFailed
	}
	return next
}

// Do drives fn through the state machine until it succeeds or fails for
// good. It stops on a permanent error, after policy.MaxAttempts, when the
// next sleep would pass policy.MaxElapsedTime, or when ctx is done.
// onRetry, when set, is called before each backoff sleep.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error, onRetry func(attempt int, err error, nextDelay time.Duration)) (State, error) {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	b := ExponentialBackoff(policy.InitialInterval, policy.MaxInterval, policy.Multiplier)
	b.Reset()

	start := time.Now()
	var state State
	for {
		state = state.Next(fn(ctx, state.Attempt+1), policy.MaxAttempts)
		if state.Phase != PhaseAttempting {
			return state, state.Err
		}

		delay := b.NextBackOff()
		if policy.MaxElapsedTime > 0 && time.Since(start)+delay > policy.MaxElapsedTime {
			state.Phase = PhaseFailed
			return state, state.Err
		}
		if onRetry != nil {
			onRetry(state.Attempt, state.Err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			state.Phase = PhaseFailed
			return state, fmt.Errorf("%w (last error: %v)", ctx.Err(), state.Err)
		case <-timer.C:
		}
	}
}
