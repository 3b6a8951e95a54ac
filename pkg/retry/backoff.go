package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"connectivity/internal/config"
)

// ExponentialBackoff returns an unbounded exponential policy. Attempt limits
// are enforced by the caller.
func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier float64) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if initialInterval > 0 {
		exp.InitialInterval = initialInterval
	}
	if maxInterval > 0 {
		exp.MaxInterval = maxInterval
	}
	if multiplier > 0 {
		exp.Multiplier = multiplier
	}
	exp.MaxElapsedTime = 0
	return exp
}

// TotalBackoffCeiling is the largest total sleep a policy can add between
// attempts, ignoring jitter below the randomization factor.
func TotalBackoffCeiling(policy Policy) time.Duration {
	var total time.Duration
	interval := float64(policy.InitialInterval)
	for i := 1; i < policy.MaxAttempts; i++ {
		d := time.Duration(interval * (1 + backoff.DefaultRandomizationFactor))
		if policy.MaxInterval > 0 && d > time.Duration(float64(policy.MaxInterval)*(1+backoff.DefaultRandomizationFactor)) {
			d = time.Duration(float64(policy.MaxInterval) * (1 + backoff.DefaultRandomizationFactor))
		}
		total += d
		interval *= policy.Multiplier
	}
	return total
}

// PolicyFromConfig overlays cfg on DefaultPolicy.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	policy := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	policy.MaxElapsedTime = cfg.MaxElapsedTime
	return policy
}
