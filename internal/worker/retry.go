package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy is the exponential backoff applied to failed outbox tasks.
// Jitter adds up to that fraction of the delay on top.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
}

// withDefaults fills the zero fields used by the outbox worker.
func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries <= 0 {
		r.MaxRetries = 5
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = 2 * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = time.Minute
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}
	return r
}

// Exhausted reports whether a task failing for the attempt-th time goes to the dead letter list.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return r.MaxRetries > 0 && attempt >= r.MaxRetries
}

// NextDelay returns the wait before the attempt-th retry (1-based), capped at MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	base := r.InitialDelay
	if base <= 0 {
		base = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := float64(base) * math.Pow(factor, float64(attempt-1))
	if r.Jitter > 0 {
		delay *= 1 + r.Jitter*rand.Float64()
	}
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		return r.MaxDelay
	}
	if delay <= 0 || delay > math.MaxInt64 {
		return base
	}
	return time.Duration(delay)
}
