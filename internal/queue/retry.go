package queue

import (
	"math/rand/v2"
	"time"
)

// Default re-enqueue schedule. Kept short of the reconciliation interval so a
// queued retry normally lands before the content is rediscovered.
var retrySchedule = []time.Duration{
	15 * time.Second,
	1 * time.Minute,
	3 * time.Minute,
}

// RetryStrategy implements stepped backoff with jitter for message retries.
type RetryStrategy struct {
	MaxRetries int
	Schedule   []time.Duration

	// jitter returns a factor in [0.5, 1.0).
	jitter func() float64
}

// NewRetryStrategy creates a RetryStrategy with the default schedule and the
// given maximum retry count.
func NewRetryStrategy(maxRetries int) *RetryStrategy {
	return &RetryStrategy{
		MaxRetries: maxRetries,
		Schedule:   retrySchedule,
		jitter:     func() float64 { return 0.5 + rand.Float64()*0.5 },
	}
}

// ShouldRetry returns true if the message has not exhausted its retry budget.
func (r *RetryStrategy) ShouldRetry(retryCount int) bool {
	return retryCount < r.MaxRetries
}

// NextBackoff returns the jittered backoff for the given retry attempt. Attempts
// past the end of the schedule reuse its last step.
func (r *RetryStrategy) NextBackoff(retryCount int) time.Duration {
	if len(r.Schedule) == 0 {
		return 0
	}
	idx := min(max(retryCount, 0), len(r.Schedule)-1)
	return time.Duration(float64(r.Schedule[idx]) * r.jitter())
}
