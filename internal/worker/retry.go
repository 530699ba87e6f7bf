package worker

import (
	"math"
	"time"
)

// RetryPolicy defines exponential backoff parameters for failed sync tasks.
type RetryPolicy struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the delay before the given attempt (1-based) may run
// again, with clamping. The first retry already doubles the initial delay so
// a flapping provider is not hammered.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = 30 * time.Second
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = time.Hour
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt))
	d := time.Duration(delay)
	if d > r.MaxDelay || d <= 0 {
		d = r.MaxDelay
	}
	return d
}
