package resilience

import (
	"math/rand"
	"time"
)

// RetryPolicy computes backoff delays for re-attempted stages.
type RetryPolicy struct {
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
	// BaseDelay is the first retry's delay and the lower clamp.
	BaseDelay time.Duration
	// MaxDelay is the upper clamp.
	MaxDelay time.Duration
	// rand returns the jitter factor; overridable in tests.
	rand func() float64
}

// DefaultRetryPolicy returns the standard policy: 3 retries, 500ms base,
// 10s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// Delay returns the backoff before the given attempt (1-based):
// baseDelay * 2^(attempt-1), scaled by jitter in [0.5, 1.0] and clamped to
// [BaseDelay, MaxDelay]. The result is non-decreasing in attempt number.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := p.BaseDelay
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxDelay {
			backoff = p.MaxDelay
			break
		}
	}

	jitter := 0.5 + 0.5*p.jitter()
	delay := time.Duration(float64(backoff) * jitter)

	if delay < p.BaseDelay {
		delay = p.BaseDelay
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) jitter() float64 {
	if p.rand != nil {
		return p.rand()
	}
	return rand.Float64()
}

// retryState tracks per-run, per-stage attempt bookkeeping. Reset on stage
// success.
type retryState struct {
	attempts        int
	lastAttemptTime time.Time
}
