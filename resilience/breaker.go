package resilience

import (
	"time"
)

// BreakerState is the circuit breaker's position.
type BreakerState int

const (
	// BreakerClosed allows execution; failures accumulate toward the
	// threshold.
	BreakerClosed BreakerState = iota
	// BreakerOpen blocks execution until the recovery timeout elapses.
	BreakerOpen
	// BreakerHalfOpen permits a single trial execution; its outcome closes
	// or re-opens the breaker.
	BreakerHalfOpen
)

// String returns the state's name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s BreakerState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// breaker is one stage's circuit breaker. It lives for the lifetime of the
// orchestrator instance, not one run, so repeated failures accumulate
// across initialize calls. Not safe for concurrent use on its own; the
// Manager's lock guards it.
type breaker struct {
	state           BreakerState
	failureCount    int
	lastFailureTime time.Time

	threshold       int
	recoveryTimeout time.Duration
}

// allow reports whether an execution attempt may proceed now. Once the
// recovery timeout elapses the open -> halfOpen transition grants exactly
// one trial attempt; further attempts are blocked until the trial's outcome
// re-closes or re-opens the breaker.
func (b *breaker) allow(now time.Time) bool {
	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if now.Sub(b.lastFailureTime) >= b.recoveryTimeout {
			b.state = BreakerHalfOpen
			return true
		}
		return false
	case BreakerHalfOpen:
		// The trial was handed out on the transition above.
		return false
	default:
		return false
	}
}

// recordSuccess resets the breaker to closed.
func (b *breaker) recordSuccess() {
	b.state = BreakerClosed
	b.failureCount = 0
}

// recordFailure counts a failure, opening the breaker at the threshold or
// re-opening it from half-open.
func (b *breaker) recordFailure(now time.Time) {
	b.failureCount++
	b.lastFailureTime = now
	if b.state == BreakerHalfOpen || b.failureCount >= b.threshold {
		b.state = BreakerOpen
	}
}
