// Package resilience contains the failure-containment policy for stage
// execution: a per-stage circuit breaker, an exponential-backoff retry
// policy, error severity classification, and a bounded record of recent
// failures. The execution coordinator consults this package before and
// after every stage attempt; the policy itself never schedules anything.
package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/nomis52/goinit/stage"
)

// ErrBreakerOpen is returned when a stage's circuit breaker blocks an
// execution attempt.
var ErrBreakerOpen = errors.New("circuit breaker open")

// StageError wraps a stage failure with its classification and context.
type StageError struct {
	Stage    stage.ID
	Err      error
	Severity stage.Severity
	// Context carries free-form diagnostic details (attempt number,
	// strategy, group).
	Context map[string]string
	// Timestamp is when the failure was recorded.
	Timestamp time.Time
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s [%s]: %v", e.Stage, e.Severity, e.Err)
}

// Unwrap exposes the underlying error to errors.Is/As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// FailureAction is the resolved disposition of a stage failure.
type FailureAction int

const (
	// ActionRetry re-attempts the stage after a backoff delay.
	ActionRetry FailureAction = iota
	// ActionContinue records the failure and moves on; the run proceeds.
	ActionContinue
	// ActionCriticalFailure fails the stage terminally; if the stage is
	// critical, the whole run aborts.
	ActionCriticalFailure
	// ActionAbort aborts the whole run regardless of remaining work.
	ActionAbort
)

// String returns the action's name.
func (a FailureAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionContinue:
		return "continue"
	case ActionCriticalFailure:
		return "critical_failure"
	case ActionAbort:
		return "abort"
	default:
		return "unknown"
	}
}
