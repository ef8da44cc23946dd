package orchestrator

import (
	"fmt"
	"time"

	"github.com/nomis52/goinit/progress"
	"github.com/nomis52/goinit/stage"
)

// Result aggregates the outcome of one Initialize call.
type Result struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`
	// Strategy is the strategy that actually ran (resolved, for adaptive).
	Strategy Strategy `json:"strategy"`
	// StartedAt and EndedAt bound the run.
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	// StageResults holds the execution result of every attempted stage.
	// Stages whose dependencies never completed are absent.
	StageResults map[stage.ID]stage.ExecutionResult `json:"stage_results"`
	// Skipped lists stages that were scheduled but never attempted because
	// an upstream non-critical failure made them unreachable.
	Skipped []stage.ID `json:"skipped,omitempty"`
	// FailedCritical names the critical stage that aborted the run, empty
	// when the run completed.
	FailedCritical stage.ID `json:"failed_critical,omitempty"`
	// Metrics summarizes stage timings for the run.
	Metrics progress.RunMetrics `json:"metrics"`
}

// Duration returns the run's wall-clock time.
func (r *Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Succeeded reports whether no critical stage failed. Non-critical failures
// are contained and do not fail a run.
func (r *Result) Succeeded() bool {
	return r.FailedCritical == ""
}

// RunError wraps a critical-stage failure together with the partial results
// accumulated before the run aborted, so the caller can decide on an
// application-level fallback.
type RunError struct {
	// Stage is the critical stage whose terminal failure aborted the run.
	Stage stage.ID
	// Cause is the stage's terminal error.
	Cause error
	// Result carries the partial stage results and elapsed duration.
	Result *Result
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("initialization aborted: critical stage %s failed after %s: %v",
		e.Stage, e.Result.Duration().Round(time.Millisecond), e.Cause)
}

// Unwrap exposes the underlying stage error.
func (e *RunError) Unwrap() error {
	return e.Cause
}
