package stage

import "time"

// Status is the terminal outcome of a stage execution.
type Status int

const (
	// StatusCompleted indicates the stage executor returned successfully.
	StatusCompleted Status = iota
	// StatusFailed indicates the stage reached a terminal failure.
	StatusFailed
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Severity classifies how serious a stage failure is and drives the
// containment policy applied to it.
type Severity int

const (
	// SeverityLow covers failures that are logged and otherwise ignored.
	SeverityLow Severity = iota
	// SeverityMedium covers connectivity and timeout class failures,
	// retried with backoff.
	SeverityMedium
	// SeverityHigh covers any failure on a stage flagged critical.
	SeverityHigh
	// SeverityCritical covers authentication, permission and fatal-state
	// failures; never retried.
	SeverityCritical
)

// String returns a human-readable representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ExecutionResult records the outcome of one stage execution within a run.
// Results exist only after every dependency of the stage reached a terminal
// state; they are retained for the lifetime of the run for reporting.
type ExecutionResult struct {
	// Stage is the stage this result belongs to.
	Stage ID `json:"stage"`
	// Status is the terminal outcome.
	Status Status `json:"status"`
	// StartedAt is when the first attempt began.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the stage reached its terminal state.
	EndedAt time.Time `json:"ended_at"`
	// Payload is the executor's opaque result value, nil on failure.
	Payload any `json:"-"`
	// Err is the terminal error, nil on success.
	Err error `json:"-"`
	// Severity classifies Err; meaningful only when Err is non-nil.
	Severity Severity `json:"severity,omitempty"`
	// Attempts is the number of executor invocations made.
	Attempts int `json:"attempts"`
	// FromCache marks a result served from the fallback cache rather than
	// a live executor invocation.
	FromCache bool `json:"from_cache,omitempty"`
}

// Duration returns how long the stage took from first attempt to terminal
// state.
func (r ExecutionResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the stage completed successfully.
func (r ExecutionResult) Succeeded() bool {
	return r.Status == StatusCompleted && r.Err == nil
}
