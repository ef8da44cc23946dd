package runner

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nomis52/goinit/logging"
)

// RunState represents the current state of an initialization run.
type RunState int

const (
	// RunStateIdle indicates no run is executing.
	RunStateIdle RunState = iota
	// RunStateRunning indicates a run is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. Disk stores write RunStatus
// records with the string form, so the state must decode back.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "idle":
		*s = RunStateIdle
	case "running":
		*s = RunStateRunning
	default:
		return fmt.Errorf("unknown run state %q", name)
	}
	return nil
}

// RunStatus contains information about the current or last run.
type RunStatus struct {
	// State is the current state of the run.
	State RunState `json:"state"`
	// RunID identifies the run. Empty if no run has occurred.
	RunID string `json:"run_id,omitempty"`
	// Strategy is the execution strategy of the run.
	Strategy string `json:"strategy,omitempty"`
	// StartedAt is when the run started. Nil if no run has occurred.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the run ended. Nil if the run is in progress or no run has occurred.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error contains the error message if the run failed. Empty on success.
	Error string `json:"error,omitempty"`
	// StageExecutions describes each stage's outcome with its captured logs.
	StageExecutions []StageExecution `json:"stage_executions,omitempty"`
}

// StageExecution is one stage's outcome within a run, with its log tail.
type StageExecution struct {
	Stage     string             `json:"stage"`
	Status    string             `json:"status"`
	Severity  string             `json:"severity,omitempty"`
	Attempts  int                `json:"attempts,omitempty"`
	FromCache bool               `json:"from_cache,omitempty"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
	Error     string             `json:"error,omitempty"`
	Logs      []logging.LogEntry `json:"logs,omitempty"`
}
