// Package planner turns a stage catalogue and a set of run constraints into
// an ordered execution plan: a list of sequential or parallel groups in
// which every stage appears exactly once and only after all of its
// dependencies.
package planner

import (
	"time"

	"github.com/nomis52/goinit/stage"
)

// GroupType distinguishes how the members of a group are executed.
type GroupType int

const (
	// Sequential groups hold a single stage executed on its own.
	Sequential GroupType = iota
	// Parallel groups hold stages executed concurrently with a barrier at
	// the end.
	Parallel
)

// String returns the group type's name.
func (t GroupType) String() string {
	switch t {
	case Sequential:
		return "sequential"
	case Parallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (t GroupType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// Group is one scheduling round of a plan.
type Group struct {
	// ID names the group within its plan ("group-0", "group-1", ...).
	ID string `json:"id"`
	// Type is sequential or parallel.
	Type GroupType `json:"type"`
	// Stages are the members, in execution-priority order.
	Stages []stage.ID `json:"stages"`
	// EstimatedDuration is the stage duration for sequential groups and the
	// longest member duration for parallel groups.
	EstimatedDuration time.Duration `json:"estimated_duration"`
	// Level is the group's position in the plan, starting at 0.
	Level int `json:"level"`
}

// Plan is the ordered, grouped schedule for one run. Plans are computed
// fresh per run and never persisted.
type Plan struct {
	// Groups in execution order.
	Groups []Group `json:"groups"`
	// CriticalPath is the longest duration-weighted dependency chain in the
	// graph, for reporting and ETA.
	CriticalPath []stage.ID `json:"critical_path"`
	// ParallelismLevel is sequentialDuration / sum-of-group-durations: 1.0
	// for a fully serial plan, higher as more work overlaps.
	ParallelismLevel float64 `json:"parallelism_level"`
	// ExcludedStages were removed from scheduling by the caller.
	ExcludedStages []stage.ID `json:"excluded_stages,omitempty"`
	// PrioritizedStages were boosted to the front of ready-set ordering.
	PrioritizedStages []stage.ID `json:"prioritized_stages,omitempty"`
}

// EstimatedDuration returns the summed duration of all groups: the expected
// wall-clock cost of the plan.
func (p Plan) EstimatedDuration() time.Duration {
	var total time.Duration
	for _, g := range p.Groups {
		total += g.EstimatedDuration
	}
	return total
}

// StageCount returns the number of stages scheduled across all groups.
func (p Plan) StageCount() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Stages)
	}
	return n
}

// GroupOf returns the level of the group containing the given stage, or -1.
func (p Plan) GroupOf(id stage.ID) int {
	for _, g := range p.Groups {
		for _, sid := range g.Stages {
			if sid == id {
				return g.Level
			}
		}
	}
	return -1
}
