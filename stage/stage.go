// Package stage defines the data model for initialization stages.
//
// A Stage is a named unit of startup work together with its scheduling
// metadata: the stages it depends on, an estimated duration, a priority,
// whether its failure aborts the whole run, and whether it may run alongside
// other stages. Stages are plain data records defined once at startup; all
// graph and planning algorithms operate generically over a Catalog of them
// rather than branching on stage identity.
package stage

import (
	"time"
)

// ID uniquely identifies a stage within a catalogue.
type ID string

// String returns the ID as a plain string.
func (id ID) String() string {
	return string(id)
}

// Stage describes a single unit of startup work. Stages are immutable after
// catalogue construction.
type Stage struct {
	// ID is the stage's unique name.
	ID ID

	// DependsOn lists the stages that must complete before this one starts.
	DependsOn []ID

	// EstimatedDuration is the expected execution time, used for planning
	// and ETA calculation.
	EstimatedDuration time.Duration

	// Priority orders stages within a ready set; higher runs earlier.
	Priority int

	// Critical marks a stage whose terminal failure aborts the whole run.
	Critical bool

	// Parallelizable marks a stage that may run concurrently with others.
	Parallelizable bool

	// Description is a human-readable summary for status surfaces.
	Description string
}

// DependsOnStage reports whether the stage directly depends on dep.
func (s Stage) DependsOnStage(dep ID) bool {
	for _, d := range s.DependsOn {
		if d == dep {
			return true
		}
	}
	return false
}
