package planner

import (
	"fmt"
	"sort"
	"time"

	"github.com/nomis52/goinit/graph"
	"github.com/nomis52/goinit/stage"
)

// DefaultMaxParallel caps how many stages a single parallel group may hold.
const DefaultMaxParallel = 4

// Options constrain plan resolution.
type Options struct {
	// Exclude removes stages (and only those stages; dependents still
	// schedule once their remaining dependencies complete) from the plan.
	Exclude []stage.ID
	// Prioritize boosts stages to the front of ready-set ordering.
	Prioritize []stage.ID
	// Weights adjusts ordering among ready stages; higher runs earlier.
	Weights map[stage.ID]float64
	// MaxParallel caps parallel group size. Zero means DefaultMaxParallel.
	MaxParallel int
	// Only, when non-empty, restricts the plan to the listed stages.
	Only []stage.ID
}

// Resolver derives execution plans from a dependency graph.
type Resolver struct {
	graph *graph.Graph
}

// NewResolver creates a Resolver over the given graph.
func NewResolver(g *graph.Graph) *Resolver {
	return &Resolver{graph: g}
}

// Resolve builds an execution plan for the catalogue under the given
// options.
//
// Each round collects the ready set: remaining stages whose dependencies
// have all been scheduled. When every ready stage is parallelizable and the
// set fits under MaxParallel, the whole set becomes one parallel group;
// otherwise only the top-ranked stage is emitted as a sequential group.
// A ready stage that is not parallel-eligible therefore forces the entire
// round to run one-at-a-time; splitting the set into a parallel subset plus
// a sequential remainder is a possible refinement, not current behavior.
func (r *Resolver) Resolve(opts Options) (*Plan, error) {
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	catalog := r.graph.Catalog()
	excluded := toSet(opts.Exclude)
	prioritized := toSet(opts.Prioritize)

	remaining := make(map[stage.ID]bool)
	if len(opts.Only) > 0 {
		for _, id := range opts.Only {
			if !catalog.Contains(id) {
				return nil, fmt.Errorf("unknown stage %q in stage subset", id)
			}
			if !excluded[id] {
				remaining[id] = true
			}
		}
	} else {
		for _, id := range catalog.IDs() {
			if !excluded[id] {
				remaining[id] = true
			}
		}
	}

	// universe is the full set of stages this plan covers; dependencies
	// outside it are treated as satisfied (the subset's caller owns that
	// tradeoff).
	universe := make(map[stage.ID]bool, len(remaining))
	for id := range remaining {
		universe[id] = true
	}

	scheduled := make(map[stage.ID]bool)
	var groups []Group

	for len(remaining) > 0 {
		ready := r.readySet(remaining, scheduled, universe)
		if len(ready) == 0 {
			return nil, fmt.Errorf("no executable stages among %d remaining: dependency cycle or incomplete stage subset", len(remaining))
		}

		r.sortReady(ready, prioritized, opts.Weights)

		if allParallelizable(catalog, ready) && len(ready) <= maxParallel {
			group := Group{
				ID:     fmt.Sprintf("group-%d", len(groups)),
				Type:   Parallel,
				Stages: ready,
				Level:  len(groups),
			}
			for _, id := range ready {
				if d := mustStage(catalog, id).EstimatedDuration; d > group.EstimatedDuration {
					group.EstimatedDuration = d
				}
				scheduled[id] = true
				delete(remaining, id)
			}
			groups = append(groups, group)
			continue
		}

		first := ready[0]
		groups = append(groups, Group{
			ID:                fmt.Sprintf("group-%d", len(groups)),
			Type:              Sequential,
			Stages:            []stage.ID{first},
			EstimatedDuration: mustStage(catalog, first).EstimatedDuration,
			Level:             len(groups),
		})
		scheduled[first] = true
		delete(remaining, first)
	}

	plan := &Plan{
		Groups:            groups,
		ExcludedStages:    append([]stage.ID{}, opts.Exclude...),
		PrioritizedStages: append([]stage.ID{}, opts.Prioritize...),
	}
	plan.CriticalPath, _ = r.graph.CriticalPath()
	if planned := plan.EstimatedDuration(); planned > 0 {
		plan.ParallelismLevel = float64(r.scheduledSequentialDuration(scheduled)) / float64(planned)
	}
	return plan, nil
}

// NextExecutable returns up to max stages that are ready to run given the
// completed and in-progress sets, using the same ready-set ordering as plan
// resolution. It serves callers that schedule dynamically against runtime
// conditions instead of following a precomputed plan.
func (r *Resolver) NextExecutable(completed, inProgress map[stage.ID]bool, max int, opts Options) []stage.ID {
	if max <= 0 {
		return nil
	}
	catalog := r.graph.Catalog()
	excluded := toSet(opts.Exclude)

	remaining := make(map[stage.ID]bool)
	universe := make(map[stage.ID]bool)
	for _, id := range catalog.IDs() {
		if excluded[id] {
			continue
		}
		universe[id] = true
		if !completed[id] && !inProgress[id] {
			remaining[id] = true
		}
	}

	// In-progress stages count toward nothing: their dependents stay
	// blocked until completion.
	ready := r.readySet(remaining, completed, universe)
	r.sortReady(ready, toSet(opts.Prioritize), opts.Weights)

	if len(ready) > max {
		ready = ready[:max]
	}
	return ready
}

// OptimizeOrder reorders stages inside each parallel group longest-first by
// observed historical duration. Grouping and correctness are untouched; the
// reorder only improves display and ETA fidelity when long stages dominate
// a group.
func (r *Resolver) OptimizeOrder(plan *Plan, historical map[stage.ID]time.Duration) *Plan {
	if plan == nil || len(historical) == 0 {
		return plan
	}
	catalog := r.graph.Catalog()

	out := *plan
	out.Groups = make([]Group, len(plan.Groups))
	copy(out.Groups, plan.Groups)

	for i, g := range out.Groups {
		if g.Type != Parallel {
			continue
		}
		stages := append([]stage.ID{}, g.Stages...)
		sort.SliceStable(stages, func(a, b int) bool {
			return observedDuration(catalog, historical, stages[a]) > observedDuration(catalog, historical, stages[b])
		})
		out.Groups[i].Stages = stages
	}
	return &out
}

func observedDuration(catalog *stage.Catalog, historical map[stage.ID]time.Duration, id stage.ID) time.Duration {
	if d, ok := historical[id]; ok && d > 0 {
		return d
	}
	return mustStage(catalog, id).EstimatedDuration
}

// readySet returns the remaining stages whose every in-universe dependency
// is already satisfied, in unspecified order.
func (r *Resolver) readySet(remaining, satisfied, universe map[stage.ID]bool) []stage.ID {
	var ready []stage.ID
	for id := range remaining {
		s := mustStage(r.graph.Catalog(), id)
		ok := true
		for _, dep := range s.DependsOn {
			if universe[dep] && !satisfied[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	return ready
}

// sortReady orders a ready set: prioritized flag, caller weight, critical
// flag, declared priority, shortest estimate first, then ID for determinism.
func (r *Resolver) sortReady(ready []stage.ID, prioritized map[stage.ID]bool, weights map[stage.ID]float64) {
	catalog := r.graph.Catalog()
	sort.SliceStable(ready, func(i, j int) bool {
		a, b := mustStage(catalog, ready[i]), mustStage(catalog, ready[j])

		if pa, pb := prioritized[a.ID], prioritized[b.ID]; pa != pb {
			return pa
		}
		if wa, wb := weights[a.ID], weights[b.ID]; wa != wb {
			return wa > wb
		}
		if a.Critical != b.Critical {
			return a.Critical
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.EstimatedDuration != b.EstimatedDuration {
			return a.EstimatedDuration < b.EstimatedDuration
		}
		return a.ID < b.ID
	})
}

// scheduledSequentialDuration sums durations of the stages actually planned,
// so exclusions don't skew the parallelism level.
func (r *Resolver) scheduledSequentialDuration(scheduled map[stage.ID]bool) time.Duration {
	var total time.Duration
	for id := range scheduled {
		total += mustStage(r.graph.Catalog(), id).EstimatedDuration
	}
	return total
}

func allParallelizable(catalog *stage.Catalog, ids []stage.ID) bool {
	for _, id := range ids {
		if !mustStage(catalog, id).Parallelizable {
			return false
		}
	}
	return true
}

func mustStage(catalog *stage.Catalog, id stage.ID) stage.Stage {
	s, ok := catalog.Get(id)
	if !ok {
		panic("unknown stage " + id.String())
	}
	return s
}

func toSet(ids []stage.ID) map[stage.ID]bool {
	set := make(map[stage.ID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
