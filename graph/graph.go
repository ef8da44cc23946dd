// Package graph provides dependency-graph queries over a stage catalogue:
// structural validation (cycles, unreachable stages, single points of
// failure, overly deep chains), the duration-weighted critical path, and
// per-stage dependency depth.
package graph

import (
	"sort"
	"time"

	"github.com/nomis52/goinit/stage"
)

// Graph wraps a stage catalogue with derived, cached graph queries.
// A Graph is immutable after construction and safe for concurrent reads.
type Graph struct {
	catalog *stage.Catalog

	// Lazily computed, cached on first use. Guarded by construction-time
	// population: New computes everything eagerly so reads need no locks.
	depths       map[stage.ID]int
	criticalPath []stage.ID
	criticalDur  time.Duration
}

// New builds a Graph over the catalogue, computing derived data eagerly.
func New(catalog *stage.Catalog) *Graph {
	g := &Graph{
		catalog: catalog,
		depths:  make(map[stage.ID]int, catalog.Len()),
	}
	for _, id := range catalog.IDs() {
		g.depths[id] = g.computeDepth(id, make(map[stage.ID]bool))
	}
	g.criticalPath, g.criticalDur = g.computeCriticalPath()
	return g
}

// Catalog returns the underlying stage catalogue.
func (g *Graph) Catalog() *stage.Catalog {
	return g.catalog
}

// DependencyDepth returns the length of the longest dependency chain below
// the given stage. A stage with no dependencies has depth 0.
func (g *Graph) DependencyDepth(id stage.ID) int {
	return g.depths[id]
}

// computeDepth walks dependencies recursively, memoizing into g.depths.
// The visiting set makes the walk terminate on cyclic input; cycles are
// reported by Validate, not here.
func (g *Graph) computeDepth(id stage.ID, visiting map[stage.ID]bool) int {
	if d, ok := g.depths[id]; ok {
		return d
	}
	if visiting[id] {
		return 0
	}
	visiting[id] = true
	defer delete(visiting, id)

	max := 0
	for _, dep := range g.mustGet(id).DependsOn {
		if d := g.computeDepth(dep, visiting) + 1; d > max {
			max = d
		}
	}
	return max
}

// CriticalPath returns the longest duration-weighted chain of dependent
// stages and its total estimated duration.
func (g *Graph) CriticalPath() ([]stage.ID, time.Duration) {
	path := make([]stage.ID, len(g.criticalPath))
	copy(path, g.criticalPath)
	return path, g.criticalDur
}

// SequentialDuration returns the cost of running every stage one at a time.
func (g *Graph) SequentialDuration() time.Duration {
	return g.catalog.SequentialDuration()
}

func (g *Graph) computeCriticalPath() ([]stage.ID, time.Duration) {
	type best struct {
		dur  time.Duration
		path []stage.ID
	}
	memo := make(map[stage.ID]best, g.catalog.Len())

	var longest func(id stage.ID, visiting map[stage.ID]bool) best
	longest = func(id stage.ID, visiting map[stage.ID]bool) best {
		if b, ok := memo[id]; ok {
			return b
		}
		if visiting[id] {
			return best{}
		}
		visiting[id] = true
		defer delete(visiting, id)

		s := g.mustGet(id)
		b := best{dur: s.EstimatedDuration, path: []stage.ID{id}}
		for _, dep := range s.DependsOn {
			sub := longest(dep, visiting)
			if sub.dur+s.EstimatedDuration > b.dur {
				b = best{
					dur:  sub.dur + s.EstimatedDuration,
					path: append(append([]stage.ID{}, sub.path...), id),
				}
			}
		}
		memo[id] = b
		return b
	}

	var top best
	ids := g.catalog.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if b := longest(id, make(map[stage.ID]bool)); b.dur > top.dur {
			top = b
		}
	}
	return top.path, top.dur
}

func (g *Graph) mustGet(id stage.ID) stage.Stage {
	s, ok := g.catalog.Get(id)
	if !ok {
		// Catalogue construction rejects unknown references, so this is
		// unreachable for graphs built via New.
		panic("unknown stage " + id.String())
	}
	return s
}
