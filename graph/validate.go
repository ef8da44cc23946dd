package graph

import (
	"fmt"
	"sort"

	"github.com/nomis52/goinit/stage"
)

// IssueType identifies the kind of structural defect found in a graph.
type IssueType int

const (
	// IssueCycle is a circular dependency chain; always invalidates the graph.
	IssueCycle IssueType = iota
	// IssueUnreachable is a stage with no dependency edges in or out.
	IssueUnreachable
	// IssueSinglePointOfFailure is a stage with more direct dependents than
	// the configured threshold.
	IssueSinglePointOfFailure
	// IssueOverlyDeep is a stage whose dependency chain exceeds the
	// configured depth threshold.
	IssueOverlyDeep
)

// String returns the issue type's name.
func (t IssueType) String() string {
	switch t {
	case IssueCycle:
		return "cycle"
	case IssueUnreachable:
		return "unreachable"
	case IssueSinglePointOfFailure:
		return "single_point_of_failure"
	case IssueOverlyDeep:
		return "overly_deep"
	default:
		return "unknown"
	}
}

// Issue is a single validation finding.
type Issue struct {
	Type     IssueType      `json:"type"`
	Severity stage.Severity `json:"severity"`
	// Stages are the stages involved. For a cycle this is the ordered
	// chain; for the other issue types it is the single stage concerned.
	Stages  []stage.ID `json:"stages"`
	Message string     `json:"message"`
}

// Report is the outcome of validating a graph. A report with any
// critical-severity issue marks the graph invalid.
type Report struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues"`
}

// Cycles returns the issues describing circular dependencies.
func (r Report) Cycles() []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Type == IssueCycle {
			out = append(out, issue)
		}
	}
	return out
}

// ValidateOptions tunes the structural health thresholds.
type ValidateOptions struct {
	// MaxDirectDependents flags a stage as a single point of failure when
	// exceeded. Zero means the default of 3.
	MaxDirectDependents int
	// MaxDepth flags a dependency chain as overly deep when exceeded.
	// Zero means the default of 5.
	MaxDepth int
}

const (
	defaultMaxDirectDependents = 3
	defaultMaxDepth            = 5
)

// Validate checks the graph for structural defects: cycles (critical),
// unreachable stages, single points of failure, and overly deep chains.
func (g *Graph) Validate(opts ValidateOptions) Report {
	if opts.MaxDirectDependents == 0 {
		opts.MaxDirectDependents = defaultMaxDirectDependents
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = defaultMaxDepth
	}

	var issues []Issue
	issues = append(issues, g.findCycles()...)
	issues = append(issues, g.findUnreachable()...)
	issues = append(issues, g.findSinglePointsOfFailure(opts.MaxDirectDependents)...)
	issues = append(issues, g.findOverlyDeep(opts.MaxDepth)...)

	valid := true
	for _, issue := range issues {
		if issue.Severity == stage.SeverityCritical {
			valid = false
			break
		}
	}
	return Report{Valid: valid, Issues: issues}
}

// color values for the DFS cycle walk.
type color int

const (
	white color = iota // unvisited
	gray               // on the current DFS stack
	black              // fully explored
)

// findCycles runs a three-color DFS and extracts each cycle as the ordered
// chain of stages from the first re-visited stage back to itself.
func (g *Graph) findCycles() []Issue {
	colors := make(map[stage.ID]color, g.catalog.Len())
	var stack []stage.ID
	var issues []Issue
	seen := make(map[string]bool) // dedupe rotations of the same cycle

	var visit func(id stage.ID)
	visit = func(id stage.ID) {
		colors[id] = gray
		stack = append(stack, id)

		for _, dep := range g.mustGet(id).DependsOn {
			switch colors[dep] {
			case white:
				visit(dep)
			case gray:
				// dep is on the stack: everything from dep onward is the cycle.
				start := 0
				for i, sid := range stack {
					if sid == dep {
						start = i
						break
					}
				}
				cycle := append([]stage.ID{}, stack[start:]...)
				if key := canonicalCycleKey(cycle); !seen[key] {
					seen[key] = true
					issues = append(issues, Issue{
						Type:     IssueCycle,
						Severity: stage.SeverityCritical,
						Stages:   cycle,
						Message:  fmt.Sprintf("circular dependency: %s", joinIDs(cycle)),
					})
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
	}

	ids := g.catalog.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if colors[id] == white {
			visit(id)
		}
	}
	return issues
}

// canonicalCycleKey rotates the cycle so its smallest member comes first,
// making rotations of the same cycle compare equal.
func canonicalCycleKey(cycle []stage.ID) string {
	if len(cycle) == 0 {
		return ""
	}
	min := 0
	for i, id := range cycle {
		if id < cycle[min] {
			min = i
		}
	}
	rotated := append(append([]stage.ID{}, cycle[min:]...), cycle[:min]...)
	return joinIDs(rotated)
}

func joinIDs(ids []stage.ID) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += " -> "
		}
		out += id.String()
	}
	return out
}

// findUnreachable flags stages with no dependency edges at all: nothing
// depends on them and they depend on nothing, so they are disconnected from
// the rest of the startup sequence.
func (g *Graph) findUnreachable() []Issue {
	var issues []Issue
	for _, id := range g.catalog.IDs() {
		s := g.mustGet(id)
		if len(s.DependsOn) == 0 && len(g.catalog.RequiredFor(id)) == 0 && g.catalog.Len() > 1 {
			issues = append(issues, Issue{
				Type:     IssueUnreachable,
				Severity: stage.SeverityLow,
				Stages:   []stage.ID{id},
				Message:  fmt.Sprintf("stage %q has no dependency edges in or out", id),
			})
		}
	}
	return issues
}

func (g *Graph) findSinglePointsOfFailure(maxDependents int) []Issue {
	var issues []Issue
	for _, id := range g.catalog.IDs() {
		dependents := g.catalog.RequiredFor(id)
		if len(dependents) > maxDependents {
			issues = append(issues, Issue{
				Type:     IssueSinglePointOfFailure,
				Severity: stage.SeverityMedium,
				Stages:   []stage.ID{id},
				Message: fmt.Sprintf("stage %q has %d direct dependents (threshold %d)",
					id, len(dependents), maxDependents),
			})
		}
	}
	return issues
}

func (g *Graph) findOverlyDeep(maxDepth int) []Issue {
	var issues []Issue
	for _, id := range g.catalog.IDs() {
		if depth := g.DependencyDepth(id); depth > maxDepth {
			issues = append(issues, Issue{
				Type:     IssueOverlyDeep,
				Severity: stage.SeverityLow,
				Stages:   []stage.ID{id},
				Message: fmt.Sprintf("stage %q sits %d levels deep (threshold %d)",
					id, depth, maxDepth),
			})
		}
	}
	return issues
}
