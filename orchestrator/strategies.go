package orchestrator

import (
	"fmt"

	"github.com/nomis52/goinit/planner"
	"github.com/nomis52/goinit/stage"
)

// minimalSubset is the foreground stage set for the minimal strategy:
// just enough to get an authenticated session on screen. Stages absent from
// the catalogue are ignored.
var minimalSubset = []stage.ID{
	stage.CoreServices,
	stage.Connectivity,
	stage.Auth,
	stage.Session,
	stage.Identity,
}

// curriculum is the staged strategy's phase list. Early phases run one
// stage at a time for predictable early progress; later phases run in
// parallel. Catalogue stages not named here land in a final parallel phase.
var curriculum = [][]stage.ID{
	{stage.CoreServices, stage.Connectivity, stage.FeatureFlags},
	{stage.Auth, stage.Session, stage.Identity},
	{stage.Profile, stage.Preferences, stage.Locals, stage.Notifications},
	{stage.Jobs, stage.PayScales, stage.Referrals, stage.ContentCache, stage.Analytics},
}

// sequentialPhases is how many leading curriculum phases run one stage at a
// time.
const sequentialPhases = 2

// resolveStrategy maps adaptive onto a concrete strategy using runtime
// signals. Order matters: resource pressure wins over everything, then
// device class, then first-run experience.
func resolveStrategy(s Strategy, sig Signals) Strategy {
	if s != StrategyAdaptive {
		return s
	}
	switch {
	case sig.Constrained:
		return StrategyMinimal
	case sig.LowEndDevice:
		return StrategySequential
	case sig.FirstRun:
		return StrategyStaged
	default:
		return StrategyComprehensive
	}
}

// buildPlan derives the execution plan for a run. The returned strategy is
// the concrete one that will execute (adaptive resolved).
func (o *Orchestrator) buildPlan(opts RunOptions) (Strategy, *planner.Plan, error) {
	strategy := resolveStrategy(opts.Strategy, opts.Signals)

	pOpts := planner.Options{
		Exclude:     opts.Exclude,
		Prioritize:  opts.Prioritize,
		Weights:     opts.Weights,
		MaxParallel: opts.MaxParallel,
	}

	switch strategy {
	case StrategySequential:
		plan, err := o.resolver.Resolve(pOpts)
		if err != nil {
			return strategy, nil, err
		}
		return strategy, o.flatten(plan), nil

	case StrategyParallel, StrategyComprehensive:
		plan, err := o.resolver.Resolve(pOpts)
		if err != nil {
			return strategy, nil, err
		}
		return strategy, o.resolver.OptimizeOrder(plan, o.HistoricalDurations()), nil

	case StrategyCriticalOnly:
		pOpts.Only = o.catalog.CriticalIDs()
		plan, err := o.resolver.Resolve(pOpts)
		if err != nil {
			return strategy, nil, err
		}
		return strategy, o.flatten(plan), nil

	case StrategyMinimal:
		pOpts.Only = presentIn(o.catalog, minimalSubset)
		if len(pOpts.Only) == 0 {
			return strategy, nil, fmt.Errorf("minimal strategy: none of the foreground stages exist in the catalogue")
		}
		plan, err := o.resolver.Resolve(pOpts)
		if err != nil {
			return strategy, nil, err
		}
		return strategy, plan, nil

	case StrategyStaged:
		plan, err := o.stagedPlan(pOpts)
		return strategy, plan, err

	default:
		return strategy, nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

// flatten rewrites a plan so every stage runs in its own sequential group,
// preserving order.
func (o *Orchestrator) flatten(plan *planner.Plan) *planner.Plan {
	out := *plan
	out.Groups = nil
	for _, g := range plan.Groups {
		for _, id := range g.Stages {
			s, _ := o.catalog.Get(id)
			out.Groups = append(out.Groups, planner.Group{
				ID:                fmt.Sprintf("group-%d", len(out.Groups)),
				Type:              planner.Sequential,
				Stages:            []stage.ID{id},
				EstimatedDuration: s.EstimatedDuration,
				Level:             len(out.Groups),
			})
		}
	}
	out.ParallelismLevel = 1.0
	return &out
}

// stagedPlan builds the curriculum plan: each phase's stages (that exist in
// the catalogue and are not excluded) become groups in phase order, with
// leftover catalogue stages appended as a final phase.
func (o *Orchestrator) stagedPlan(opts planner.Options) (*planner.Plan, error) {
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = planner.DefaultMaxParallel
	}
	excluded := make(map[stage.ID]bool, len(opts.Exclude))
	for _, id := range opts.Exclude {
		excluded[id] = true
	}

	placed := make(map[stage.ID]bool)
	var phases [][]stage.ID
	for _, phase := range curriculum {
		var members []stage.ID
		for _, id := range phase {
			if o.catalog.Contains(id) && !excluded[id] {
				members = append(members, id)
				placed[id] = true
			}
		}
		if len(members) > 0 {
			phases = append(phases, members)
		}
	}

	var leftovers []stage.ID
	for _, id := range o.catalog.IDs() {
		if !placed[id] && !excluded[id] {
			leftovers = append(leftovers, id)
		}
	}
	if len(leftovers) > 0 {
		phases = append(phases, leftovers)
	}

	plan := &planner.Plan{ExcludedStages: opts.Exclude}
	for phaseIdx, members := range phases {
		// A phase may contain a stage and its own dependency (referrals
		// needs jobs_feed in the final curriculum phase), so level the
		// phase into waves before grouping: no wave runs a stage alongside
		// a dependency from the same phase.
		for _, wave := range phaseWaves(o.catalog, members) {
			if phaseIdx >= sequentialPhases && allParallel(o.catalog, wave) && len(wave) <= maxParallel {
				group := planner.Group{
					ID:     fmt.Sprintf("group-%d", len(plan.Groups)),
					Type:   planner.Parallel,
					Stages: wave,
					Level:  len(plan.Groups),
				}
				for _, id := range wave {
					s, _ := o.catalog.Get(id)
					if s.EstimatedDuration > group.EstimatedDuration {
						group.EstimatedDuration = s.EstimatedDuration
					}
				}
				plan.Groups = append(plan.Groups, group)
				continue
			}
			for _, id := range wave {
				s, _ := o.catalog.Get(id)
				plan.Groups = append(plan.Groups, planner.Group{
					ID:                fmt.Sprintf("group-%d", len(plan.Groups)),
					Type:              planner.Sequential,
					Stages:            []stage.ID{id},
					EstimatedDuration: s.EstimatedDuration,
					Level:             len(plan.Groups),
				})
			}
		}
	}

	plan.CriticalPath, _ = o.graph.CriticalPath()
	if planned := plan.EstimatedDuration(); planned > 0 {
		plan.ParallelismLevel = float64(o.graph.SequentialDuration()) / float64(planned)
	}
	return plan, nil
}

func presentIn(catalog *stage.Catalog, ids []stage.ID) []stage.ID {
	var out []stage.ID
	for _, id := range ids {
		if catalog.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// phaseWaves partitions a phase into dependency levels: a stage lands in a
// later wave than any dependency that shares its phase. Dependencies
// outside the phase were already scheduled by earlier groups (or accepted
// by the caller). Member order within a wave follows the phase order.
func phaseWaves(catalog *stage.Catalog, members []stage.ID) [][]stage.ID {
	inPhase := make(map[stage.ID]bool, len(members))
	for _, id := range members {
		inPhase[id] = true
	}

	done := make(map[stage.ID]bool, len(members))
	remaining := members
	var waves [][]stage.ID
	for len(remaining) > 0 {
		var wave, held []stage.ID
		for _, id := range remaining {
			ready := true
			s, _ := catalog.Get(id)
			for _, dep := range s.DependsOn {
				if inPhase[dep] && !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			} else {
				held = append(held, id)
			}
		}
		if len(wave) == 0 {
			// An in-phase cycle; the catalogue is validated acyclic before
			// any run, so just emit the rest in order.
			wave, held = remaining, nil
		}
		for _, id := range wave {
			done[id] = true
		}
		waves = append(waves, wave)
		remaining = held
	}
	return waves
}

func allParallel(catalog *stage.Catalog, ids []stage.ID) bool {
	for _, id := range ids {
		s, ok := catalog.Get(id)
		if !ok || !s.Parallelizable {
			return false
		}
	}
	return true
}
