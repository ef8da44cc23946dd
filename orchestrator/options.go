package orchestrator

import (
	"time"

	"github.com/nomis52/goinit/stage"
)

// Strategy selects how a run schedules its stages.
type Strategy string

const (
	// StrategySequential runs one stage at a time in dependency order,
	// ignoring parallel eligibility.
	StrategySequential Strategy = "sequential"
	// StrategyParallel uses full dependency-graph leveling with parallel
	// groups.
	StrategyParallel Strategy = "parallel"
	// StrategyComprehensive is the full catalogue with parallel leveling;
	// an alias of parallel kept distinct for reporting.
	StrategyComprehensive Strategy = "comprehensive"
	// StrategyCriticalOnly runs only the stages flagged critical,
	// sequentially.
	StrategyCriticalOnly Strategy = "critical_only"
	// StrategyMinimal runs a fixed small foreground subset (platform
	// wiring, credentials, session, identity) and continues the rest in
	// the background.
	StrategyMinimal Strategy = "minimal"
	// StrategyStaged runs an explicit curriculum of stage subsets:
	// early phases one stage at a time, later phases in parallel.
	StrategyStaged Strategy = "staged"
	// StrategyAdaptive picks one of the other strategies from runtime
	// signals, defaulting to comprehensive.
	StrategyAdaptive Strategy = "adaptive"
)

// Strategies returns every known strategy.
func Strategies() []Strategy {
	return []Strategy{
		StrategySequential, StrategyParallel, StrategyComprehensive,
		StrategyCriticalOnly, StrategyMinimal, StrategyStaged, StrategyAdaptive,
	}
}

// Valid reports whether the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySequential, StrategyParallel, StrategyComprehensive,
		StrategyCriticalOnly, StrategyMinimal, StrategyStaged, StrategyAdaptive:
		return true
	}
	return false
}

// etaMultiplier scales ETA estimates to reflect the strategy's stage-mix
// cost: minimal runs lighter stages, comprehensive the full catalogue.
func (s Strategy) etaMultiplier() float64 {
	switch s {
	case StrategyMinimal:
		return 0.8
	case StrategyCriticalOnly:
		return 0.9
	case StrategyStaged:
		return 1.1
	case StrategyParallel, StrategyComprehensive:
		return 1.2
	case StrategySequential:
		return 1.5
	default:
		return 1.0
	}
}

// Signals are the runtime conditions the adaptive strategy chooses from.
type Signals struct {
	// FirstRun marks a fresh install or cleared state: prefer the staged
	// curriculum so the user sees early visible progress.
	FirstRun bool `json:"first_run"`
	// Constrained marks low-resource conditions (memory pressure, battery
	// saver, metered network): prefer the minimal foreground subset.
	Constrained bool `json:"constrained"`
	// LowEndDevice marks hardware that schedules poorly under wide
	// parallelism: prefer sequential execution.
	LowEndDevice bool `json:"low_end_device"`
}

// RunOptions control a single Initialize call.
type RunOptions struct {
	// Strategy selects the scheduling strategy. Empty means comprehensive.
	Strategy Strategy
	// Timeout bounds the whole run. Zero means no overall bound.
	Timeout time.Duration
	// ForceRefresh discards previous results and cached payloads before
	// the run, re-executing every scheduled stage.
	ForceRefresh bool
	// ContextSeed pre-populates the run's key/value bag.
	ContextSeed map[string]any
	// Exclude removes stages from scheduling.
	Exclude []stage.ID
	// Prioritize boosts stages to the front of ready-set ordering.
	Prioritize []stage.ID
	// Weights adjusts ready-set ordering; higher runs earlier.
	Weights map[stage.ID]float64
	// MaxParallel caps parallel group size. Zero means the planner
	// default.
	MaxParallel int
	// Signals feed the adaptive strategy; ignored by the others.
	Signals Signals
}

func (o *RunOptions) setDefaults() {
	if o.Strategy == "" {
		o.Strategy = StrategyComprehensive
	}
}
