package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/goinit/planner"
	"github.com/nomis52/goinit/stage"
)

// newDefaultOrchestrator builds an orchestrator over the built-in catalogue
// with instant executors for every stage.
func newDefaultOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()

	catalog := stage.DefaultCatalog()
	registry := stage.NewRegistry()
	for _, id := range catalog.IDs() {
		id := id
		registry.MustRegister(id, func(ctx context.Context, rc *stage.RunContext) (any, error) {
			return id.String() + "-payload", nil
		})
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := New(catalog, registry, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	orch.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	t.Cleanup(orch.Dispose)
	return orch
}

func TestStrategyValid(t *testing.T) {
	for _, s := range Strategies() {
		assert.True(t, s.Valid(), "%s", s)
	}
	assert.False(t, Strategy("").Valid())
	assert.False(t, Strategy("bogus").Valid())
}

func TestResolveStrategy(t *testing.T) {
	tests := []struct {
		name string
		sig  Signals
		want Strategy
	}{
		{"no signals", Signals{}, StrategyComprehensive},
		{"constrained wins", Signals{Constrained: true, LowEndDevice: true, FirstRun: true}, StrategyMinimal},
		{"low-end device", Signals{LowEndDevice: true, FirstRun: true}, StrategySequential},
		{"first run", Signals{FirstRun: true}, StrategyStaged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveStrategy(StrategyAdaptive, tt.sig))
		})
	}

	// Non-adaptive strategies pass through untouched.
	assert.Equal(t, StrategyMinimal,
		resolveStrategy(StrategyMinimal, Signals{LowEndDevice: true}))
}

func TestBuildPlan_SequentialFlattens(t *testing.T) {
	o := newDefaultOrchestrator(t)

	strategy, plan, err := o.buildPlan(RunOptions{Strategy: StrategySequential})
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, strategy)

	assert.Equal(t, o.catalog.Len(), len(plan.Groups))
	for _, g := range plan.Groups {
		assert.Equal(t, planner.Sequential, g.Type)
		assert.Len(t, g.Stages, 1)
	}
	assert.Equal(t, 1.0, plan.ParallelismLevel)
}

func TestBuildPlan_ComprehensiveUsesParallelGroups(t *testing.T) {
	o := newDefaultOrchestrator(t)

	_, plan, err := o.buildPlan(RunOptions{Strategy: StrategyComprehensive})
	require.NoError(t, err)

	assert.Equal(t, o.catalog.Len(), plan.StageCount())
	var hasParallel bool
	for _, g := range plan.Groups {
		if g.Type == planner.Parallel && len(g.Stages) > 1 {
			hasParallel = true
		}
	}
	assert.True(t, hasParallel)
}

func TestBuildPlan_CriticalOnly(t *testing.T) {
	o := newDefaultOrchestrator(t)

	_, plan, err := o.buildPlan(RunOptions{Strategy: StrategyCriticalOnly})
	require.NoError(t, err)

	critical := o.catalog.CriticalIDs()
	assert.Equal(t, len(critical), plan.StageCount())
	for _, id := range critical {
		assert.GreaterOrEqual(t, plan.GroupOf(id), 0, "%s", id)
	}
	for _, g := range plan.Groups {
		assert.Equal(t, planner.Sequential, g.Type)
	}
}

func TestBuildPlan_Minimal(t *testing.T) {
	o := newDefaultOrchestrator(t)

	_, plan, err := o.buildPlan(RunOptions{Strategy: StrategyMinimal})
	require.NoError(t, err)

	assert.Equal(t, len(minimalSubset), plan.StageCount())
	for _, id := range minimalSubset {
		assert.GreaterOrEqual(t, plan.GroupOf(id), 0, "%s", id)
	}
	assert.Equal(t, -1, plan.GroupOf(stage.Jobs))
}

func TestBuildPlan_Staged(t *testing.T) {
	o := newDefaultOrchestrator(t)

	_, plan, err := o.buildPlan(RunOptions{Strategy: StrategyStaged})
	require.NoError(t, err)

	// Every catalogue stage lands somewhere.
	assert.Equal(t, o.catalog.Len(), plan.StageCount())

	// The curriculum's early phases run one at a time, in phase order.
	assert.Less(t, plan.GroupOf(stage.CoreServices), plan.GroupOf(stage.Auth))
	assert.Less(t, plan.GroupOf(stage.Auth), plan.GroupOf(stage.Session))
	assert.Less(t, plan.GroupOf(stage.Identity), plan.GroupOf(stage.Profile))

	// The two leading phases stay sequential.
	for _, id := range []stage.ID{stage.CoreServices, stage.Connectivity, stage.FeatureFlags,
		stage.Auth, stage.Session, stage.Identity} {
		level := plan.GroupOf(id)
		require.GreaterOrEqual(t, level, 0)
		assert.Equal(t, planner.Sequential, plan.Groups[level].Type, "%s", id)
	}
}

func TestBuildPlan_StagedLevelsPhaseDependencies(t *testing.T) {
	o := newDefaultOrchestrator(t)

	// With MaxParallel 5 the whole final phase would fit in one group, but
	// referrals depends on jobs_feed from the same phase and must wait for
	// it.
	_, plan, err := o.buildPlan(RunOptions{Strategy: StrategyStaged, MaxParallel: 5})
	require.NoError(t, err)

	assert.Equal(t, o.catalog.Len(), plan.StageCount())
	assert.Greater(t, plan.GroupOf(stage.Referrals), plan.GroupOf(stage.Jobs))
	assert.Greater(t, plan.GroupOf(stage.Referrals), plan.GroupOf(stage.Profile))

	// No group may pair a stage with one of its own dependencies.
	for _, g := range plan.Groups {
		members := make(map[stage.ID]bool, len(g.Stages))
		for _, id := range g.Stages {
			members[id] = true
		}
		for _, id := range g.Stages {
			s, ok := o.catalog.Get(id)
			require.True(t, ok)
			for _, dep := range s.DependsOn {
				assert.False(t, members[dep], "%s grouped with its dependency %s", id, dep)
			}
		}
	}
}

func TestInitialize_StagedRunsDependentsAfterPhasePeers(t *testing.T) {
	o := newDefaultOrchestrator(t)

	result, err := o.Initialize(context.Background(), RunOptions{
		Strategy:    StrategyStaged,
		MaxParallel: 5,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Skipped)
	require.Contains(t, result.StageResults, stage.Referrals)
	assert.True(t, result.StageResults[stage.Referrals].Succeeded())
}

func TestBuildPlan_StagedRespectsExclusions(t *testing.T) {
	o := newDefaultOrchestrator(t)

	_, plan, err := o.buildPlan(RunOptions{
		Strategy: StrategyStaged,
		Exclude:  []stage.ID{stage.Analytics, stage.Referrals},
	})
	require.NoError(t, err)

	assert.Equal(t, o.catalog.Len()-2, plan.StageCount())
	assert.Equal(t, -1, plan.GroupOf(stage.Analytics))
	assert.Equal(t, -1, plan.GroupOf(stage.Referrals))
}

func TestInitialize_CriticalOnlyRunsOnlyCriticals(t *testing.T) {
	o := newDefaultOrchestrator(t)

	result, err := o.Initialize(context.Background(), RunOptions{Strategy: StrategyCriticalOnly})
	require.NoError(t, err)

	assert.Len(t, result.StageResults, len(o.catalog.CriticalIDs()))
	for _, id := range o.catalog.CriticalIDs() {
		assert.True(t, result.StageResults[id].Succeeded(), "%s", id)
	}
}

func TestInitialize_MinimalContinuesInBackground(t *testing.T) {
	o := newDefaultOrchestrator(t)

	result, err := o.Initialize(context.Background(), RunOptions{Strategy: StrategyMinimal})
	require.NoError(t, err)

	// The foreground run covers only the minimal subset.
	assert.Len(t, result.StageResults, len(minimalSubset))
	_, ran := result.StageResults[stage.Jobs]
	assert.False(t, ran)

	// The detached continuation finishes the rest of the catalogue.
	require.Eventually(t, func() bool {
		return len(o.Results()) == o.catalog.Len()
	}, 5*time.Second, 5*time.Millisecond)
	assert.True(t, o.Results()[stage.Jobs].Succeeded())
}

func TestInitialize_AdaptivePicksFromSignals(t *testing.T) {
	o := newDefaultOrchestrator(t)

	result, err := o.Initialize(context.Background(), RunOptions{
		Strategy: StrategyAdaptive,
		Signals:  Signals{LowEndDevice: true},
	})
	require.NoError(t, err)
	assert.Equal(t, StrategySequential, result.Strategy,
		"the result reports the concrete strategy that ran")
	assert.Len(t, result.StageResults, o.catalog.Len())
}
