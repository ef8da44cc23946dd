package runner

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/goinit/logging"
	"github.com/nomis52/goinit/orchestrator"
	"github.com/nomis52/goinit/resilience"
	"github.com/nomis52/goinit/stage"
)

type testProvider struct {
	orch        *orchestrator.Orchestrator
	collector   *logging.LogCollector
	maxParallel int
}

func (p *testProvider) Orchestrator() *orchestrator.Orchestrator { return p.orch }
func (p *testProvider) LogCollector() *logging.LogCollector      { return p.collector }
func (p *testProvider) RunTimeout() time.Duration                { return 5 * time.Second }
func (p *testProvider) MaxParallel() int                         { return p.maxParallel }

// newTestRunner builds a runner over a two-stage catalogue. Executors are
// supplied per stage; a nil executor succeeds with a fixed payload.
func newTestRunner(t *testing.T, executors map[stage.ID]stage.Executor) (*Runner, *testProvider) {
	t.Helper()

	stages := []stage.Stage{
		{ID: "alpha", Critical: true, Parallelizable: true, EstimatedDuration: 10 * time.Millisecond},
		{ID: "beta", DependsOn: []stage.ID{"alpha"}, Parallelizable: true, EstimatedDuration: 10 * time.Millisecond},
	}
	catalog, err := stage.NewCatalog(stages)
	require.NoError(t, err)

	registry := stage.NewRegistry()
	for _, s := range stages {
		id := s.ID
		executor := executors[id]
		if executor == nil {
			executor = func(ctx context.Context, rc *stage.RunContext) (any, error) {
				return id.String() + "-ready", nil
			}
		}
		registry.MustRegister(id, executor)
	}

	collector := logging.NewLogCollector()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := orchestrator.New(catalog, registry,
		orchestrator.WithLogger(logger),
		orchestrator.WithLogHook(logging.NewCapturingLoggerHook(collector)))
	require.NoError(t, err)
	t.Cleanup(orch.Dispose)

	provider := &testProvider{orch: orch, collector: collector}
	return New(provider, NewMemoryStore(10), logger), provider
}

func waitIdle(t *testing.T, r *Runner) {
	t.Helper()
	require.Eventually(t, func() bool { return !r.IsRunning() },
		5*time.Second, 10*time.Millisecond)
}

func TestRunner_Run_Succeeds(t *testing.T) {
	r, _ := newTestRunner(t, nil)

	require.NoError(t, r.Run("comprehensive"))
	waitIdle(t, r)

	status := r.Status()
	assert.Equal(t, RunStateIdle, status.State)
	assert.NotEmpty(t, status.RunID)
	assert.Equal(t, "comprehensive", status.Strategy)
	assert.Empty(t, status.Error)
	require.NotNil(t, status.StartedAt)
	require.NotNil(t, status.EndedAt)

	require.Len(t, status.StageExecutions, 2)
	assert.Equal(t, "alpha", status.StageExecutions[0].Stage)
	assert.Equal(t, "completed", status.StageExecutions[0].Status)
	assert.Equal(t, "beta", status.StageExecutions[1].Stage)
	assert.Equal(t, "completed", status.StageExecutions[1].Status)

	history := r.History()
	require.Len(t, history, 1)
	assert.Equal(t, status.RunID, history[0].RunID)
}

func TestRunner_Run_CapturesStageLogs(t *testing.T) {
	r, _ := newTestRunner(t, nil)

	require.NoError(t, r.Run("comprehensive"))
	waitIdle(t, r)

	status := r.Status()
	require.Len(t, status.StageExecutions, 2)
	for _, exec := range status.StageExecutions {
		assert.NotEmpty(t, exec.Logs, "stage %s should have captured logs", exec.Stage)
	}
}

func TestRunner_Run_EmptyStrategyDefaultsToComprehensive(t *testing.T) {
	r, _ := newTestRunner(t, nil)

	require.NoError(t, r.Run(""))
	waitIdle(t, r)

	assert.Equal(t, "comprehensive", r.Status().Strategy)
}

func TestRunner_Run_UnknownStrategy(t *testing.T) {
	r, _ := newTestRunner(t, nil)

	err := r.Run("bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
	assert.False(t, r.IsRunning())
}

func TestRunner_Run_RejectsConcurrentRuns(t *testing.T) {
	gate := make(chan struct{})
	r, _ := newTestRunner(t, map[stage.ID]stage.Executor{
		"alpha": func(ctx context.Context, rc *stage.RunContext) (any, error) {
			select {
			case <-gate:
				return "alpha-ready", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	require.NoError(t, r.Run("comprehensive"))
	require.True(t, r.IsRunning())

	err := r.Run("comprehensive")
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(gate)
	waitIdle(t, r)
	assert.Len(t, r.History(), 1)
}

func TestRunner_NotifyIdle_DefersUntilRunFinishes(t *testing.T) {
	gate := make(chan struct{})
	r, _ := newTestRunner(t, map[stage.ID]stage.Executor{
		"alpha": func(ctx context.Context, rc *stage.RunContext) (any, error) {
			select {
			case <-gate:
				return "alpha-ready", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})

	var fired atomic.Bool
	r.NotifyIdle(func() { fired.Store(true) })
	assert.True(t, fired.Load(), "fires immediately when idle")

	fired.Store(false)
	require.NoError(t, r.Run("comprehensive"))
	r.NotifyIdle(func() { fired.Store(true) })
	assert.False(t, fired.Load(), "held back while a run executes")

	close(gate)
	waitIdle(t, r)
	require.Eventually(t, func() bool { return fired.Load() },
		time.Second, time.Millisecond)
}

func TestRunner_Run_CriticalFailureRecorded(t *testing.T) {
	r, _ := newTestRunner(t, map[stage.ID]stage.Executor{
		"alpha": func(ctx context.Context, rc *stage.RunContext) (any, error) {
			return nil, resilience.ErrAuth
		},
	})

	require.NoError(t, r.Run("comprehensive"))
	waitIdle(t, r)

	status := r.Status()
	assert.NotEmpty(t, status.Error)
	assert.Contains(t, status.Error, "alpha")

	require.NotEmpty(t, status.StageExecutions)
	alpha := status.StageExecutions[0]
	assert.Equal(t, "alpha", alpha.Stage)
	assert.Equal(t, "failed", alpha.Status)
	assert.Equal(t, "critical", alpha.Severity)
	assert.NotEmpty(t, alpha.Error)

	// The failed run is still recorded in history.
	require.Len(t, r.History(), 1)
	assert.NotEmpty(t, r.History()[0].Error)
}

func TestRunner_Run_NonCriticalFailureContained(t *testing.T) {
	r, _ := newTestRunner(t, map[stage.ID]stage.Executor{
		"beta": func(ctx context.Context, rc *stage.RunContext) (any, error) {
			return nil, resilience.ErrAuth
		},
	})

	require.NoError(t, r.Run("comprehensive"))
	waitIdle(t, r)

	status := r.Status()
	assert.Empty(t, status.Error)

	require.Len(t, status.StageExecutions, 2)
	byStage := map[string]StageExecution{}
	for _, exec := range status.StageExecutions {
		byStage[exec.Stage] = exec
	}
	assert.Equal(t, "completed", byStage["alpha"].Status)
	assert.Equal(t, "failed", byStage["beta"].Status)
}

func TestRunner_Run_HonorsProviderMaxParallel(t *testing.T) {
	stages := []stage.Stage{
		{ID: "one", Parallelizable: true, EstimatedDuration: 10 * time.Millisecond},
		{ID: "two", Parallelizable: true, EstimatedDuration: 10 * time.Millisecond},
		{ID: "three", Parallelizable: true, EstimatedDuration: 10 * time.Millisecond},
	}
	catalog, err := stage.NewCatalog(stages)
	require.NoError(t, err)

	var inFlight, peak atomic.Int32
	registry := stage.NewRegistry()
	for _, s := range stages {
		id := s.ID
		registry.MustRegister(id, func(ctx context.Context, rc *stage.RunContext) (any, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return id.String(), nil
		})
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := orchestrator.New(catalog, registry, orchestrator.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(orch.Dispose)

	// With the cap at 1 the three independent stages must run one at a
	// time even though all of them are parallelizable.
	provider := &testProvider{orch: orch, maxParallel: 1}
	r := New(provider, NewMemoryStore(10), logger)

	require.NoError(t, r.Run("comprehensive"))
	waitIdle(t, r)

	assert.Equal(t, int32(1), peak.Load())
	assert.Len(t, orch.Results(), 3)
}
