// Package runner executes initialization runs in the background on behalf
// of HTTP handlers and cron triggers. At most one run executes at a time;
// each completed run is recorded in a StateStore together with the per-stage
// log tails captured during execution.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nomis52/goinit/logging"
	"github.com/nomis52/goinit/orchestrator"
	"github.com/nomis52/goinit/stage"
)

// ErrRunInProgress is returned by Run when a run is already executing.
var ErrRunInProgress = errors.New("a run is already in progress")

// Provider supplies the orchestrator for each run. It is consulted at run
// start so a configuration reload takes effect on the next run rather than
// mid-flight.
type Provider interface {
	// Orchestrator returns the current orchestrator.
	Orchestrator() *orchestrator.Orchestrator
	// LogCollector returns the collector wired into the orchestrator's log
	// hook, or nil when log capture is disabled.
	LogCollector() *logging.LogCollector
	// RunTimeout bounds a whole run. Zero means unbounded.
	RunTimeout() time.Duration
	// MaxParallel caps parallel group size. Zero means the planner
	// default.
	MaxParallel() int
}

// Runner serializes initialization runs and records their outcomes.
type Runner struct {
	logger   *slog.Logger
	provider Provider
	store    StateStore

	mu      sync.Mutex
	status  RunStatus
	idleFns []func()
}

// New creates a Runner backed by the given provider and store.
func New(provider Provider, store StateStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:   logger.With("component", "runner"),
		provider: provider,
		store:    store,
		status:   RunStatus{State: RunStateIdle},
	}
}

// Run starts an initialization run with the named strategy in the
// background. An empty name selects the comprehensive strategy. Returns
// ErrRunInProgress if a run is already executing.
func (r *Runner) Run(strategyName string) error {
	strategy := orchestrator.Strategy(strategyName)
	if strategyName == "" {
		strategy = orchestrator.StrategyComprehensive
	}
	if !strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", strategyName)
	}
	if err := r.tryStart(strategy); err != nil {
		return err
	}
	go r.execute(strategy)
	return nil
}

// IsRunning reports whether a run is currently executing.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.State == RunStateRunning
}

// NotifyIdle invokes fn once no run is executing. When the runner is
// already idle fn runs before NotifyIdle returns; otherwise it runs after
// the current run finishes.
func (r *Runner) NotifyIdle(fn func()) {
	r.mu.Lock()
	if r.status.State == RunStateRunning {
		r.idleFns = append(r.idleFns, fn)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn()
}

// Status returns the current run status, or the last run's outcome when
// idle.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// History returns recorded runs, most recent first.
func (r *Runner) History() []RunStatus {
	return r.store.Runs()
}

func (r *Runner) tryStart(strategy orchestrator.Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.State == RunStateRunning {
		return ErrRunInProgress
	}
	now := time.Now()
	r.status = RunStatus{
		State:     RunStateRunning,
		Strategy:  string(strategy),
		StartedAt: &now,
	}
	return nil
}

func (r *Runner) execute(strategy orchestrator.Strategy) {
	orch := r.provider.Orchestrator()
	collector := r.provider.LogCollector()
	if collector != nil {
		collector.Clear()
	}

	r.logger.Info("initialization run starting", "strategy", strategy)
	result, err := orch.Initialize(context.Background(), orchestrator.RunOptions{
		Strategy:    strategy,
		Timeout:     r.provider.RunTimeout(),
		MaxParallel: r.provider.MaxParallel(),
	})
	r.finish(result, err, collector)
}

// finish records the run's outcome, transitions back to idle and persists
// the record.
func (r *Runner) finish(result *orchestrator.Result, runErr error, collector *logging.LogCollector) {
	r.mu.Lock()
	status := r.status
	r.mu.Unlock()

	ended := time.Now()
	status.State = RunStateIdle
	status.EndedAt = &ended

	if runErr != nil {
		status.Error = runErr.Error()
		// A critical-stage abort still carries the partial results.
		var abort *orchestrator.RunError
		if errors.As(runErr, &abort) && abort.Result != nil {
			result = abort.Result
		}
	}
	if result != nil {
		status.RunID = result.RunID
		status.Strategy = string(result.Strategy)
		startedAt := result.StartedAt
		endedAt := result.EndedAt
		status.StartedAt = &startedAt
		status.EndedAt = &endedAt
		status.StageExecutions = buildStageExecutions(result, collector)
	}

	if err := r.store.Save(status); err != nil {
		r.logger.Error("failed to persist run record", "run_id", status.RunID, "error", err)
	}

	r.mu.Lock()
	r.status = status
	idleFns := r.idleFns
	r.idleFns = nil
	r.mu.Unlock()
	for _, fn := range idleFns {
		fn()
	}

	if runErr != nil {
		r.logger.Error("initialization run failed",
			"run_id", status.RunID, "strategy", status.Strategy, "error", runErr)
		return
	}
	r.logger.Info("initialization run finished",
		"run_id", status.RunID, "strategy", status.Strategy,
		"stages", len(status.StageExecutions))
}

// buildStageExecutions joins the run's stage results with the captured log
// tails, ordered by start time for stable presentation.
func buildStageExecutions(result *orchestrator.Result, collector *logging.LogCollector) []StageExecution {
	var logs map[stage.ID][]logging.LogEntry
	if collector != nil {
		logs = collector.GetAllLogs()
	}

	execs := make([]StageExecution, 0, len(result.StageResults)+len(result.Skipped))
	for id, res := range result.StageResults {
		exec := StageExecution{
			Stage:     id.String(),
			Status:    res.Status.String(),
			Attempts:  res.Attempts,
			FromCache: res.FromCache,
			Logs:      logs[id],
		}
		if res.Status == stage.StatusFailed {
			exec.Severity = res.Severity.String()
		}
		if res.Err != nil {
			exec.Error = res.Err.Error()
		}
		if !res.StartedAt.IsZero() {
			startedAt := res.StartedAt
			exec.StartedAt = &startedAt
		}
		if !res.EndedAt.IsZero() {
			endedAt := res.EndedAt
			exec.EndedAt = &endedAt
		}
		execs = append(execs, exec)
	}
	for _, id := range result.Skipped {
		execs = append(execs, StageExecution{
			Stage:  id.String(),
			Status: "skipped",
			Logs:   logs[id],
		})
	}

	sort.Slice(execs, func(i, j int) bool {
		si, sj := execs[i].StartedAt, execs[j].StartedAt
		switch {
		case si == nil && sj == nil:
			return execs[i].Stage < execs[j].Stage
		case si == nil:
			return false
		case sj == nil:
			return true
		case si.Equal(*sj):
			return execs[i].Stage < execs[j].Stage
		default:
			return si.Before(*sj)
		}
	})
	return execs
}
