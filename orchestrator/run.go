package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomis52/goinit/planner"
	"github.com/nomis52/goinit/progress"
	"github.com/nomis52/goinit/resilience"
	"github.com/nomis52/goinit/stage"
)

// runState is the per-run bookkeeping shared by a run's goroutines.
type runState struct {
	id       string
	strategy Strategy
	rc       *stage.RunContext
	tracker  *progress.Tracker
	plan     *planner.Plan

	mu      sync.Mutex
	skipped []stage.ID
	planned map[stage.ID]bool
}

// stageAbort is the internal signal that a critical stage failed terminally
// and the run must stop.
type stageAbort struct {
	stage stage.ID
	cause error
}

// Error implements the error interface.
func (a *stageAbort) Error() string {
	return fmt.Sprintf("critical stage %s failed: %v", a.stage, a.cause)
}

// Unwrap exposes the stage's terminal error.
func (a *stageAbort) Unwrap() error {
	return a.cause
}

// Initialize executes one run under the selected strategy.
//
// Failures on non-critical stages are contained: they are recorded in the
// result and the run continues. A critical stage's terminal failure aborts
// the run; Initialize then returns a *RunError wrapping the cause together
// with the partial results accumulated so far. Stages depending on a failed
// critical stage are never attempted and are absent from StageResults.
func (o *Orchestrator) Initialize(ctx context.Context, opts RunOptions) (*Result, error) {
	opts.setDefaults()
	if !opts.Strategy.Valid() {
		return nil, fmt.Errorf("unknown strategy %q", opts.Strategy)
	}

	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return nil, ErrDisposed
	}
	if o.running {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.running = true
	o.mu.Unlock()
	var bgRun *runState
	defer func() {
		o.mu.Lock()
		o.running = false
		o.tracker = nil
		o.mu.Unlock()
		if bgRun != nil {
			// Launched only after the run gate clears, so the detached
			// Initialize cannot trip over this run's own ErrRunInProgress.
			o.continueInBackground(bgRun)
		}
	}()

	if opts.ForceRefresh {
		o.Reset()
	}
	o.resilience.ResetRun()

	strategy, plan, err := o.buildPlan(opts)
	if err != nil {
		return nil, fmt.Errorf("resolving execution plan: %w", err)
	}

	run := &runState{
		id:       uuid.NewString(),
		strategy: strategy,
		rc:       stage.NewRunContext(opts.ContextSeed),
		plan:     plan,
		planned:  make(map[stage.ID]bool, plan.StageCount()),
	}
	var planned []stage.Stage
	for _, g := range plan.Groups {
		for _, id := range g.Stages {
			s, _ := o.catalog.Get(id)
			planned = append(planned, s)
			run.planned[id] = true
		}
	}
	run.tracker = progress.NewTracker(planned, strategy.etaMultiplier())

	o.mu.Lock()
	o.tracker = run.tracker
	o.mu.Unlock()
	go o.pumpProgress(run.tracker.Subscribe())

	runCtx, cancel := o.runContext(ctx, opts.Timeout)
	defer cancel()

	o.logger.Info("initialization started",
		"run_id", run.id, "strategy", string(strategy),
		"stages", plan.StageCount(), "groups", len(plan.Groups),
		"parallelism_level", plan.ParallelismLevel)
	o.observer.RunStarted(strategy)
	o.emit(Event{Type: EventRunStarted, RunID: run.id, Strategy: strategy})

	startedAt := time.Now()
	var abort *stageAbort
	for _, group := range plan.Groups {
		if err := o.executeGroup(runCtx, run, group); err != nil {
			if a, ok := err.(*stageAbort); ok {
				abort = a
				break
			}
			// Disposal or run-level cancellation.
			abort = &stageAbort{cause: err}
			break
		}
	}
	run.tracker.Finish()

	result := o.buildResult(run, startedAt)
	o.mergeHistorical(run.tracker.Durations())
	o.observer.RunFinished(strategy, abort == nil, result.Duration())
	o.observer.OpenBreakers(o.resilience.Stats().OpenBreakers)

	if abort != nil {
		result.FailedCritical = abort.stage
		o.logger.Error("initialization failed",
			"run_id", run.id, "stage", abort.stage.String(),
			"duration", result.Duration(), "error", abort.cause)
		o.emit(Event{Type: EventRunFailed, RunID: run.id, Strategy: strategy,
			Stage: abort.stage, Error: abort.cause.Error()})
		if abort.stage == "" {
			// The run was cut short by cancellation or disposal, not by a
			// failing stage.
			return result, abort.cause
		}
		return result, &RunError{Stage: abort.stage, Cause: abort.cause, Result: result}
	}

	o.logger.Info("initialization completed",
		"run_id", run.id, "duration", result.Duration(),
		"completed", len(result.StageResults), "skipped", len(result.Skipped))
	o.emit(Event{Type: EventRunCompleted, RunID: run.id, Strategy: strategy})

	if strategy == StrategyMinimal {
		bgRun = run
	}
	return result, nil
}

// runContext derives the run's context: canceled by the caller, by the
// optional run timeout, and by Dispose.
func (o *Orchestrator) runContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	// Tie the run to the orchestrator's lifetime.
	stop := context.AfterFunc(o.baseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// executeGroup runs one plan group. Parallel groups start every member
// concurrently and await all of them: one member's failure does not cancel
// its siblings, and the group boundary is a barrier. The first critical
// abort (if any) is returned after the barrier.
func (o *Orchestrator) executeGroup(ctx context.Context, run *runState, group planner.Group) error {
	if group.Type == planner.Sequential || len(group.Stages) == 1 {
		for _, id := range group.Stages {
			if err := o.executeStage(ctx, run, id); err != nil {
				return err
			}
		}
		return nil
	}

	errs := make([]error, len(group.Stages))
	var wg sync.WaitGroup
	for i, id := range group.Stages {
		wg.Add(1)
		go func(i int, id stage.ID) {
			defer wg.Done()
			errs[i] = o.executeStage(ctx, run, id)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// executeStage drives a single stage to a terminal state. It returns a
// non-nil error only when the run must stop (critical failure, disposal,
// run cancellation); contained failures return nil.
func (o *Orchestrator) executeStage(ctx context.Context, run *runState, id stage.ID) error {
	s, ok := o.catalog.Get(id)
	if !ok {
		return fmt.Errorf("stage %q not in catalogue", id)
	}

	o.mu.Lock()
	if r, ok := o.results[id]; ok && r.Succeeded() {
		// Completed on an earlier run; surface the payload and move on.
		o.mu.Unlock()
		if r.Payload != nil {
			run.rc.Set(id.String(), r.Payload)
		}
		run.tracker.StartStage(id)
		run.tracker.CompleteStage(id)
		return nil
	}
	o.mu.Unlock()

	// Only one run executes at a time and a plan lists each stage at most
	// once, so at this point nothing else can be executing this stage.
	return o.runStage(ctx, run, s)
}

// runStage performs the attempt loop for one stage: dependency check,
// breaker gate, executor invocation under timeout, retry with backoff, and
// containment of terminal failures.
func (o *Orchestrator) runStage(ctx context.Context, run *runState, s stage.Stage) error {
	logger := o.logger.With("run_id", run.id, "stage", s.ID.String())
	if o.logHook != nil {
		logger = o.logHook.LoggerForStage(logger, s.ID)
	}

	// A stage runs only once every dependency has completed. A dependency
	// that failed or was skipped (necessarily non-critical, or the run
	// would already have aborted) makes this stage unreachable: skip it.
	for _, dep := range s.DependsOn {
		o.mu.Lock()
		depResult, ok := o.results[dep]
		o.mu.Unlock()
		if !run.planned[dep] && !ok {
			// Dependency outside the run's stage subset and never run:
			// the subset's caller accepted that.
			continue
		}
		if ok && depResult.Succeeded() {
			continue
		}
		logger.Warn("skipping stage, dependency did not complete", "dependency", dep.String())
		run.mu.Lock()
		run.skipped = append(run.skipped, s.ID)
		run.mu.Unlock()
		run.tracker.SkipStage(s.ID)
		o.observer.StageFinished(s.ID, progress.StatusSkipped, 0)
		o.emit(Event{Type: EventStageSkipped, RunID: run.id, Strategy: run.strategy, Stage: s.ID})
		return nil
	}

	executor, ok := o.registry.Lookup(s.ID)
	if !ok {
		return o.containFailure(run, s, time.Now(), 0,
			fmt.Errorf("no executor registered for stage %q", s.ID),
			failureDisposition(s, stage.SeverityHigh))
	}

	run.tracker.StartStage(s.ID)
	o.emit(Event{Type: EventStageStarted, RunID: run.id, Strategy: run.strategy, Stage: s.ID})
	logger.Debug("stage started", "estimated", s.EstimatedDuration)

	startedAt := time.Now()
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return o.runErr(ctx)
		}

		if !o.resilience.CanExecute(s.ID) {
			// The breaker is open: abort this attempt without invoking
			// the executor at all.
			err := fmt.Errorf("stage %s: %w", s.ID, resilience.ErrBreakerOpen)
			logger.Warn("stage blocked by open circuit breaker")
			return o.containFailure(run, s, startedAt, attempts, err,
				failureDisposition(s, stage.SeverityHigh))
		}

		attempts++
		payload, err := o.invoke(ctx, run, executor)
		if err == nil {
			return o.recordSuccess(run, s, startedAt, attempts, payload, logger)
		}
		if ctx.Err() != nil {
			return o.runErr(ctx)
		}

		severity := resilience.Classify(err, s)
		action := o.resilience.RecordFailure(s, err, map[string]string{
			"run_id":  run.id,
			"attempt": fmt.Sprintf("%d", attempts),
		})
		o.observer.FailureRecorded(s.ID, severity)
		logger.Warn("stage attempt failed",
			"attempt", attempts, "severity", severity.String(),
			"action", action.String(), "error", err)

		if action == resilience.ActionRetry {
			delay := o.resilience.NextDelay(s.ID)
			if serr := o.sleep(ctx, delay); serr != nil {
				return o.runErr(ctx)
			}
			continue
		}
		return o.containFailure(run, s, startedAt, attempts, err, disposition{
			severity: severity,
			action:   action,
		})
	}
}

// invoke calls the stage executor under the per-stage timeout.
func (o *Orchestrator) invoke(ctx context.Context, run *runState, executor stage.Executor) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()
	payload, err := executor(attemptCtx, run.rc)
	if err == nil && attemptCtx.Err() != nil {
		err = attemptCtx.Err()
	}
	return payload, err
}

func (o *Orchestrator) recordSuccess(run *runState, s stage.Stage, startedAt time.Time, attempts int, payload any, logger *slog.Logger) error {
	now := time.Now()
	result := &stage.ExecutionResult{
		Stage:     s.ID,
		Status:    stage.StatusCompleted,
		StartedAt: startedAt,
		EndedAt:   now,
		Payload:   payload,
		Attempts:  attempts,
	}
	o.mu.Lock()
	o.results[s.ID] = result
	o.mu.Unlock()

	if payload != nil {
		o.cache.Put(s.ID, payload)
		run.rc.Set(s.ID.String(), payload)
	}
	o.resilience.RecordSuccess(s.ID)
	run.tracker.CompleteStage(s.ID)
	o.observer.StageFinished(s.ID, progress.StatusCompleted, now.Sub(startedAt))
	o.emit(Event{Type: EventStageCompleted, RunID: run.id, Strategy: run.strategy, Stage: s.ID})
	logger.Info("stage completed", "duration", now.Sub(startedAt), "attempts", attempts)
	return nil
}

// disposition pairs a failure's severity with its resolved action.
type disposition struct {
	severity stage.Severity
	action   resilience.FailureAction
}

// failureDisposition resolves the action for failures decided without a
// RecordFailure round-trip (breaker open, missing executor).
func failureDisposition(s stage.Stage, severity stage.Severity) disposition {
	action := resilience.ActionContinue
	if s.Critical {
		action = resilience.ActionCriticalFailure
	}
	return disposition{severity: severity, action: action}
}

// containFailure applies the containment policy to a terminal stage
// failure: high and medium severity failures fall back to a cached payload
// when one exists; otherwise the stage is recorded failed and, when the
// stage is critical, the run aborts.
func (o *Orchestrator) containFailure(run *runState, s stage.Stage, startedAt time.Time, attempts int, cause error, d disposition) error {
	if d.severity == stage.SeverityHigh || d.severity == stage.SeverityMedium {
		if payload, ok := o.cache.Get(s.ID); ok {
			now := time.Now()
			o.logger.Warn("stage falling back to cached result",
				"run_id", run.id, "stage", s.ID.String(), "error", cause)
			result := &stage.ExecutionResult{
				Stage:     s.ID,
				Status:    stage.StatusCompleted,
				StartedAt: startedAt,
				EndedAt:   now,
				Payload:   payload,
				Attempts:  attempts,
				FromCache: true,
			}
			o.mu.Lock()
			o.results[s.ID] = result
			o.mu.Unlock()
			run.rc.Set(s.ID.String(), payload)
			run.tracker.CompleteStage(s.ID)
			o.observer.StageFinished(s.ID, progress.StatusCompleted, now.Sub(startedAt))
			o.emit(Event{Type: EventStageCompleted, RunID: run.id, Strategy: run.strategy, Stage: s.ID})
			return nil
		}
	}

	now := time.Now()
	result := &stage.ExecutionResult{
		Stage:     s.ID,
		Status:    stage.StatusFailed,
		StartedAt: startedAt,
		EndedAt:   now,
		Err:       cause,
		Severity:  d.severity,
		Attempts:  attempts,
	}
	o.mu.Lock()
	o.results[s.ID] = result
	o.mu.Unlock()

	run.tracker.FailStage(s.ID)
	o.observer.StageFinished(s.ID, progress.StatusFailed, now.Sub(startedAt))
	o.emit(Event{Type: EventStageFailed, RunID: run.id, Strategy: run.strategy,
		Stage: s.ID, Error: cause.Error(), Severity: d.severity})

	if s.Critical && (d.action == resilience.ActionAbort || d.action == resilience.ActionCriticalFailure) {
		return &stageAbort{stage: s.ID, cause: cause}
	}
	o.logger.Warn("stage failed, continuing without it",
		"run_id", run.id, "stage", s.ID.String(),
		"severity", d.severity.String(), "error", cause)
	return nil
}

// runErr maps a canceled run context to the right sentinel.
func (o *Orchestrator) runErr(ctx context.Context) error {
	if o.baseCtx.Err() != nil {
		return ErrDisposed
	}
	return ctx.Err()
}

// buildResult assembles the aggregate result for the run's planned stages.
func (o *Orchestrator) buildResult(run *runState, startedAt time.Time) *Result {
	result := &Result{
		RunID:        run.id,
		Strategy:     run.strategy,
		StartedAt:    startedAt,
		EndedAt:      time.Now(),
		StageResults: make(map[stage.ID]stage.ExecutionResult),
		Metrics:      run.tracker.Metrics(),
	}

	o.mu.Lock()
	for id := range run.planned {
		if r, ok := o.results[id]; ok {
			result.StageResults[id] = *r
		}
	}
	o.mu.Unlock()

	run.mu.Lock()
	result.Skipped = append(result.Skipped, run.skipped...)
	run.mu.Unlock()
	return result
}

func (o *Orchestrator) mergeHistorical(durations map[stage.ID]time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, d := range durations {
		o.historical[id] = d
	}
}

// continueInBackground schedules the stages the minimal strategy left out
// as a detached comprehensive run. Failures there are recorded in results
// and statistics but never surface to the foreground caller.
func (o *Orchestrator) continueInBackground(run *runState) {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.bg.Add(1)
	o.mu.Unlock()

	// Seed the background run's context bag with the foreground payloads
	// so later stages can read earlier outputs.
	seed := make(map[string]any)
	for _, key := range run.rc.Keys() {
		if v, ok := run.rc.Get(key); ok {
			seed[key] = v
		}
	}

	go func() {
		defer o.bg.Done()
		_, err := o.Initialize(o.baseCtx, RunOptions{
			Strategy:    StrategyComprehensive,
			ContextSeed: seed,
		})
		if err != nil {
			o.logger.Warn("background continuation did not finish cleanly", "error", err)
		}
	}()
}

// pumpProgress forwards tracker snapshots to orchestrator-level
// subscribers until the tracker finishes.
func (o *Orchestrator) pumpProgress(in <-chan progress.Snapshot) {
	for snap := range in {
		o.observer.ProgressChanged(snap.Fraction)
		o.mu.Lock()
		subs := o.progSubs
		o.mu.Unlock()
		for _, ch := range subs {
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
