// Package orchestrator coordinates staged, dependency-aware initialization.
//
// A run resolves the stage catalogue into an execution plan (ordered
// sequential and parallel groups), then executes each group with barrier
// synchronization: all members of a group reach a terminal state before the
// next group starts. Every stage attempt consults the resilience manager's
// circuit breaker first and reports its outcome afterward; failures retry
// with backoff or are contained per their severity. Progress and lifecycle
// events stream to subscribers throughout.
//
// The orchestrator owns all run bookkeeping (results, in-flight table,
// breaker table, progress). Stage executors run on their own goroutines but
// report back through the orchestrator's guarded state; they never touch it
// directly.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nomis52/goinit/cache"
	"github.com/nomis52/goinit/graph"
	"github.com/nomis52/goinit/logging"
	"github.com/nomis52/goinit/planner"
	"github.com/nomis52/goinit/progress"
	"github.com/nomis52/goinit/resilience"
	"github.com/nomis52/goinit/stage"
)

// ErrDisposed is returned from any operation after Dispose, and resolves
// all outstanding stage awaits.
var ErrDisposed = errors.New("orchestrator disposed")

// ErrRunInProgress is returned when Initialize is called while a run is
// already executing.
var ErrRunInProgress = errors.New("initialization already in progress")

// DefaultStageTimeout bounds a single stage attempt.
const DefaultStageTimeout = 30 * time.Second

// Observer receives execution milestones for metrics. All methods are
// called synchronously from the run's goroutines and must not block.
type Observer interface {
	RunStarted(strategy Strategy)
	RunFinished(strategy Strategy, succeeded bool, d time.Duration)
	StageFinished(id stage.ID, status progress.StageStatus, d time.Duration)
	FailureRecorded(id stage.ID, severity stage.Severity)
	OpenBreakers(n int)
	ProgressChanged(fraction float64)
}

type nopObserver struct{}

func (nopObserver) RunStarted(Strategy)                                         {}
func (nopObserver) RunFinished(Strategy, bool, time.Duration)                   {}
func (nopObserver) StageFinished(stage.ID, progress.StageStatus, time.Duration) {}
func (nopObserver) FailureRecorded(stage.ID, stage.Severity)                    {}
func (nopObserver) OpenBreakers(int)                                            {}
func (nopObserver) ProgressChanged(float64)                                     {}

// Orchestrator sequences a stage catalogue into runs.
type Orchestrator struct {
	logger       *slog.Logger
	catalog      *stage.Catalog
	graph        *graph.Graph
	resolver     *planner.Resolver
	registry     *stage.Registry
	resilience   *resilience.Manager
	cache        *cache.Cache
	observer     Observer
	logHook      logging.LoggerHook
	stageTimeout time.Duration

	// sleep waits for a backoff delay; overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error

	// baseCtx is canceled on Dispose; every run derives from it.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu         sync.Mutex
	results    map[stage.ID]*stage.ExecutionResult
	historical map[stage.ID]time.Duration
	tracker    *progress.Tracker // current run, nil when idle
	running    bool
	disposed   bool
	eventSubs  []chan Event
	progSubs   []chan progress.Snapshot
	bg         sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.With("component", "orchestrator")
	}
}

// WithResilience supplies a configured resilience manager.
func WithResilience(m *resilience.Manager) Option {
	return func(o *Orchestrator) {
		o.resilience = m
	}
}

// WithCache supplies the stage-result fallback cache.
func WithCache(c *cache.Cache) Option {
	return func(o *Orchestrator) {
		o.cache = c
	}
}

// WithObserver installs a metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

// WithLogHook wraps each stage's logger, typically to capture the stage's
// log records for later retrieval.
func WithLogHook(hook logging.LoggerHook) Option {
	return func(o *Orchestrator) {
		o.logHook = hook
	}
}

// WithStageTimeout bounds each stage attempt.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.stageTimeout = d
	}
}

// New creates an orchestrator over the given catalogue and executor
// registry. The catalogue is validated for structural defects; a graph with
// a cycle (or any other critical finding) is rejected so a run can never
// start on it.
func New(catalog *stage.Catalog, registry *stage.Registry, opts ...Option) (*Orchestrator, error) {
	g := graph.New(catalog)
	if report := g.Validate(graph.ValidateOptions{}); !report.Valid {
		return nil, &ValidationError{Report: report}
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		logger:       slog.Default().With("component", "orchestrator"),
		catalog:      catalog,
		graph:        g,
		resolver:     planner.NewResolver(g),
		registry:     registry,
		observer:     nopObserver{},
		stageTimeout: DefaultStageTimeout,
		sleep:        sleepCtx,
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
		results:      make(map[stage.ID]*stage.ExecutionResult),
		historical:   make(map[stage.ID]time.Duration),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.resilience == nil {
		o.resilience = resilience.NewManager(resilience.Config{})
	}
	if o.cache == nil {
		o.cache = cache.New(0)
	}
	return o, nil
}

// ValidationError reports structural graph defects found before any run.
type ValidationError struct {
	Report graph.Report
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	for _, issue := range e.Report.Issues {
		if issue.Severity == stage.SeverityCritical {
			return "invalid dependency graph: " + issue.Message
		}
	}
	return "invalid dependency graph"
}

// Graph returns the dependency graph for external inspection.
func (o *Orchestrator) Graph() *graph.Graph {
	return o.graph
}

// Catalog returns the stage catalogue.
func (o *Orchestrator) Catalog() *stage.Catalog {
	return o.catalog
}

// Results returns a copy of the stage results accumulated so far.
func (o *Orchestrator) Results() map[stage.ID]stage.ExecutionResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[stage.ID]stage.ExecutionResult, len(o.results))
	for id, r := range o.results {
		out[id] = *r
	}
	return out
}

// Stats is a point-in-time health snapshot.
type Stats struct {
	// Running reports whether a run is executing right now.
	Running bool `json:"running"`
	// CompletedStages counts stages with a successful result.
	CompletedStages int `json:"completed_stages"`
	// TotalStages is the catalogue size.
	TotalStages int `json:"total_stages"`
	// Resilience carries breaker and failure statistics.
	Resilience resilience.Stats `json:"resilience"`
	// BreakerStates maps each stage with a non-closed breaker to its state.
	BreakerStates map[stage.ID]resilience.BreakerState `json:"breaker_states,omitempty"`
}

// Stats returns current orchestrator health.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	completed := 0
	for _, r := range o.results {
		if r.Succeeded() {
			completed++
		}
	}
	running := o.running
	o.mu.Unlock()

	states := make(map[stage.ID]resilience.BreakerState)
	for _, id := range o.catalog.IDs() {
		if s := o.resilience.BreakerState(id); s != resilience.BreakerClosed {
			states[id] = s
		}
	}

	return Stats{
		Running:         running,
		CompletedStages: completed,
		TotalStages:     o.catalog.Len(),
		Resilience:      o.resilience.Stats(),
		BreakerStates:   states,
	}
}

// Progress returns a channel receiving progress snapshots for the current
// and subsequent runs. Closed on Dispose.
func (o *Orchestrator) Progress() <-chan progress.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan progress.Snapshot, 16)
	if o.disposed {
		close(ch)
		return ch
	}
	o.progSubs = append(o.progSubs, ch)
	return ch
}

// ProgressSnapshot returns the current run's progress, or a zero snapshot
// when idle.
func (o *Orchestrator) ProgressSnapshot() progress.Snapshot {
	o.mu.Lock()
	tracker := o.tracker
	o.mu.Unlock()
	if tracker == nil {
		return progress.Snapshot{}
	}
	return tracker.Snapshot()
}

// HistoricalDurations returns observed stage durations from completed runs,
// used to reorder parallel groups on later plans.
func (o *Orchestrator) HistoricalDurations() map[stage.ID]time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[stage.ID]time.Duration, len(o.historical))
	for id, d := range o.historical {
		out[id] = d
	}
	return out
}

// Reset clears accumulated stage results, cached payloads and per-run retry
// state. Circuit breakers persist: they are the orchestrator's memory of
// repeated failures across runs.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.results = make(map[stage.ID]*stage.ExecutionResult)
	o.mu.Unlock()
	o.cache.Clear()
	o.resilience.ResetRun()
}

// Dispose cancels any in-flight run, resolves all outstanding stage awaits
// with ErrDisposed, and closes all event and progress subscriptions. The
// orchestrator is unusable afterward.
func (o *Orchestrator) Dispose() {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return
	}
	o.disposed = true
	eventSubs := o.eventSubs
	progSubs := o.progSubs
	o.eventSubs = nil
	o.progSubs = nil
	o.mu.Unlock()

	o.baseCancel()
	o.bg.Wait()

	for _, ch := range eventSubs {
		close(ch)
	}
	for _, ch := range progSubs {
		close(ch)
	}
}

// isDisposed must be called with o.mu held.
func (o *Orchestrator) isDisposed() bool {
	return o.disposed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
