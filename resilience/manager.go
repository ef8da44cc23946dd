package resilience

import (
	"sync"
	"time"

	"github.com/nomis52/goinit/stage"
)

const (
	defaultFailureThreshold = 3
	defaultRecoveryTimeout  = 30 * time.Second
	defaultErrorLogSize     = 100
)

// Config tunes the resilience manager.
type Config struct {
	// FailureThreshold opens a stage's breaker after this many consecutive
	// failures. Zero means 3.
	FailureThreshold int
	// RecoveryTimeout is how long an open breaker blocks before allowing a
	// half-open trial. Zero means 30s.
	RecoveryTimeout time.Duration
	// Retry is the backoff policy. Zero-valued fields take defaults.
	Retry RetryPolicy
	// ErrorLogSize bounds the recent-error ring. Zero means 100.
	ErrorLogSize int
}

func (c *Config) setDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = defaultRecoveryTimeout
	}
	def := DefaultRetryPolicy()
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = def.MaxRetries
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = def.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.MaxDelay
	}
	if c.ErrorLogSize == 0 {
		c.ErrorLogSize = defaultErrorLogSize
	}
}

// Manager owns the per-stage circuit breakers, retry bookkeeping and the
// recent-error log. Breakers live as long as the Manager (the orchestrator
// instance), so failures accumulate across runs; retry state is per run and
// cleared by ResetRun.
//
// The Manager is safe for concurrent use: stages in a parallel group record
// outcomes from their own goroutines.
type Manager struct {
	cfg   Config
	clock func() time.Time

	mu       sync.Mutex
	breakers map[stage.ID]*breaker
	retries  map[stage.ID]*retryState
	errorLog *errorRing
	counts   map[stage.ID]map[stage.Severity]int
	total    int
	failures int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// NewManager creates a resilience manager with the given configuration.
func NewManager(cfg Config, opts ...Option) *Manager {
	cfg.setDefaults()
	m := &Manager{
		cfg:      cfg,
		clock:    time.Now,
		breakers: make(map[stage.ID]*breaker),
		retries:  make(map[stage.ID]*retryState),
		errorLog: newErrorRing(cfg.ErrorLogSize),
		counts:   make(map[stage.ID]map[stage.Severity]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CanExecute reports whether the stage's circuit breaker permits an
// execution attempt right now.
func (m *Manager) CanExecute(id stage.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerFor(id).allow(m.clock())
}

// BreakerState returns the current breaker position for a stage.
func (m *Manager) BreakerState(id stage.ID) BreakerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[id]; ok {
		return b.state
	}
	return BreakerClosed
}

// RecordSuccess closes the stage's breaker and clears its retry state.
func (m *Manager) RecordSuccess(id stage.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerFor(id).recordSuccess()
	delete(m.retries, id)
	m.total++
}

// RecordFailure registers a failure for the stage and resolves what to do
// about it: retry, continue without the stage, fail the stage terminally
// (aborting the run when the stage is critical), or abort outright.
func (m *Manager) RecordFailure(s stage.Stage, err error, context map[string]string) FailureAction {
	severity := Classify(err, s)
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.breakerFor(s.ID).recordFailure(now)
	m.errorLog.add(&StageError{
		Stage:     s.ID,
		Err:       err,
		Severity:  severity,
		Context:   context,
		Timestamp: now,
	})
	if m.counts[s.ID] == nil {
		m.counts[s.ID] = make(map[stage.Severity]int)
	}
	m.counts[s.ID][severity]++
	m.total++
	m.failures++

	rs := m.retries[s.ID]
	if rs == nil {
		rs = &retryState{}
		m.retries[s.ID] = rs
	}
	rs.attempts++
	rs.lastAttemptTime = now

	if !Retryable(severity) {
		if s.Critical {
			return ActionAbort
		}
		return ActionCriticalFailure
	}
	if rs.attempts <= m.cfg.Retry.MaxRetries && m.breakerFor(s.ID).state != BreakerOpen {
		return ActionRetry
	}
	if s.Critical {
		return ActionCriticalFailure
	}
	return ActionContinue
}

// NextDelay returns the backoff before the stage's next attempt, based on
// how many failures it has accumulated this run.
func (m *Manager) NextDelay(id stage.ID) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	attempts := 1
	if rs, ok := m.retries[id]; ok {
		attempts = rs.attempts
	}
	return m.cfg.Retry.Delay(attempts)
}

// Attempts returns how many failed attempts the stage has made this run.
func (m *Manager) Attempts(id stage.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rs, ok := m.retries[id]; ok {
		return rs.attempts
	}
	return 0
}

// ResetRun clears per-run retry state. Breakers are deliberately left
// alone: they persist across runs.
func (m *Manager) ResetRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries = make(map[stage.ID]*retryState)
}

// Stats is a point-in-time view of failure containment health.
type Stats struct {
	// TotalOutcomes counts recorded successes and failures.
	TotalOutcomes int `json:"total_outcomes"`
	// TotalFailures counts recorded failures.
	TotalFailures int `json:"total_failures"`
	// FailureRate is TotalFailures / TotalOutcomes, 0 when nothing ran.
	FailureRate float64 `json:"failure_rate"`
	// OpenBreakers counts stages currently blocked.
	OpenBreakers int `json:"open_breakers"`
	// FailuresByStage counts failures per stage and severity.
	FailuresByStage map[stage.ID]map[stage.Severity]int `json:"failures_by_stage"`
	// RecentErrors holds the most recent failures, oldest first.
	RecentErrors []*StageError `json:"recent_errors"`
}

// Stats returns current failure statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	open := 0
	for _, b := range m.breakers {
		if b.state == BreakerOpen {
			open++
		}
	}

	counts := make(map[stage.ID]map[stage.Severity]int, len(m.counts))
	for id, bySeverity := range m.counts {
		counts[id] = make(map[stage.Severity]int, len(bySeverity))
		for sev, n := range bySeverity {
			counts[id][sev] = n
		}
	}

	rate := 0.0
	if m.total > 0 {
		rate = float64(m.failures) / float64(m.total)
	}

	return Stats{
		TotalOutcomes:   m.total,
		TotalFailures:   m.failures,
		FailureRate:     rate,
		OpenBreakers:    open,
		FailuresByStage: counts,
		RecentErrors:    m.errorLog.all(),
	}
}

func (m *Manager) breakerFor(id stage.ID) *breaker {
	b, ok := m.breakers[id]
	if !ok {
		b = &breaker{
			threshold:       m.cfg.FailureThreshold,
			recoveryTimeout: m.cfg.RecoveryTimeout,
		}
		m.breakers[id] = b
	}
	return b
}

// errorRing is a bounded ring of recent stage errors.
type errorRing struct {
	entries []*StageError
	next    int
	full    bool
}

func newErrorRing(size int) *errorRing {
	return &errorRing{entries: make([]*StageError, size)}
}

func (r *errorRing) add(e *StageError) {
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// all returns the ring's contents, oldest first.
func (r *errorRing) all() []*StageError {
	if !r.full {
		out := make([]*StageError, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]*StageError, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}
