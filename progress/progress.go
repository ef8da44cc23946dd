// Package progress tracks live per-stage and aggregate initialization
// progress. The tracker rebuilds an immutable snapshot on every state
// transition and pushes it to subscribers over broadcast channels; nothing
// here is persisted.
package progress

import (
	"sync"
	"time"

	"github.com/nomis52/goinit/stage"
)

// StageStatus is the per-stage position in the status machine:
// pending -> inProgress -> {completed | failed | skipped}.
type StageStatus int

const (
	// StatusPending means the stage has not started.
	StatusPending StageStatus = iota
	// StatusInProgress means the stage is executing.
	StatusInProgress
	// StatusCompleted means the stage finished successfully.
	StatusCompleted
	// StatusFailed means the stage reached a terminal failure.
	StatusFailed
	// StatusSkipped means the stage was not attempted (excluded, or an
	// upstream failure made it unreachable).
	StatusSkipped
)

// String returns the status name.
func (s StageStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s StageStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Terminal reports whether the status is an end state.
func (s StageStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// StageProgress is one stage's view in a snapshot.
type StageProgress struct {
	Stage     stage.ID      `json:"stage"`
	Status    StageStatus   `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Snapshot is an immutable view of the whole run's progress.
type Snapshot struct {
	// Fraction is aggregate progress in [0, 1]. Terminal stages count as
	// done regardless of outcome, so contained failures still let a run
	// reach 1.0; in-flight stages count half.
	Fraction float64 `json:"fraction"`
	// Phase is the coarse user-facing classification of Fraction.
	Phase Phase `json:"phase"`
	// Elapsed is time since the run began.
	Elapsed time.Duration `json:"elapsed"`
	// ETA estimates remaining time from the average completed-stage
	// duration, scaled by the strategy multiplier. Zero when unknown.
	ETA time.Duration `json:"eta"`
	// Stages holds the per-stage states, keyed by ID.
	Stages map[stage.ID]StageProgress `json:"stages"`
	// Completed, Failed, Skipped, InProgress, Pending are convenience
	// counts over Stages.
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	InProgress int `json:"in_progress"`
	Pending    int `json:"pending"`
}

// Tracker maintains live progress for one run.
type Tracker struct {
	clock func() time.Time

	mu          sync.Mutex
	startedAt   time.Time
	multiplier  float64
	stages      map[stage.ID]*stageRecord
	order       []stage.ID
	subscribers []chan Snapshot
	closed      bool
}

type stageRecord struct {
	status    StageStatus
	startedAt time.Time
	endedAt   time.Time
	estimated time.Duration
}

// NewTracker creates a tracker for the given run stages. The multiplier
// scales ETA to reflect the selected strategy's stage-mix cost; zero or
// negative means 1.0.
func NewTracker(stages []stage.Stage, multiplier float64) *Tracker {
	if multiplier <= 0 {
		multiplier = 1.0
	}
	t := &Tracker{
		clock:      time.Now,
		startedAt:  time.Now(),
		multiplier: multiplier,
		stages:     make(map[stage.ID]*stageRecord, len(stages)),
	}
	for _, s := range stages {
		t.stages[s.ID] = &stageRecord{status: StatusPending, estimated: s.EstimatedDuration}
		t.order = append(t.order, s.ID)
	}
	return t
}

// Subscribe returns a channel receiving a snapshot on every transition.
// The channel is buffered; a slow consumer misses intermediate snapshots
// rather than blocking the run. It is closed when the run finishes.
func (t *Tracker) Subscribe() <-chan Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan Snapshot, 16)
	if t.closed {
		close(ch)
		return ch
	}
	t.subscribers = append(t.subscribers, ch)
	return ch
}

// StartStage marks a stage in progress.
func (t *Tracker) StartStage(id stage.ID) {
	t.transition(id, StatusInProgress)
}

// CompleteStage marks a stage completed.
func (t *Tracker) CompleteStage(id stage.ID) {
	t.transition(id, StatusCompleted)
}

// FailStage marks a stage terminally failed.
func (t *Tracker) FailStage(id stage.ID) {
	t.transition(id, StatusFailed)
}

// SkipStage marks a stage skipped.
func (t *Tracker) SkipStage(id stage.ID) {
	t.transition(id, StatusSkipped)
}

func (t *Tracker) transition(id stage.ID, to StageStatus) {
	t.mu.Lock()
	rec, ok := t.stages[id]
	if !ok || t.closed {
		t.mu.Unlock()
		return
	}
	now := t.clock()
	switch to {
	case StatusInProgress:
		if rec.status != StatusPending {
			t.mu.Unlock()
			return
		}
		rec.startedAt = now
	default:
		if rec.status.Terminal() {
			t.mu.Unlock()
			return
		}
		rec.endedAt = now
	}
	rec.status = to
	snap := t.buildSnapshot(now)
	subs := t.subscribers
	t.mu.Unlock()

	broadcast(subs, snap)
}

// Snapshot returns the current progress view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buildSnapshot(t.clock())
}

// Finish closes all subscriber channels after pushing a final snapshot.
func (t *Tracker) Finish() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	snap := t.buildSnapshot(t.clock())
	subs := t.subscribers
	t.subscribers = nil
	t.mu.Unlock()

	broadcast(subs, snap)
	for _, ch := range subs {
		close(ch)
	}
}

func broadcast(subs []chan Snapshot, snap Snapshot) {
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// Slow consumer: drop this snapshot rather than stall the run.
		}
	}
}

// buildSnapshot must be called with t.mu held.
func (t *Tracker) buildSnapshot(now time.Time) Snapshot {
	snap := Snapshot{
		Elapsed: now.Sub(t.startedAt),
		Stages:  make(map[stage.ID]StageProgress, len(t.stages)),
	}

	var completedDur time.Duration
	for _, id := range t.order {
		rec := t.stages[id]
		sp := StageProgress{Stage: id, Status: rec.status, StartedAt: rec.startedAt}
		switch rec.status {
		case StatusCompleted:
			snap.Completed++
			sp.Duration = rec.endedAt.Sub(rec.startedAt)
			completedDur += sp.Duration
		case StatusFailed:
			snap.Failed++
			if !rec.startedAt.IsZero() {
				sp.Duration = rec.endedAt.Sub(rec.startedAt)
			}
		case StatusSkipped:
			snap.Skipped++
		case StatusInProgress:
			snap.InProgress++
			sp.Duration = now.Sub(rec.startedAt)
		default:
			snap.Pending++
		}
		snap.Stages[id] = sp
	}

	total := len(t.stages)
	if total > 0 {
		terminal := snap.Completed + snap.Failed + snap.Skipped
		snap.Fraction = (float64(terminal) + 0.5*float64(snap.InProgress)) / float64(total)
	}
	snap.Phase = PhaseFor(snap.Fraction)

	if snap.Completed > 0 {
		avg := completedDur / time.Duration(snap.Completed)
		remaining := total - snap.Completed - snap.Failed - snap.Skipped
		snap.ETA = time.Duration(float64(avg) * float64(remaining) * t.multiplier)
	}
	return snap
}
