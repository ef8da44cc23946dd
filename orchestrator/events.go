package orchestrator

import (
	"time"

	"github.com/nomis52/goinit/stage"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventRunCompleted   EventType = "run_completed"
	EventRunFailed      EventType = "run_failed"
	EventStageStarted   EventType = "stage_started"
	EventStageCompleted EventType = "stage_completed"
	EventStageFailed    EventType = "stage_failed"
	EventStageSkipped   EventType = "stage_skipped"
)

// Event is a discrete lifecycle notification for auditing and telemetry.
type Event struct {
	Type     EventType `json:"type"`
	RunID    string    `json:"run_id"`
	Strategy Strategy  `json:"strategy"`
	// Stage is set for stage-scoped events.
	Stage stage.ID `json:"stage,omitempty"`
	// Error is the failure message for failed events.
	Error string `json:"error,omitempty"`
	// Severity is set for stage_failed events.
	Severity stage.Severity `json:"severity,omitempty"`
	Time     time.Time      `json:"time"`
}

// Events returns a channel receiving lifecycle events. The channel is
// buffered; a slow consumer misses events rather than blocking execution.
// It is closed on Dispose.
func (o *Orchestrator) Events() <-chan Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan Event, 64)
	if o.isDisposed() {
		close(ch)
		return ch
	}
	o.eventSubs = append(o.eventSubs, ch)
	return ch
}

// emit must not be called with o.mu held.
func (o *Orchestrator) emit(ev Event) {
	ev.Time = time.Now()
	o.mu.Lock()
	subs := o.eventSubs
	o.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
