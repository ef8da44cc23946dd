package progress

import (
	"time"

	"github.com/nomis52/goinit/stage"
)

// RunMetrics summarizes stage timings after a run, including how well the
// catalogue's duration estimates matched reality. Estimation accuracy is
// meant to recalibrate default estimates over time.
type RunMetrics struct {
	// CompletedStages is how many stages finished successfully.
	CompletedStages int `json:"completed_stages"`
	// AverageDuration across completed stages.
	AverageDuration time.Duration `json:"average_duration"`
	// Fastest and Slowest completed stages.
	Fastest         stage.ID      `json:"fastest,omitempty"`
	FastestDuration time.Duration `json:"fastest_duration,omitempty"`
	Slowest         stage.ID      `json:"slowest,omitempty"`
	SlowestDuration time.Duration `json:"slowest_duration,omitempty"`
	// EstimationAccuracy is 1 minus the mean relative estimate error,
	// clamped to [0, 1]. 1.0 means estimates matched actuals exactly.
	EstimationAccuracy float64 `json:"estimation_accuracy"`
}

// Metrics computes post-run stage timing metrics from the tracker's final
// state.
func (t *Tracker) Metrics() RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	var m RunMetrics
	var total time.Duration
	var errSum float64
	var errCount int

	for _, id := range t.order {
		rec := t.stages[id]
		if rec.status != StatusCompleted {
			continue
		}
		d := rec.endedAt.Sub(rec.startedAt)
		m.CompletedStages++
		total += d

		if m.Fastest == "" || d < m.FastestDuration {
			m.Fastest, m.FastestDuration = id, d
		}
		if m.Slowest == "" || d > m.SlowestDuration {
			m.Slowest, m.SlowestDuration = id, d
		}

		if rec.estimated > 0 {
			relErr := float64(d-rec.estimated) / float64(rec.estimated)
			if relErr < 0 {
				relErr = -relErr
			}
			errSum += relErr
			errCount++
		}
	}

	if m.CompletedStages > 0 {
		m.AverageDuration = total / time.Duration(m.CompletedStages)
	}
	if errCount > 0 {
		accuracy := 1 - errSum/float64(errCount)
		if accuracy < 0 {
			accuracy = 0
		}
		m.EstimationAccuracy = accuracy
	}
	return m
}

// Durations returns observed durations of completed stages, usable as the
// historical input to plan order optimization on a later run.
func (t *Tracker) Durations() map[stage.ID]time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[stage.ID]time.Duration)
	for id, rec := range t.stages {
		if rec.status == StatusCompleted {
			out[id] = rec.endedAt.Sub(rec.startedAt)
		}
	}
	return out
}
