package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/goinit/orchestrator"
	"github.com/nomis52/goinit/progress"
	"github.com/nomis52/goinit/stage"
)

// InitMetrics implements orchestrator.Observer on top of a Registry. The
// same collector set works for both scrape and push modes.
type InitMetrics struct {
	runsStarted   CounterVec
	runsFinished  CounterVec
	runDuration   Gauge
	stageDuration GaugeVec
	stageOutcomes CounterVec
	stageFailures CounterVec
	openBreakers  Gauge
	initProgress  Gauge
}

// NewInitMetrics creates and registers the orchestrator collector set.
func NewInitMetrics(reg Registry) (*InitMetrics, error) {
	m := &InitMetrics{}
	var err error

	m.runsStarted, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "runs_started_total",
		Help: "Initialization runs started, by strategy.",
	}, []string{"strategy"})
	if err != nil {
		return nil, fmt.Errorf("creating runs_started_total: %w", err)
	}

	m.runsFinished, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "runs_finished_total",
		Help: "Initialization runs finished, by strategy and outcome.",
	}, []string{"strategy", "outcome"})
	if err != nil {
		return nil, fmt.Errorf("creating runs_finished_total: %w", err)
	}

	m.runDuration, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "last_run_duration_seconds",
		Help: "Duration of the most recent initialization run.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating last_run_duration_seconds: %w", err)
	}

	m.stageDuration, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stage_duration_seconds",
		Help: "Duration of the most recent execution of each stage.",
	}, []string{"stage"})
	if err != nil {
		return nil, fmt.Errorf("creating stage_duration_seconds: %w", err)
	}

	m.stageOutcomes, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_outcomes_total",
		Help: "Terminal stage outcomes, by stage and status.",
	}, []string{"stage", "status"})
	if err != nil {
		return nil, fmt.Errorf("creating stage_outcomes_total: %w", err)
	}

	m.stageFailures, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "stage_failures_total",
		Help: "Stage attempt failures, by stage and severity.",
	}, []string{"stage", "severity"})
	if err != nil {
		return nil, fmt.Errorf("creating stage_failures_total: %w", err)
	}

	m.openBreakers, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "open_circuit_breakers",
		Help: "Number of stages with a non-closed circuit breaker.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating open_circuit_breakers: %w", err)
	}

	m.initProgress, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "initialization_progress",
		Help: "Fraction of the current run's stages in a terminal state.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating initialization_progress: %w", err)
	}

	return m, nil
}

// RunStarted implements orchestrator.Observer.
func (m *InitMetrics) RunStarted(strategy orchestrator.Strategy) {
	m.runsStarted.With(prometheus.Labels{"strategy": string(strategy)}).Inc()
}

// RunFinished implements orchestrator.Observer.
func (m *InitMetrics) RunFinished(strategy orchestrator.Strategy, succeeded bool, d time.Duration) {
	outcome := "succeeded"
	if !succeeded {
		outcome = "failed"
	}
	m.runsFinished.With(prometheus.Labels{
		"strategy": string(strategy),
		"outcome":  outcome,
	}).Inc()
	m.runDuration.Set(d.Seconds())
}

// StageFinished implements orchestrator.Observer.
func (m *InitMetrics) StageFinished(id stage.ID, status progress.StageStatus, d time.Duration) {
	m.stageOutcomes.With(prometheus.Labels{
		"stage":  id.String(),
		"status": status.String(),
	}).Inc()
	if status == progress.StatusCompleted {
		m.stageDuration.With(prometheus.Labels{"stage": id.String()}).Set(d.Seconds())
	}
}

// FailureRecorded implements orchestrator.Observer.
func (m *InitMetrics) FailureRecorded(id stage.ID, severity stage.Severity) {
	m.stageFailures.With(prometheus.Labels{
		"stage":    id.String(),
		"severity": severity.String(),
	}).Inc()
}

// OpenBreakers implements orchestrator.Observer.
func (m *InitMetrics) OpenBreakers(n int) {
	m.openBreakers.Set(float64(n))
}

// ProgressChanged implements orchestrator.Observer.
func (m *InitMetrics) ProgressChanged(fraction float64) {
	m.initProgress.Set(fraction)
}

// BuildRunMetrics flattens a finished run into metric points for a one-shot
// batch push. The CLI calls this once on exit instead of running a scrape
// endpoint.
func BuildRunMetrics(result *orchestrator.Result) []Metric {
	now := time.Now()
	metrics := []Metric{
		{
			Name:      "run_duration_seconds",
			Value:     result.Duration().Seconds(),
			Labels:    map[string]string{"strategy": string(result.Strategy)},
			Timestamp: now,
		},
		{
			Name:      "run_succeeded",
			Value:     boolToFloat(result.Succeeded()),
			Labels:    map[string]string{"strategy": string(result.Strategy)},
			Timestamp: now,
		},
		{
			Name:      "run_stages_skipped",
			Value:     float64(len(result.Skipped)),
			Labels:    map[string]string{"strategy": string(result.Strategy)},
			Timestamp: now,
		},
	}

	for id, r := range result.StageResults {
		labels := map[string]string{"stage": id.String()}
		metrics = append(metrics, Metric{
			Name:      "stage_duration_seconds",
			Value:     r.Duration().Seconds(),
			Labels:    labels,
			Timestamp: now,
		})
		metrics = append(metrics, Metric{
			Name:      "stage_succeeded",
			Value:     boolToFloat(r.Succeeded()),
			Labels:    labels,
			Timestamp: now,
		})
		metrics = append(metrics, Metric{
			Name:      "stage_attempts",
			Value:     float64(r.Attempts),
			Labels:    labels,
			Timestamp: now,
		})
	}
	return metrics
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
