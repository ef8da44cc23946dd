// Package metrics provides Prometheus-compatible instrumentation in two
// flavors behind one Registry interface:
//
//   - scrape mode, used by the long-running server: metrics live in a
//     local registry and are exposed at /metrics
//   - push mode, used by the one-shot CLI: every sample goes straight to a
//     VictoriaMetrics or Prometheus remote write endpoint
//
// InitMetrics sits on top of either mode and translates orchestrator
// execution milestones into gauges and counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge tracks a value that moves in both directions.
type Gauge interface {
	Set(float64)
}

// Counter tracks a monotonically increasing total.
type Counter interface {
	Inc()
	// Add increases the counter by v. Negative v panics in scrape mode.
	Add(float64)
}

// GaugeVec is a labeled family of gauges.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec is a labeled family of counters.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates and registers metrics, hiding the push/scrape split
// from instrumentation code.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}
