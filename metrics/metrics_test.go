package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureServer runs an httptest server that decodes remote write requests
// and delivers the timeseries on the returned channel.
func captureServer(t *testing.T, checkHeaders bool) (*httptest.Server, <-chan []prompb.TimeSeries) {
	t.Helper()

	received := make(chan []prompb.TimeSeries, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if checkHeaders {
			assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
			assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
			assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))
		}

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var writeReq prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &writeReq))

		received <- writeReq.Timeseries
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func awaitSeries(t *testing.T, ch <-chan []prompb.TimeSeries) []prompb.TimeSeries {
	t.Helper()
	select {
	case ts := <-ch:
		return ts
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for metrics to be received")
		return nil
	}
}

func labelValue(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func TestNewPushRegistry(t *testing.T) {
	tests := []struct {
		name string
		cfg  PushConfig
	}{
		{name: "minimal config", cfg: PushConfig{URL: "http://localhost:9090"}},
		{
			name: "full config",
			cfg: PushConfig{
				URL:      "http://localhost:9090",
				Prefix:   "goinit",
				Job:      "initd",
				Instance: "node1",
				Timeout:  5 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewPushRegistry(tt.cfg)
			require.NotNil(t, registry)
			require.NotNil(t, registry.pusher)
		})
	}
}

func TestPushRegistry_CreatesMetrics(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost:9090"})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "init_progress"})
	require.NoError(t, err)
	require.NotNil(t, gauge)

	gaugeVec, err := registry.NewGaugeVec(prometheus.GaugeOpts{Name: "stage_duration_seconds"}, []string{"stage", "status"})
	require.NoError(t, err)
	require.NotNil(t, gaugeVec.With(prometheus.Labels{"stage": "auth", "status": "completed"}))

	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "runs_total"})
	require.NoError(t, err)
	require.NotNil(t, counter)

	counterVec, err := registry.NewCounterVec(prometheus.CounterOpts{Name: "stage_failures_total"}, []string{"stage"})
	require.NoError(t, err)
	require.NotNil(t, counterVec.With(prometheus.Labels{"stage": "feed"}))
}

func TestPushGauge_Set(t *testing.T) {
	srv, received := captureServer(t, true)

	registry := NewPushRegistry(PushConfig{
		URL:      srv.URL,
		Prefix:   "goinit",
		Job:      "initd",
		Instance: "node1",
	})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "init_progress"})
	require.NoError(t, err)
	gauge.Set(0.75)

	ts := awaitSeries(t, received)
	require.Len(t, ts, 1)

	assert.Equal(t, "goinit_init_progress", labelValue(ts[0].Labels, "__name__"))
	assert.Equal(t, "initd", labelValue(ts[0].Labels, "job"))
	assert.Equal(t, "node1", labelValue(ts[0].Labels, "instance"))
	require.Len(t, ts[0].Samples, 1)
	assert.Equal(t, 0.75, ts[0].Samples[0].Value)
}

func TestPushGaugeVec_WithLabels(t *testing.T) {
	srv, received := captureServer(t, false)

	registry := NewPushRegistry(PushConfig{URL: srv.URL})

	gaugeVec, err := registry.NewGaugeVec(prometheus.GaugeOpts{Name: "stage_duration_seconds"}, []string{"stage", "status"})
	require.NoError(t, err)

	gaugeVec.With(prometheus.Labels{"stage": "auth", "status": "completed"}).Set(1.25)

	ts := awaitSeries(t, received)
	require.Len(t, ts, 1)

	assert.Equal(t, "stage_duration_seconds", labelValue(ts[0].Labels, "__name__"))
	assert.Equal(t, "auth", labelValue(ts[0].Labels, "stage"))
	assert.Equal(t, "completed", labelValue(ts[0].Labels, "status"))
	require.Len(t, ts[0].Samples, 1)
	assert.Equal(t, 1.25, ts[0].Samples[0].Value)
}

func TestPushCounter_Inc(t *testing.T) {
	srv, received := captureServer(t, false)

	registry := NewPushRegistry(PushConfig{URL: srv.URL})

	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "runs_total"})
	require.NoError(t, err)

	counter.Inc()
	counter.Inc()

	// Each increment pushes the running total.
	for i := 0; i < 2; i++ {
		ts := awaitSeries(t, received)
		require.Len(t, ts, 1)
		require.Len(t, ts[0].Samples, 1)
		assert.Equal(t, float64(i+1), ts[0].Samples[0].Value)
	}
}

func TestPushCounterVec_SameLabelsAccumulate(t *testing.T) {
	srv, received := captureServer(t, false)

	registry := NewPushRegistry(PushConfig{URL: srv.URL})

	vec, err := registry.NewCounterVec(prometheus.CounterOpts{Name: "stage_retries_total"}, []string{"stage", "reason"})
	require.NoError(t, err)

	// Label order must not matter; both calls hit the same counter.
	vec.With(prometheus.Labels{"stage": "feed", "reason": "timeout"}).Inc()
	vec.With(prometheus.Labels{"reason": "timeout", "stage": "feed"}).Inc()

	awaitSeries(t, received)
	ts := awaitSeries(t, received)
	require.Len(t, ts, 1)
	require.Len(t, ts[0].Samples, 1)
	assert.Equal(t, 2.0, ts[0].Samples[0].Value)
}

func TestClient_PushMetricsBatch(t *testing.T) {
	srv, received := captureServer(t, true)

	client := NewClient(srv.URL, "goinit")
	stamp := time.Now().Add(-time.Minute)

	err := client.PushMetrics(context.Background(), []Metric{
		{Name: "run_duration_seconds", Value: 12.5, Labels: map[string]string{"strategy": "comprehensive"}, Timestamp: stamp},
		{Name: "stages_completed", Value: 15},
	})
	require.NoError(t, err)

	ts := awaitSeries(t, received)
	require.Len(t, ts, 2)

	assert.Equal(t, "goinit_run_duration_seconds", labelValue(ts[0].Labels, "__name__"))
	assert.Equal(t, "comprehensive", labelValue(ts[0].Labels, "strategy"))
	assert.Equal(t, stamp.UnixMilli(), ts[0].Samples[0].Timestamp)

	assert.Equal(t, "goinit_stages_completed", labelValue(ts[1].Labels, "__name__"))
	assert.Equal(t, 15.0, ts[1].Samples[0].Value)
}

func TestClient_PushMetricsEmptyBatch(t *testing.T) {
	client := NewClient("http://localhost:1", "")
	require.NoError(t, client.PushMetrics(context.Background(), nil))
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)
	require.NotNil(t, registry)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "init_progress",
		Help: "Fraction of stages finished",
	})
	require.NoError(t, err)
	gauge.Set(0.5)

	counter, err := registry.NewCounter(prometheus.CounterOpts{
		Name: "runs_total",
		Help: "Initialization runs started",
	})
	require.NoError(t, err)
	counter.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "init_progress 0.5")
	assert.Contains(t, body, "runs_total 1")
}

func TestScrapeRegistry_RejectsDuplicateRegistration(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)

	_, err = registry.NewGauge(prometheus.GaugeOpts{Name: "init_progress"})
	require.NoError(t, err)

	_, err = registry.NewGauge(prometheus.GaugeOpts{Name: "init_progress"})
	require.Error(t, err)
}
