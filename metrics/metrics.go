package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// Metric is a single sample. The one-shot CLI collects the finished run
// into a batch of Metric values and ships them in one remote write request,
// rather than pushing each sample as it happens.
type Metric struct {
	Name      string
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
}

// Client batch-pushes samples to a Prometheus-compatible remote write
// endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	prefix     string
}

// NewClient creates a Client for the given base URL. The /api/v1/write
// path is appended automatically; prefix, when non-empty, is prepended to
// every metric name.
func NewClient(url string, prefix string) *Client {
	return &Client{
		url:        url + "/api/v1/write",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		prefix:     prefix,
	}
}

// PushMetrics sends the batch in a single write request. A batch is all or
// nothing: on a non-2xx response none of the samples are considered
// delivered. Pushing an empty batch is a no-op.
func (c *Client) PushMetrics(ctx context.Context, batch []Metric) error {
	if len(batch) == 0 {
		return nil
	}

	timeseries := make([]prompb.TimeSeries, 0, len(batch))
	for _, m := range batch {
		timeseries = append(timeseries, c.toSeries(m))
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: timeseries})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *Client) toSeries(m Metric) prompb.TimeSeries {
	name := m.Name
	if c.prefix != "" {
		name = c.prefix + "_" + name
	}

	labels := make([]prompb.Label, 0, len(m.Labels)+1)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	for k, v := range m.Labels {
		labels = append(labels, prompb.Label{Name: k, Value: v})
	}

	// A zero Timestamp means "now"; run metrics built after the fact carry
	// their own stamps.
	ts := m.Timestamp.UnixMilli()
	if m.Timestamp.IsZero() {
		ts = time.Now().UnixMilli()
	}

	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: m.Value, Timestamp: ts}},
	}
}
