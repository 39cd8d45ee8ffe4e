package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metric names exposed by the admin /metrics endpoint.
const (
	metricRequests     = "datastore_http_requests_total"
	metricBytesWritten = "datastore_bytes_written_total"
	metricMissing      = "datastore_documents_missing_total"
	metricFeedClients  = "datastore_feed_clients"
)

// Stats summarises the server's metrics.
type Stats struct {
	// Requests counts requests by route label.
	Requests     map[string]float64 `json:"requests"`
	ServerErrors float64            `json:"server_errors"`
	BytesWritten float64            `json:"bytes_written"`
	Missing      float64            `json:"documents_missing"`
	FeedClients  float64            `json:"feed_clients"`
}

// Health is the admin /healthz payload.
type Health struct {
	Status      string `json:"status"`
	DataRoot    string `json:"data_root"`
	FeedClients int    `json:"feed_clients"`
	Error       string `json:"error,omitempty"`
}

// Stats scrapes the admin /metrics endpoint.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.admin+"/metrics", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Message: "metrics unavailable"}
	}

	mfs, err := parseMetrics(resp.Body)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Requests:     make(map[string]float64),
		BytesWritten: sumFamily(mfs[metricBytesWritten]),
		Missing:      sumFamily(mfs[metricMissing]),
		FeedClients:  sumFamily(mfs[metricFeedClients]),
	}
	if mf := mfs[metricRequests]; mf != nil {
		for _, m := range mf.GetMetric() {
			v := metricValue(m)
			st.Requests[label(m, "route")] += v
			if code, _ := strconv.Atoi(label(m, "code")); code >= 500 {
				st.ServerErrors += v
			}
		}
	}
	return st, nil
}

// Health fetches the admin /healthz status. A 503 still decodes into Health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.admin+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, &StatusError{Code: resp.StatusCode, Message: "health unavailable"}
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}

// parseMetrics decodes a Prometheus text exposition. A partial result with a
// parse warning is still returned.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up every sample in mf regardless of labels.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += metricValue(m)
	}
	return total
}

// metricValue reads a counter, gauge or untyped sample. Expositions without a
// TYPE line parse as untyped.
func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
