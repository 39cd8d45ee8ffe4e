package metrics

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Route labels for datastore_http_requests_total.
const (
	RouteDataGet  = "data_get"
	RouteDataPost = "data_post"
	RouteStatic   = "static"
	RouteOther    = "other"
)

type requestKey struct {
	route string
	code  int
}

type gauge struct {
	name string
	help string
	fn   func() float64
}

// Registry accumulates server counters. The zero value is not usable; call New.
type Registry struct {
	mu       sync.Mutex
	requests map[requestKey]uint64
	written  uint64
	missing  uint64
	gauges   []gauge
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{requests: make(map[requestKey]uint64)}
}

// ObserveRequest counts one completed HTTP request.
func (r *Registry) ObserveRequest(route string, code int) {
	r.mu.Lock()
	r.requests[requestKey{route: route, code: code}]++
	r.mu.Unlock()
}

// AddBytesWritten adds n to the bytes-written counter.
func (r *Registry) AddBytesWritten(n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.written += uint64(n)
	r.mu.Unlock()
}

// IncMissing counts a GET answered with the empty collection.
func (r *Registry) IncMissing() {
	r.mu.Lock()
	r.missing++
	r.mu.Unlock()
}

// Gauge registers a gauge whose value is read from fn at scrape time.
func (r *Registry) Gauge(name, help string, fn func() float64) {
	r.mu.Lock()
	r.gauges = append(r.gauges, gauge{name: name, help: help, fn: fn})
	r.mu.Unlock()
}

// Gather snapshots every counter and gauge as metric families sorted by name.
// Families without samples are omitted.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	keys := make([]requestKey, 0, len(r.requests))
	for k := range r.requests {
		keys = append(keys, k)
	}
	counts := make(map[requestKey]uint64, len(r.requests))
	for k, v := range r.requests {
		counts[k] = v
	}
	written, missing := r.written, r.missing
	gauges := append([]gauge(nil), r.gauges...)
	r.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].route != keys[j].route {
			return keys[i].route < keys[j].route
		}
		return keys[i].code < keys[j].code
	})

	var out []*dto.MetricFamily
	if len(keys) > 0 {
		fam := family("datastore_http_requests_total",
			"HTTP requests served, by route and status code.", dto.MetricType_COUNTER)
		for _, k := range keys {
			fam.Metric = append(fam.Metric, &dto.Metric{
				Label: []*dto.LabelPair{
					{Name: proto.String("code"), Value: proto.String(strconv.Itoa(k.code))},
					{Name: proto.String("route"), Value: proto.String(k.route)},
				},
				Counter: &dto.Counter{Value: proto.Float64(float64(counts[k]))},
			})
		}
		out = append(out, fam)
	}

	out = append(out,
		counter("datastore_bytes_written_total", "Bytes of JSON written to the data root.", float64(written)),
		counter("datastore_documents_missing_total", "Document reads answered with an empty collection.", float64(missing)),
	)

	for _, g := range gauges {
		fam := family(g.name, g.help, dto.MetricType_GAUGE)
		fam.Metric = []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(g.fn())}}}
		out = append(out, fam)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

// ServeHTTP writes the registry in the Prometheus text format.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			slog.Error("metrics: encode family failed", "family", mf.GetName(), "err", err)
			return
		}
	}
}

func family(name, help string, typ dto.MetricType) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: typ.Enum(),
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	fam := family(name, help, dto.MetricType_COUNTER)
	fam.Metric = []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}}
	return fam
}
