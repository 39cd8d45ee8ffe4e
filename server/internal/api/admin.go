package api

import (
	"net/http"

	"github.com/evoapps/datastore/server/internal/hooks"
	"github.com/evoapps/datastore/server/internal/metrics"
	"github.com/evoapps/datastore/server/internal/store"
	"github.com/evoapps/datastore/server/internal/ws"
)

// AdminOptions wires the optional admin endpoints. A nil field leaves its
// route unregistered, except Hooks which then reports an empty list.
type AdminOptions struct {
	Hub     *ws.Hub
	Hooks   *hooks.Engine
	Metrics *metrics.Registry
}

// NewAdmin returns the handler for the admin listener:
//
//	GET /healthz     data-root readiness, 503 when the root is unusable
//	GET /metrics     Prometheus text exposition
//	GET /hooks       recent webhook deliveries, newest first
//	GET /ws/changes  WebSocket change feed
func NewAdmin(st *store.Store, opts AdminOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", DataRoot: st.Root()}
		if opts.Hub != nil {
			resp.FeedClients = opts.Hub.Count()
		}
		code := http.StatusOK
		if err := st.Check(); err != nil {
			resp.Status = "unavailable"
			resp.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
		jsonResp(w, code, resp)
	})

	mux.HandleFunc("GET /hooks", func(w http.ResponseWriter, r *http.Request) {
		out := []hooks.Delivery{}
		if opts.Hooks != nil {
			out = append(out, opts.Hooks.Recent()...)
		}
		jsonResp(w, http.StatusOK, out)
	})

	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	if opts.Hub != nil {
		mux.Handle("GET /ws/changes", opts.Hub)
	}
	return mux
}
