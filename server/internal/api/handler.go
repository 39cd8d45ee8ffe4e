package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/evoapps/datastore/pkg/types"
	"github.com/evoapps/datastore/server/internal/metrics"
	"github.com/evoapps/datastore/server/internal/store"
)

// DataPrefix is the URL namespace backed by the document store.
const DataPrefix = "/data/"

// DefaultMaxBodyBytes bounds POST bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 10 << 20

var errMissingLength = errors.New("missing Content-Length header")

// Options configures the document router.
type Options struct {
	// StaticRoot is served for every GET outside DataPrefix.
	StaticRoot string

	MaxBodyBytes int64

	// Metrics is optional.
	Metrics *metrics.Registry

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Handler routes the document namespace and the static fallback.
type Handler struct {
	store   *store.Store
	opts    Options
	mux     *http.ServeMux
	metrics *metrics.Registry
	log     *slog.Logger
}

// handlerFunc is a route that reports failure through its error result.
// serve maps that error to a status code.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// New creates a Handler backed by st and registers all routes. The returned
// handler also assigns request IDs, logs and counts every request.
func New(st *store.Store, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.StaticRoot == "" {
		opts.StaticRoot = "."
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := &Handler{
		store:   st,
		opts:    opts,
		mux:     http.NewServeMux(),
		metrics: opts.Metrics,
		log:     opts.Logger,
	}

	// GET patterns also match HEAD.
	h.mux.Handle("GET "+DataPrefix+"{path...}", h.serve(h.readDocument))
	h.mux.Handle("POST "+DataPrefix+"{path...}", h.serve(h.writeDocument))
	h.mux.Handle("GET /", http.FileServer(http.Dir(opts.StaticRoot)))
	// "POST /data" is outside the namespace; registered exactly so the mux
	// answers 404 instead of redirecting to "/data/".
	h.mux.HandleFunc("POST /data", notFound)
	h.mux.HandleFunc("POST /", notFound)
	h.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unsupported method ("+r.Method+")", http.StatusNotImplemented)
	})

	return withRequestLog(h.mux, h.log, h.metrics)
}

// serve adapts fn to http.Handler. Any error becomes a plain-text response
// carrying the error message; fn must not have written anything in that case.
func (h *Handler) serve(fn handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		code := statusFor(err)
		h.log.Warn("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", code,
			"request_id", RequestID(r.Context()),
			"err", err,
		)
		http.Error(w, err.Error(), code)
	})
}

// statusFor maps a handler error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidPath):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// --- route handlers ---------------------------------------------------------

// readDocument serves GET /data/<path>. A missing document is an empty array.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) error {
	doc, err := h.store.Read(r.PathValue("path"))
	if errors.Is(err, store.ErrNotFound) {
		if h.metrics != nil {
			h.metrics.IncMissing()
		}
		doc, err = []byte("[]"), nil
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, doc)
	return nil
}

// writeDocument serves POST /data/<path>.
func (h *Handler) writeDocument(w http.ResponseWriter, r *http.Request) error {
	if r.ContentLength < 0 {
		return errMissingLength
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}

	n, err := h.store.Write(r.PathValue("path"), body)
	if err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.AddBytesWritten(n)
	}

	resp, err := json.Marshal(types.WriteResult{Success: true})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

// --- helpers ----------------------------------------------------------------

func notFound(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "Not found", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body) //nolint:errcheck
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
