package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/evoapps/datastore/server/internal/api"
	"github.com/evoapps/datastore/server/internal/hooks"
	"github.com/evoapps/datastore/server/internal/metrics"
	"github.com/evoapps/datastore/server/internal/store"
	"github.com/evoapps/datastore/server/internal/ws"
)

func adminGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestAdmin_Healthz_OK(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := api.NewAdmin(st, api.AdminOptions{Hub: ws.New(0)})
	rr := adminGet(t, h, "/healthz")

	wantStatus(t, rr, http.StatusOK)
	var resp api.HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.DataRoot != st.Root() || resp.FeedClients != 0 {
		t.Errorf("healthz: got %+v", resp)
	}
}

func TestAdmin_Healthz_RootGone_503(t *testing.T) {
	root := t.TempDir() + "/data"
	st, err := store.Open(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}

	rr := adminGet(t, api.NewAdmin(st, api.AdminOptions{}), "/healthz")
	wantStatus(t, rr, http.StatusServiceUnavailable)
	if !strings.Contains(rr.Body.String(), `"status":"unavailable"`) {
		t.Errorf("body: got %s", rr.Body.String())
	}
}

func TestAdmin_Hooks_EmptyList(t *testing.T) {
	st, _ := store.Open(t.TempDir())
	rr := adminGet(t, api.NewAdmin(st, api.AdminOptions{Hooks: hooks.New(nil)}), "/hooks")

	wantStatus(t, rr, http.StatusOK)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body: got %q, want []", rr.Body.String())
	}
}

func TestAdmin_Metrics(t *testing.T) {
	st, _ := store.Open(t.TempDir())
	reg := metrics.New()
	reg.AddBytesWritten(10)

	rr := adminGet(t, api.NewAdmin(st, api.AdminOptions{Metrics: reg}), "/metrics")
	wantStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "datastore_bytes_written_total 10") {
		t.Errorf("body: got %s", rr.Body.String())
	}
}

func TestAdmin_UnwiredRoutes_404(t *testing.T) {
	st, _ := store.Open(t.TempDir())
	h := api.NewAdmin(st, api.AdminOptions{})
	wantStatus(t, adminGet(t, h, "/metrics"), http.StatusNotFound)
	wantStatus(t, adminGet(t, h, "/ws/changes"), http.StatusNotFound)
}
