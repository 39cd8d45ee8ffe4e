package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/evoapps/datastore/server/internal/logging"
	"github.com/evoapps/datastore/server/internal/store"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", store.ErrInvalidPath), http.StatusBadRequest},
		{store.ErrInvalidDocument, http.StatusInternalServerError},
		{errMissingLength, http.StatusInternalServerError},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusFor(c.err); got != c.want {
			t.Errorf("statusFor(%v): got %d, want %d", c.err, got, c.want)
		}
	}
}

// The mux cleans ".." before routing, so escaping paths are fed to the route
// handlers directly here.
func TestEscapingPath_400(t *testing.T) {
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := &Handler{store: st, opts: Options{MaxBodyBytes: 1024}, log: logging.Nop()}

	for _, p := range []string{"../etc/passwd", "a/../../b.json", "/abs.json"} {
		for name, fn := range map[string]handlerFunc{"read": h.readDocument, "write": h.writeDocument} {
			req := httptest.NewRequest(http.MethodPost, "/data/x", nil)
			req.ContentLength = 2
			req.SetPathValue("path", p)
			rr := httptest.NewRecorder()
			h.serve(fn).ServeHTTP(rr, req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("%s %q: got %d, want 400", name, p, rr.Code)
			}
		}
	}
}
