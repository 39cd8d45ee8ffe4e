package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoapps/datastore/pkg/types"
)

func newTestClient(server, admin string) *Client {
	c := New(server, admin, 2*time.Second)
	c.retryInitial = time.Millisecond
	return c
}

func TestGet_ReturnsBody(t *testing.T) {
	t.Parallel()

	gotPath := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath <- r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"a":1}`))
	}))
	defer ts.Close()

	body, err := newTestClient(ts.URL, "").Get(context.Background(), "orders/my doc.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))
	assert.Equal(t, "/data/orders/my%20doc.json", <-gotPath)
}

func TestPut_SendsBodyWithLength(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, int64(7), r.ContentLength)
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"a":1}`, string(b))
		w.Write([]byte(`{"success":true}`))
	}))
	defer ts.Close()

	require.NoError(t, newTestClient(ts.URL, "").Put(context.Background(), "x.json", []byte(`{"a":1}`)))
}

func TestPut_UnconfirmedWrite(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	}))
	defer ts.Close()

	assert.Error(t, newTestClient(ts.URL, "").Put(context.Background(), "x.json", []byte(`[]`)))
}

func TestDo_RetriesUnavailable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	body, err := newTestClient(ts.URL, "").Get(context.Background(), "x.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_ServerErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid JSON document", http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL, "").Get(context.Background(), "x.json")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "invalid JSON document", se.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_GivesUpAfterAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL, "").Get(context.Background(), "x.json")
	require.Error(t, err)
	assert.Equal(t, int32(DefaultAttempts), calls.Load())
}

func TestWatch_DeliversChanges(t *testing.T) {
	t.Parallel()

	gotQuery := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.Query().Get("match")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(types.Message{Event: types.EventHello, Data: types.Hello{Time: time.Now()}})
		_ = conn.WriteJSON(types.Message{Event: types.EventChange, Data: types.ChangeEvent{Op: "write", Path: "a.json"}})
		_, _, _ = conn.ReadMessage()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan types.ChangeEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- newTestClient("", ts.URL).Watch(ctx, "*.json", func(ev types.ChangeEvent) { got <- ev })
	}()

	select {
	case ev := <-got:
		assert.Equal(t, "a.json", ev.Path)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change")
	}
	assert.Equal(t, "*.json", <-gotQuery)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_BadMatchIsPermanent(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid match pattern", http.StatusBadRequest)
	}))
	defer ts.Close()

	err := newTestClient("", ts.URL).Watch(context.Background(), "[", func(types.ChangeEvent) {})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestWatch_FeedMissingIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := newTestClient("", ts.URL).Watch(ctx, "", func(types.ChangeEvent) {})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFeedURL(t *testing.T) {
	t.Parallel()

	c := New("", "https://admin.local:8001/", 0)
	u, err := c.feedURL("orders/**")
	require.NoError(t, err)
	assert.Equal(t, "wss://admin.local:8001/ws/changes?match=orders%2F%2A%2A", u)
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	t.Parallel()

	b := newBackoff(time.Second)
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := b.next()
		assert.LessOrEqual(t, d, backoffMax+backoffMax/4)
		if i < 3 {
			assert.Greater(t, d, prev/2)
		}
		prev = d
	}
	assert.Equal(t, backoffMax, b.current)

	b.reset()
	assert.Equal(t, time.Second, b.current)
}

func TestStatusError_Temporary(t *testing.T) {
	t.Parallel()

	for code, want := range map[int]bool{500: false, 502: true, 503: true, 504: true, 404: false} {
		assert.Equal(t, want, (&StatusError{Code: code}).Temporary(), "code %d", code)
	}
}
