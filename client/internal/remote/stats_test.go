package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMetrics = `# HELP datastore_bytes_written_total Bytes of JSON written to the data root.
# TYPE datastore_bytes_written_total counter
datastore_bytes_written_total 512
# HELP datastore_documents_missing_total Document reads answered with an empty collection.
# TYPE datastore_documents_missing_total counter
datastore_documents_missing_total 3
# HELP datastore_feed_clients Connected change-feed WebSocket clients.
# TYPE datastore_feed_clients gauge
datastore_feed_clients 2
# HELP datastore_http_requests_total HTTP requests served, by route and status code.
# TYPE datastore_http_requests_total counter
datastore_http_requests_total{code="200",route="data_get"} 10
datastore_http_requests_total{code="500",route="data_get"} 1
datastore_http_requests_total{code="200",route="data_post"} 4
datastore_http_requests_total{code="500",route="data_post"} 2
datastore_http_requests_total{code="404",route="other"} 5
`

func TestStats_ParsesExposition(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metrics", r.URL.Path)
		w.Write([]byte(sampleMetrics))
	}))
	defer ts.Close()

	st, err := New("", ts.URL, 0).Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 11.0, st.Requests["data_get"])
	assert.Equal(t, 6.0, st.Requests["data_post"])
	assert.Equal(t, 5.0, st.Requests["other"])
	assert.Equal(t, 3.0, st.ServerErrors)
	assert.Equal(t, 512.0, st.BytesWritten)
	assert.Equal(t, 3.0, st.Missing)
	assert.Equal(t, 2.0, st.FeedClients)
}

func TestStats_UntypedSamples(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("datastore_http_requests_total{code=\"200\",route=\"data_get\"} 7\n" +
			"datastore_http_requests_total{code=\"503\",route=\"data_post\"} 2\n" +
			"datastore_bytes_written_total 42\n"))
	}))
	defer ts.Close()

	st, err := New("", ts.URL, 0).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7.0, st.Requests["data_get"])
	assert.Equal(t, 2.0, st.Requests["data_post"])
	assert.Equal(t, 2.0, st.ServerErrors)
	assert.Equal(t, 42.0, st.BytesWritten)
}

func TestStats_GarbageFails(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not prometheus"))
	}))
	defer ts.Close()

	_, err := New("", ts.URL, 0).Stats(context.Background())
	assert.Error(t, err)
}

func TestHealth_DecodesUnavailable(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable","data_root":"/srv/data","feed_clients":0,"error":"gone"}`))
	}))
	defer ts.Close()

	h, err := New("", ts.URL, 0).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unavailable", h.Status)
	assert.True(t, strings.HasSuffix(h.DataRoot, "data"))
	assert.Equal(t, "gone", h.Error)
}
