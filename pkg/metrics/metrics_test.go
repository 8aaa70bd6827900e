package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesIsolatedRegistry(t *testing.T) {
	a := New()
	b := New()

	a.RowsExtracted.WithLabelValues("people").Add(3)
	b.RowsExtracted.WithLabelValues("people").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(a.RowsExtracted.WithLabelValues("people")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.RowsExtracted.WithLabelValues("people")))
}

func TestRegistryGathers(t *testing.T) {
	m := New()
	m.PagesFetched.WithLabelValues("t").Inc()
	m.FetchLatency.WithLabelValues("t").Observe(0.2)

	count, err := testutil.GatherAndCount(m.Registry(), "aztable_extractor_pages_fetched_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPush(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.RowsWritten.WithLabelValues("out").Inc()

	require.NoError(t, m.Push(context.Background(), srv.URL, "aztable_extractor"))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/aztable_extractor", path)
}

func TestTimer(t *testing.T) {
	timer := NewTimer("x")
	time.Sleep(time.Millisecond)
	assert.Equal(t, "x", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
