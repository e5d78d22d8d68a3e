package telemetry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stormycloud/shabench/internal/stats"
)

func TestObserverCounts(t *testing.T) {
	m := New("CPU")
	m.Iteration(100, time.Millisecond)
	m.Iteration(100, 2*time.Millisecond)
	m.Retry(errors.New("boom"))
	m.Reset()
	m.Report("CPU", stats.Snapshot{Rate: 1234})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.iterations))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.hashes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets))
	assert.Equal(t, 1234.0, testutil.ToFloat64(m.rate))
	assert.Equal(t, 6, testutil.CollectAndCount(m.registry))
}

func TestHandlerExposition(t *testing.T) {
	m := New("GPU")
	m.Iteration(32768, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `shabench_hashes_total{backend="GPU"} 32768`)
	assert.Contains(t, body, "shabench_dispatch_seconds_bucket")
}

func TestServeStopsOnCancel(t *testing.T) {
	m := New("CPU")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "shabench_iterations_total"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
