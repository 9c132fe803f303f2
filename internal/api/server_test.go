package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	coordmem "github.com/trendscout/crawler/internal/coordination/memory"
	"github.com/trendscout/crawler/internal/metrics"
	"github.com/trendscout/crawler/internal/safety"
)

type fakeDepth struct {
	depth int64
}

func (f fakeDepth) Len(_ context.Context) (int64, error) { return f.depth, nil }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func newTestServer(t *testing.T, queue QueueDepther) (*Server, *safety.Breaker) {
	t.Helper()
	metrics.Init()
	breaker := safety.New(
		coordmem.NewStore(),
		safety.Config{Threshold: 2, Cooldown: time.Hour},
		realClock{},
		zap.NewNop(),
	)
	return NewServer(breaker, queue, zap.NewNop()), breaker
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestStatusReportsBreakerAndQueueDepth(t *testing.T) {
	srv, breaker := newTestServer(t, fakeDepth{depth: 7})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	breaker.RecordFailure(ctx)
	breaker.RecordFailure(ctx) // threshold 2, opens the window

	resp, err := http.Get(ts.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		SafetyMode          bool  `json:"safety_mode"`
		ConsecutiveFailures int64 `json:"consecutive_failures"`
		QueueDepth          int64 `json:"queue_depth"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.True(t, status.SafetyMode)
	require.EqualValues(t, 0, status.ConsecutiveFailures, "counter resets when the breaker trips")
	require.EqualValues(t, 7, status.QueueDepth)
}

func TestStatusWithoutQueueDepth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status struct {
		QueueDepth int64 `json:"queue_depth"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	require.EqualValues(t, -1, status.QueueDepth)
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	metrics.ObserveJob("trending", "completed")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}
