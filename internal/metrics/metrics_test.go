package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuvusIT/entman/internal/metrics"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	m.ObserveAccess("ok")
	m.CallbackFailed()
	m.ObserveHistoryQuery(true)
	m.ObserveRequest("GET", "/x", 200, time.Millisecond)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Exposition(t *testing.T) {
	m := metrics.New()
	m.ObserveAccess("ok")
	m.ObserveAccess("ok")
	m.ObserveAccess("forbidden")
	m.CallbackFailed()
	m.ObserveHistoryQuery(false)
	m.ObserveRequest("POST", "POST /access", 200, 10*time.Millisecond)

	n, err := testutil.GatherAndCount(m.Registry(), "entman_access_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	for _, want := range []string{
		`entman_access_total{status="ok"} 2`,
		`entman_callback_failures_total 1`,
		`entman_history_queries_total{result="unavailable"} 1`,
		`entman_http_request_duration_seconds_count{method="POST",route="POST /access",status="200"} 1`,
		`go_goroutines`,
	} {
		assert.Contains(t, string(body), want)
	}
}
