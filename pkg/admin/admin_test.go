package admin

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)

	HandleHealth(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "should return 200 OK")
}

func TestObserveUpdate(t *testing.T) {
	m := NewMetrics()
	m.ObserveUpdate("downloaded-full", 2*time.Second, nil)
	m.ObserveUpdate("up-to-date", time.Millisecond, nil)
	m.ObserveUpdate("downloaded-full", time.Second, errors.New("fetch failed"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("downloaded-full")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("up-to-date")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updateErrors))
	assert.Greater(t, testutil.ToFloat64(m.lastUpdate), 0.0)

	recs := m.Updates.List()
	require.Len(t, recs, 3)
	assert.Equal(t, "downloaded-full", recs[0].Status)
	assert.Empty(t, recs[0].Error)
	assert.Equal(t, "fetch failed", recs[2].Error)
}

func TestInflightAndRequests(t *testing.T) {
	m := NewMetrics()
	m.InflightAdd("req1", "GET", "https://example.org/a")
	m.InflightAdd("req2", "POST", "https://example.org/b")
	assert.Equal(t, 2, m.Inflight())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inflightGauge))

	m.InflightRemove("req1")
	m.InflightRemove("unknown")
	assert.Equal(t, 1, m.Inflight())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inflightGauge))

	m.ObserveRequest("ok", 100*time.Millisecond)
	m.ObserveRequest("protocol", time.Second)
	m.ObserveRequest("ok", 200*time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("protocol")))
}

func TestHandlerMetricsAndStatusz(t *testing.T) {
	m := NewMetrics()
	m.InflightAdd("req1", "GET", "https://example.org/<script>")
	m.ObserveRequest("ok", 50*time.Millisecond)
	m.ObserveUpdate("downloaded-churn", time.Second, nil)

	h := Handler(m, map[string]string{"cache-dir": "/var/cache/lightarti"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `lightarti_requests_total{outcome="ok"} 1`)
	assert.Contains(t, body, `lightarti_cache_updates_total{status="downloaded-churn"} 1`)
	assert.Contains(t, body, "lightarti_inflight_requests 1")
	assert.Contains(t, body, "lightarti_request_duration_seconds_bucket")
	assert.Contains(t, body, "go_goroutines")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/statusz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	html := rr.Body.String()
	assert.Contains(t, html, "req1")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.Contains(t, html, "<table")
	assert.Contains(t, html, "downloaded-churn")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/varz", nil))
	assert.JSONEq(t, `{"cache-dir":"/var/cache/lightarti"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
