// Package admin implements small HTTP admin endpoints used by binaries.
// It exposes Prometheus metrics for cache updates and dispatched requests and
// keeps the list of in-flight requests for /statusz.
package admin

import (
	"encoding/json"
	"html"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HistogramBuckets defines the latency buckets (seconds) used when observing request durations.
var HistogramBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

type inflight struct {
	Method string    `json:"method"`
	URL    string    `json:"url"`
	Start  time.Time `json:"start"`
}

// Metrics implements updater.Observer and dispatch.Observer.
type Metrics struct {
	reg *prometheus.Registry

	updates         *prometheus.CounterVec
	updateErrors    prometheus.Counter
	updateDuration  *prometheus.HistogramVec
	lastUpdate      prometheus.Gauge
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inflightGauge   prometheus.Gauge

	// Updates keeps the most recent cache updates for /statusz.
	Updates *CaptureStore

	mu       sync.Mutex
	inflight map[string]inflight
}

// NewMetrics registers every collector on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg:      prometheus.NewRegistry(),
		inflight: make(map[string]inflight),
		Updates:  NewCaptureStore(DefaultUpdateHistory),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lightarti_cache_updates_total",
			Help: "Finished cache updates by status",
		}, []string{"status"}),
		updateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lightarti_cache_update_errors_total",
			Help: "Cache updates that failed",
		}),
		updateDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lightarti_cache_update_duration_seconds",
			Help:    "Duration of cache updates by status",
			Buckets: HistogramBuckets,
		}, []string{"status"}),
		lastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lightarti_cache_last_success_timestamp_seconds",
			Help: "Unix time of the last successful cache update",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lightarti_requests_total",
			Help: "Dispatched requests by outcome",
		}, []string{"outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lightarti_request_duration_seconds",
			Help:    "Request duration by outcome",
			Buckets: HistogramBuckets,
		}, []string{"outcome"}),
		inflightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lightarti_inflight_requests",
			Help: "In-flight requests",
		}),
	}
	m.reg.MustRegister(
		m.updates, m.updateErrors, m.updateDuration, m.lastUpdate,
		m.requests, m.requestDuration, m.inflightGauge,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile writes every metric to path in the Prometheus text format,
// for processes too short-lived to be scraped.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

// ObserveUpdate records one finished cache update.
func (m *Metrics) ObserveUpdate(status string, d time.Duration, err error) {
	rec := UpdateRecord{Time: time.Now(), Status: status, LatencySecs: d.Seconds()}
	if err != nil {
		rec.Error = err.Error()
	}
	m.Updates.Add(rec)

	if err != nil {
		m.updateErrors.Inc()
		status = "error"
	} else {
		m.lastUpdate.SetToCurrentTime()
	}
	m.updates.WithLabelValues(status).Inc()
	m.updateDuration.WithLabelValues(status).Observe(d.Seconds())
}

// InflightAdd records an inflight request with id.
func (m *Metrics) InflightAdd(id, method, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight[id] = inflight{Method: method, URL: url, Start: time.Now()}
	m.inflightGauge.Set(float64(len(m.inflight)))
}

// InflightRemove removes an inflight request id.
func (m *Metrics) InflightRemove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, id)
	m.inflightGauge.Set(float64(len(m.inflight)))
}

// ObserveRequest records a finished request under its outcome.
func (m *Metrics) ObserveRequest(outcome string, d time.Duration) {
	m.requests.WithLabelValues(outcome).Inc()
	m.requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// Inflight returns the number of in-flight requests.
func (m *Metrics) Inflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// Admin handlers

// HandleHealth is a simple healthz handler.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleVarz writes config (provided) as JSON.
func HandleVarz(w http.ResponseWriter, cfg interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

// HandleStatusz renders a small HTML page showing inflight requests, oldest first.
func HandleStatusz(w http.ResponseWriter, m *Metrics) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.inflight))
	for id := range m.inflight {
		ids = append(ids, id)
	}
	snapshot := make(map[string]inflight, len(m.inflight))
	for id, r := range m.inflight {
		snapshot[id] = r
	}
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return snapshot[ids[i]].Start.Before(snapshot[ids[j]].Start) })

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><h1>Status</h1>"))
	_, _ = w.Write([]byte("<p>Inflight: " + strconv.Itoa(len(ids)) + "</p>"))
	_, _ = w.Write([]byte("<table border='1'><tr><th>Request</th><th>Method</th><th>URL</th><th>Start</th><th>Age(s)</th></tr>"))
	now := time.Now()
	for _, id := range ids {
		r := snapshot[id]
		age := now.Sub(r.Start).Seconds()
		_, _ = w.Write([]byte("<tr><td>" + html.EscapeString(id) + "</td><td>" + html.EscapeString(r.Method) +
			"</td><td>" + html.EscapeString(r.URL) + "</td><td>" + r.Start.Format(time.RFC3339) +
			"</td><td>" + strconv.FormatFloat(age, 'f', 3, 64) + "</td></tr>"))
	}
	_, _ = w.Write([]byte("</table>"))

	updates := m.Updates.List()
	_, _ = w.Write([]byte("<h2>Cache updates</h2><table border='1'><tr><th>Time</th><th>Status</th><th>Latency(s)</th><th>Error</th></tr>"))
	for i := len(updates) - 1; i >= 0; i-- {
		u := updates[i]
		_, _ = w.Write([]byte("<tr><td>" + u.Time.Format(time.RFC3339) + "</td><td>" + html.EscapeString(u.Status) +
			"</td><td>" + strconv.FormatFloat(u.LatencySecs, 'f', 3, 64) + "</td><td>" + html.EscapeString(u.Error) + "</td></tr>"))
	}
	_, _ = w.Write([]byte("</table></body></html>"))
}

// Handler serves /healthz, /varz (cfg as JSON), /statusz and /metrics.
func Handler(m *Metrics, cfg interface{}) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HandleHealth)
	mux.HandleFunc("/varz", func(w http.ResponseWriter, _ *http.Request) { HandleVarz(w, cfg) })
	mux.HandleFunc("/statusz", func(w http.ResponseWriter, _ *http.Request) { HandleStatusz(w, m) })
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg}))
	return mux
}
