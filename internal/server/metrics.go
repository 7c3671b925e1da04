// Package server: metrics.go registers the Prometheus collectors for the
// HTTP server and the middleware that feeds the per-request ones.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// labelHandler is the "handler" label used to partition metrics by the
	// route pattern rather than the raw URL path.
	labelHandler = "handler"

	outcomeOK       = "ok"
	outcomeTimeout  = "timeout"
	outcomeError    = "error"
	outcomeNotFound = "not_found"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts /api/query requests by outcome.
	queryRequestsTotal *prometheus.CounterVec

	// askRequestsTotal counts completed /api/ask requests by outcome:
	// "ok", "timeout", or "error".
	askRequestsTotal *prometheus.CounterVec

	// askDurationSeconds records the wall-clock duration of each /api/ask
	// request from receipt to stream completion.
	askDurationSeconds *prometheus.HistogramVec

	// askActiveStreams is the number of /api/ask SSE streams currently open.
	askActiveStreams prometheus.Gauge

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec

	// rejectedTotal counts requests refused by auth or the rate limiter.
	rejectedTotal *prometheus.CounterVec
}

// newServerMetrics registers all server metrics against reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notion_llm",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /api/query requests, partitioned by outcome.",
		}, []string{"outcome"}),

		askRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notion_llm",
			Subsystem: "ask",
			Name:      "requests_total",
			Help:      "Total number of /api/ask requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		askDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notion_llm",
			Subsystem: "ask",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/ask requests from receipt to stream completion.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),

		askActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "notion_llm",
			Subsystem: "ask",
			Name:      "active_streams",
			Help:      "Number of /api/ask SSE streams currently open.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notion_llm",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notion_llm",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		rejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notion_llm",
			Subsystem: "http",
			Name:      "rejected_total",
			Help:      "Requests refused before reaching a handler, partitioned by reason.",
		}, []string{"reason"}),
	}
}

// reject counts one refused request.
func (m *serverMetrics) reject(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

// instrument wraps a route handler so every request is counted and timed
// under the given route pattern.
func (m *serverMetrics) instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)

		m.httpRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
