// Package metrics provides Prometheus instrumentation for the urgency
// pricing engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QuotesTotal counts quotes served, partitioned by urgency level and
	// whether they came from the cache or a fresh computation.
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urgency_quotes_total",
		Help: "Total number of quotes served",
	}, []string{"level", "source"})

	// CacheLookups counts quote cache lookups by result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urgency_cache_lookups_total",
		Help: "Quote cache lookups by result",
	}, []string{"result"})

	// CacheWriteFailures counts quotes computed but not persisted.
	CacheWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "urgency_cache_write_failures_total",
		Help: "Quote cache writes that failed after a fresh computation",
	})

	// CalculationLatency tracks end-to-end quote latency, cache included.
	CalculationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "urgency_calculation_latency_seconds",
		Help:    "Quote latency in seconds",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"source"})

	// BatchSize observes the number of items per batch or calendar request.
	BatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "urgency_batch_size",
		Help:    "Items per batch request",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 366},
	}, []string{"kind"})

	// BatchItemFailures counts failed items inside batch requests.
	BatchItemFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urgency_batch_item_failures_total",
		Help: "Failed items inside batch requests",
	}, []string{"kind"})

	// CacheInvalidations counts cached quotes removed by event changes.
	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "urgency_cache_invalidated_quotes_total",
		Help: "Cached quotes removed by event changes",
	})

	// ConfigFallbacks counts loads that fell back to built-in defaults.
	ConfigFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urgency_config_fallbacks_total",
		Help: "Configuration loads served from built-in defaults",
	}, []string{"kind"})

	// EventChanges counts event multipliers added or removed.
	EventChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urgency_event_changes_total",
		Help: "Event multipliers added or removed",
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "urgency_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "urgency_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "urgency_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern returns the matched chi pattern so path labels stay low
// cardinality. Unrouted requests collapse into one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack keeps WebSocket upgrades working through the wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
