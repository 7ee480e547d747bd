package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Business metrics — exported for use by handlers/diagnoser/llm
	DiagnosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pod_doctor_diagnoses_total",
			Help: "Total diagnosis requests by outcome",
		},
		[]string{"outcome"},
	)

	LLMAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pod_doctor_llm_attempts_total",
			Help: "Total generation service attempts by status",
		},
		[]string{"status"},
	)

	LLMRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pod_doctor_llm_request_duration_seconds",
			Help:    "Generation service call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pod_doctor_cache_hits_total",
			Help: "Total recommendation cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pod_doctor_cache_misses_total",
			Help: "Total recommendation cache misses",
		},
	)

	PanicsRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pod_doctor_panics_recovered_total",
			Help: "Total number of recovered panics",
		},
	)
)

// Metrics returns a middleware that collects Prometheus metrics
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		status := strconv.Itoa(wrapped.statusCode)

		// Use Chi route pattern to avoid cardinality explosion from dynamic path segments
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		// Normalize trailing slashes
		endpoint = strings.TrimRight(endpoint, "/")
		if endpoint == "" {
			endpoint = "/"
		}

		// Record metrics
		requestDuration.WithLabelValues(r.Method, endpoint, status).Observe(duration.Seconds())
		requestCount.WithLabelValues(r.Method, endpoint, status).Inc()
	})
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
