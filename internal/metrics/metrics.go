// Package metrics registers the Prometheus instrumentation for the forge.
// NewMetrics is a process-wide singleton so library callers, the server, and
// tests can all grab the same registered collectors.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for styleforge.
type Metrics struct {
	// Session metrics
	SessionsTotal    *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	SessionDuration  *prometheus.HistogramVec
	SessionBestScore *prometheus.HistogramVec
	IterationsUsed   *prometheus.HistogramVec

	// Iteration phase metrics
	PhaseDuration   *prometheus.HistogramVec
	IterationsTotal *prometheus.CounterVec

	// Model collaborator metrics
	ModelRequests *prometheus.CounterVec
	ModelErrors   *prometheus.CounterVec

	// Reference cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	SSEStreamsActive    prometheus.Gauge
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics creates and registers all collectors once, returning the shared
// instance on every call.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			SessionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "styleforge_sessions_total",
					Help: "Total number of forge sessions by kind and outcome",
				},
				[]string{"kind", "outcome"},
			),
			SessionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "styleforge_sessions_active",
					Help: "Number of sessions currently running",
				},
			),
			SessionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "styleforge_session_duration_seconds",
					Help:    "Wall-clock session duration in seconds",
					Buckets: prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~42min
				},
				[]string{"kind"},
			),
			SessionBestScore: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "styleforge_session_best_score",
					Help:    "Best composite score reached per session",
					Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 to 100
				},
				[]string{"kind"},
			),
			IterationsUsed: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "styleforge_session_iterations",
					Help:    "Iterations consumed per session",
					Buckets: prometheus.LinearBuckets(1, 1, 10),
				},
				[]string{"kind"},
			),
			PhaseDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "styleforge_phase_duration_seconds",
					Help:    "Duration of iteration phases (generation, extraction, evaluation)",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 500ms to ~256s
				},
				[]string{"phase"},
			),
			IterationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "styleforge_iterations_total",
					Help: "Total iterations by result",
				},
				[]string{"kind", "result"},
			),
			ModelRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "styleforge_model_requests_total",
					Help: "Total model API calls by role",
				},
				[]string{"role", "success"},
			),
			ModelErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "styleforge_model_errors_total",
					Help: "Model API errors by role",
				},
				[]string{"role"},
			),
			CacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "styleforge_cache_hits_total",
					Help: "Reference feature cache hits",
				},
			),
			CacheMisses: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "styleforge_cache_misses_total",
					Help: "Reference feature cache misses",
				},
			),
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "styleforge_http_requests_total",
					Help: "Total HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "styleforge_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "path"},
			),
			SSEStreamsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "styleforge_sse_streams_active",
					Help: "Open progress event streams",
				},
			),
		}
	})
	return sharedMetrics
}

// RecordSession records one finished session.
func (m *Metrics) RecordSession(kind, outcome string, durationSeconds, bestScore float64, iterations int) {
	m.SessionsTotal.WithLabelValues(kind, outcome).Inc()
	m.SessionDuration.WithLabelValues(kind).Observe(durationSeconds)
	m.SessionBestScore.WithLabelValues(kind).Observe(bestScore)
	m.IterationsUsed.WithLabelValues(kind).Observe(float64(iterations))
}

// RecordPhase records one iteration phase duration.
func (m *Metrics) RecordPhase(phase string, seconds float64) {
	m.PhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordIteration records one iteration outcome.
func (m *Metrics) RecordIteration(kind, result string) {
	m.IterationsTotal.WithLabelValues(kind, result).Inc()
}

// RecordModelCall records one model API call by role (generation,
// extraction, evaluation).
func (m *Metrics) RecordModelCall(role string, err error) {
	success := "true"
	if err != nil {
		success = "false"
		m.ModelErrors.WithLabelValues(role).Inc()
	}
	m.ModelRequests.WithLabelValues(role, success).Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
