// Package server exposes forge sessions over HTTP: session creation via
// multipart upload, listing and detail reads, per-iteration artifacts,
// rating amendments, and live progress streaming over SSE.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"styleforge/internal/config"
	"styleforge/internal/forge"
	"styleforge/internal/logging"
	"styleforge/internal/metrics"
	"styleforge/internal/session"
)

// Options wires a Server. Extractor, Generator, and Evaluator are the model
// collaborators handed to every session; tests inject mocks here.
type Options struct {
	Config    *config.Config
	Store     *session.Store
	Extractor forge.FeatureExtractor
	Generator forge.CandidateGenerator
	Evaluator forge.SimilarityEvaluator
	Cache     forge.FeatureCache
}

// Server is the HTTP API for the forge.
type Server struct {
	cfg      atomic.Pointer[config.Config]
	store    *session.Store
	registry *registry
	metrics  *metrics.Metrics

	extractor forge.FeatureExtractor
	generator forge.CandidateGenerator
	evaluator forge.SimilarityEvaluator
	cache     forge.FeatureCache
}

// NewServer creates a server from its collaborators.
func NewServer(opts Options) *Server {
	s := &Server{
		store:     opts.Store,
		registry:  newRegistry(),
		metrics:   metrics.NewMetrics(),
		extractor: opts.Extractor,
		generator: opts.Generator,
		evaluator: opts.Evaluator,
		cache:     opts.Cache,
	}
	s.cfg.Store(opts.Config)
	return s
}

// config returns the current config. Handlers read it once per request so
// a concurrent reload cannot change tuning mid-request.
func (s *Server) config() *config.Config {
	return s.cfg.Load()
}

// UpdateConfig swaps the config used for new sessions. Called by the config
// watcher concurrently with request handling; running sessions keep the
// tuning they started with.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
	logging.Server("config updated: threshold=%.1f max_iterations=%d",
		cfg.Forge.Threshold, cfg.Forge.MaxIterations)
}

// Routes builds the handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionSubtree)
	mux.Handle("/metrics", promhttp.Handler())

	return s.instrument(mux)
}

// ListenAddr returns host:port from config.
func (s *Server) ListenAddr() string {
	cfg := s.config()
	return fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
}

// instrument records request counts and latency. SSE streams are excluded
// from the duration histogram; they are open-ended by design.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logging.ServerDebug("%s %s -> %d (%s)", r.Method, r.URL.Path, sw.status, time.Since(start))
		s.metrics.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(sw.status), time.Since(start).Seconds())
	})
}

// routeLabel collapses per-session paths to a bounded label set.
func routeLabel(path string) string {
	if len(path) > len("/api/v1/sessions/") && path[:len("/api/v1/sessions/")] == "/api/v1/sessions/" {
		return "/api/v1/sessions/{id}"
	}
	return path
}

// statusWriter captures the response status for instrumentation while
// passing Flusher through for SSE.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerError("encode response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
