// Package http serves the operational endpoints of a running service: health,
// readiness, Prometheus metrics, the task schema and the registered functions.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/schema"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FunctionLister exposes the element names a registry resolves.
type FunctionLister interface {
	Names() []string
}

// ReadyFunc reports whether the service can take work.
type ReadyFunc func(ctx context.Context) error

// Server holds the handlers' dependencies.
type Server struct {
	functions FunctionLister
	gatherer  prometheus.Gatherer
	ready     ReadyFunc
	version   string
	logger    *slog.Logger
	schema    []byte
}

// Option configures the Server.
type Option func(*Server)

// WithFunctions lists the registry on GET /functions.
func WithFunctions(f FunctionLister) Option {
	return func(s *Server) {
		s.functions = f
	}
}

// WithGatherer serves g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithReady installs the readiness check of GET /readyz.
func WithReady(fn ReadyFunc) Option {
	return func(s *Server) {
		s.ready = fn
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler builds the operational router.
func NewHandler(opts ...Option) (http.Handler, error) {
	s := &Server{
		gatherer: prometheus.DefaultGatherer,
		version:  "dev",
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	doc, err := schema.Generate()
	if err != nil {
		return nil, err
	}
	s.schema = doc

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.GetHealth)
	r.Get("/readyz", s.GetReady)
	r.Get("/info", s.GetInfo)
	r.Get("/schema/task", s.GetTaskSchema)
	r.Get("/functions", s.GetFunctions)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r, nil
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetReady handles the GET /readyz request.
func (s *Server) GetReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "conductor",
		"version": s.version,
	})
}

// GetTaskSchema handles the GET /schema/task request.
func (s *Server) GetTaskSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	if _, err := w.Write(s.schema); err != nil {
		s.logger.Error("schema write failed", "error", err)
	}
}

// GetFunctions handles the GET /functions request.
func (s *Server) GetFunctions(w http.ResponseWriter, r *http.Request) {
	names := []string{}
	if s.functions != nil {
		names = append(names, s.functions.Names()...)
		sort.Strings(names)
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"functions": names})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
