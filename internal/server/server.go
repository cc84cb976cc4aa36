// Package server exposes evaluation scoring, health and metrics over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/trialmatch/trialrag/internal/evaluation"
	"github.com/trialmatch/trialrag/internal/lightrag"
	"github.com/trialmatch/trialrag/internal/metrics"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
	"github.com/trialmatch/trialrag/internal/pkg/middleware"
)

// HealthChecker reports whether the retrieval sink is reachable.
type HealthChecker interface {
	Health(ctx context.Context) (*lightrag.HealthResponse, error)
}

// Server serves the evaluation API.
type Server struct {
	cfg        Config
	log        *logger.Logger
	httpServer *http.Server

	evaluation *evaluation.Handler
	health     HealthChecker
	metrics    *metrics.Metrics
	limiter    *middleware.RateLimiter

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is reported by /v1/version.
	Version string

	// RateLimit is the per-client request rate. Zero disables limiting.
	RateLimit float64

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout. Live evaluations wait on the
	// sink, so it is generous.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		RateLimit:       10,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Deps are the services behind the routes. Every field may be nil: without
// an evaluator only offline scoring is served, and without a health checker
// /healthz reports liveness alone.
type Deps struct {
	Evaluator *evaluation.Evaluator
	Health    HealthChecker
	Metrics   *metrics.Metrics
}

// New creates a server.
func New(cfg Config, deps Deps, log *logger.Logger) *Server {
	def := DefaultConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		cfg:        cfg,
		log:        log.WithComponent("server"),
		evaluation: evaluation.NewHandler(deps.Evaluator),
		health:     deps.Health,
		metrics:    deps.Metrics,
	}
	if cfg.RateLimit > 0 {
		rl := middleware.DefaultRateLimiterConfig()
		rl.RequestsPerSecond = cfg.RateLimit
		rl.Burst = int(2 * cfg.RateLimit)
		s.limiter = middleware.NewRateLimiter(rl)
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.evaluation.RegisterRoutes(mux)

	var handler http.Handler = ResponseWrapperMiddleware(mux)
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = middleware.Recovery(s.log)(handler)
	return middleware.Logging(s.log)(handler)
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.started = true
	srv := s.httpServer
	s.mu.Unlock()

	s.log.Info("Starting HTTP server", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiter != nil {
		s.limiter.Close()
	}
	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	s.started = false
	s.log.Info("Server stopped")
	return err
}

// Running reports whether the server is started.
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// HealthStatus is the body of /healthz.
type HealthStatus struct {
	Status  string `json:"status"`
	Sink    string `json:"sink,omitempty"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{Status: "ok", Version: s.cfg.Version}
	code := http.StatusOK

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if _, err := s.health.Health(ctx); err != nil {
			s.log.Warn("Sink health check failed", "error", err)
			status.Status = "degraded"
			status.Sink = "unreachable"
			code = http.StatusServiceUnavailable
		} else {
			status.Sink = "ok"
		}
	}

	writeJSON(w, code, status)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.cfg.Version})
}
