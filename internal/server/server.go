// Package server wires the HTTP router, middleware chain and lifecycle for
// the decomposition service.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ndemo/scalesep/internal/config"
	"github.com/ndemo/scalesep/internal/handler"
	"github.com/ndemo/scalesep/internal/health"
	"github.com/ndemo/scalesep/internal/metrics"
	"github.com/ndemo/scalesep/internal/middleware"
)

// Server represents the HTTP server.
type Server struct {
	cfg         *config.Config
	logger      *zap.Logger
	router      *mux.Router
	httpServer  *http.Server
	handlers    *handler.Handlers
	healthCheck *health.HealthCheck
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	handlers *handler.Handlers,
	healthCheck *health.HealthCheck,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		router:      mux.NewRouter(),
		handlers:    handlers,
		healthCheck: healthCheck,
	}
	s.setupRoutes(m)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes and middleware.
func (s *Server) setupRoutes(m *metrics.Metrics) {
	rateLimiter := middleware.NewRateLimiter(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst, s.logger)

	chain := middleware.Chain(
		middleware.RequestID,
		middleware.Recovery(s.logger),
		middleware.Logging(s.logger),
		middleware.Metrics(m),
		rateLimiter.Limit,
	)
	s.router.Use(chain)

	// Health endpoints stay outside /v1 so probes keep working across API
	// versions.
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/decompositions", s.handlers.Submit).Methods(http.MethodPost)
	v1.HandleFunc("/decompositions", s.handlers.ListJobs).Methods(http.MethodGet)
	v1.HandleFunc("/decompositions/{job_id}", s.handlers.GetJob).Methods(http.MethodGet)
	v1.HandleFunc("/decompositions/{job_id}/result", s.handlers.GetResult).Methods(http.MethodGet)
	v1.HandleFunc("/release", s.handlers.TriggerRelease).Methods(http.MethodPost)

	notFound := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"error","code":1001,"message":"not found"}`))
	}))
	notAllowed := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"status":"error","code":1000,"message":"method not allowed"}`))
	}))
	s.router.NotFoundHandler = notFound
	s.router.MethodNotAllowedHandler = notAllowed
	// Subrouters do not inherit the parent's fallback handlers.
	v1.NotFoundHandler = notFound
	v1.MethodNotAllowedHandler = notAllowed
}

// Start begins listening for HTTP requests and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
