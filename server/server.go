// Package server exposes the credential types and stored credentials over an
// admin HTTP API. Every /v1 route requires an admin bearer token.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/status-im/credential-host/config"
	"github.com/status-im/credential-host/descriptor"
	"github.com/status-im/credential-host/logging"
	"github.com/status-im/credential-host/metrics"
	"github.com/status-im/credential-host/ratelimit"
	"github.com/status-im/credential-host/store"
)

const shutdownTimeout = 10 * time.Second

// TypeRegistry is the part of registry.Registry the API reads
type TypeRegistry interface {
	Get(name string) (*descriptor.Descriptor, error)
	List() []*descriptor.Descriptor
}

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	config        *config.Config
	types         TypeRegistry
	creds         store.Store
	limits        ratelimit.IRateLimiterManager
	health        []Pinger
	logger        logging.Logger
	metrics       metrics.MetricsRecorder
	enableMetrics bool
	metricsPath   string
	router        chi.Router
}

type Option func(*Server)

func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMetrics(m metrics.MetricsRecorder) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMetricsEndpoint serves promhttp at path; an empty path disables it
func WithMetricsEndpoint(path string) Option {
	return func(s *Server) {
		s.enableMetrics = path != ""
		s.metricsPath = path
	}
}

// WithRateLimits lets the server drop the limiter of a deleted credential
func WithRateLimits(m ratelimit.IRateLimiterManager) Option {
	return func(s *Server) {
		s.limits = m
	}
}

// WithHealthCheck adds a dependency /healthz must be able to reach
func WithHealthCheck(p Pinger) Option {
	return func(s *Server) {
		s.health = append(s.health, p)
	}
}

// New validates cfg and builds the router
func New(cfg *config.Config, types TypeRegistry, creds store.Store, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		config:        cfg,
		types:         types,
		creds:         creds,
		logger:        logging.NoopLogger{},
		metrics:       metrics.NewNoopMetrics(),
		enableMetrics: true,
		metricsPath:   "/metrics",
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	if s.enableMetrics {
		r.Method(http.MethodGet, s.metricsPath, promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAdmin)

		r.Get("/credential-types", s.handleListTypes)
		r.Get("/credential-types/{name}", s.handleGetType)
		r.Get("/credential-types/{name}/fields", s.handleTypeFields)

		r.Post("/credentials", s.handleCreateCredential)
		r.Get("/credentials/{id}", s.handleGetCredential)
		r.Patch("/credentials/{id}", s.handleUpdateCredential)
		r.Delete("/credentials/{id}", s.handleDeleteCredential)
		r.Post("/credentials/{id}/check", s.handleCheckCredential)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for the server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Config() *config.Config {
	return s.config
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Admin API listening", "address", s.config.Listen, "metrics", s.enableMetrics)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down admin API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
