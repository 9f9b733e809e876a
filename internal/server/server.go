// Package server exposes the SeqFlow REST API: submission intake and
// inspection, workflow discovery, and result retrieval. Pipeline execution
// happens in the driver; the API only reads and writes durable state.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/seqflow/internal/config"
	"github.com/me/seqflow/internal/driver"
	"github.com/me/seqflow/internal/registry"
	"github.com/me/seqflow/internal/store"
)

// Server is the SeqFlow REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.SubmissionStore
	results   store.ResultStore
	registry  *registry.Registry
	driver    *driver.Loop // optional; nil when the API runs without a driver
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithDriver attaches the pipeline driver so the server can run it in the
// background and report on it in health checks.
func WithDriver(d *driver.Loop) Option {
	return func(s *Server) {
		s.driver = d
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.SubmissionStore, results store.ResultStore, reg *registry.Registry, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		results:   results,
		registry:  reg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// StartDriver begins the pipeline driver in a background goroutine.
func (s *Server) StartDriver(ctx context.Context) {
	if s.driver == nil {
		return
	}
	go func() {
		if err := s.driver.Start(ctx); err != nil && err != context.Canceled {
			s.logger.Error("driver stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Health
		r.Get("/health", s.handleHealth)

		// Workflows (read-only catalog)
		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.handleListWorkflows)
			r.Get("/{id}", s.handleGetWorkflow)
		})

		// Submissions
		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", s.handleListSubmissions)
			r.Post("/", s.handleCreateSubmission)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSubmission)
				r.Delete("/", s.handleDeleteSubmission)
				r.Get("/result", s.handleGetSubmissionResult)
			})
		})
	})
}
