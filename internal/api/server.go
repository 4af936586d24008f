// Package api exposes the management HTTP API and the public tracking
// endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/reviewflow/internal/attribution"
	"github.com/foxzi/reviewflow/internal/config"
	"github.com/foxzi/reviewflow/internal/dispatch"
	"github.com/foxzi/reviewflow/internal/metrics"
	"github.com/foxzi/reviewflow/internal/repository"
	"github.com/foxzi/reviewflow/internal/stats"
	"github.com/foxzi/reviewflow/internal/tracking"
	"github.com/foxzi/reviewflow/internal/upload"
)

// Uploader ingests customer files
type Uploader interface {
	Upload(ctx context.Context, f upload.File, meta upload.Meta) (*upload.Result, error)
}

// Dispatcher sends review requests
type Dispatcher interface {
	SendReviewRequests(ctx context.Context, req dispatch.Request, progress dispatch.ProgressFunc) (*dispatch.Summary, error)
}

// Matcher attributes reviews to customers
type Matcher interface {
	MatchReviews(ctx context.Context, userID, locationID string, reviews []attribution.Review) (*attribution.Report, error)
}

// StatsProvider computes location funnels
type StatsProvider interface {
	ForLocation(ctx context.Context, userID, locationID string) (*stats.Stats, error)
}

// Services are the collaborators behind the API routes
type Services struct {
	Store      *repository.Store
	Uploads    Uploader
	Dispatcher Dispatcher
	Matcher    Matcher
	Stats      StatsProvider
	// Tracking is mounted without authentication; nil disables it
	Tracking *tracking.Handler
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	svc        Services
	config     *config.ServerConfig
	apiKeys    []string
	maxUpload  int64
	metrics    *metrics.Metrics
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server. m may be nil.
func NewServer(cfg *config.Config, svc Services, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		svc:       svc,
		config:    &cfg.Server,
		apiKeys:   cfg.API.APIKeys,
		maxUpload: cfg.Upload.MaxSize,
		metrics:   m,
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.HTTPMiddleware)
	}

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	if s.svc.Tracking != nil {
		s.svc.Tracking.Mount(s.router)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/uploads", s.handleUpload)

		r.Get("/batches", s.handleListBatches)
		r.Delete("/batches/{id}", s.handleDeleteBatch)

		r.Get("/customers", s.handleListCustomers)
		r.Delete("/customers/{id}", s.handleDeleteCustomer)
		r.Delete("/locations/{location}/customers", s.handleDeleteLocation)

		r.Post("/send", s.handleSend)
		r.Post("/reviews/match", s.handleMatchReviews)
		r.Get("/stats", s.handleStats)
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
