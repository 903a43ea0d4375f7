// Package api exposes the campaign service over HTTP: the campaign send
// endpoint, public tracking endpoints, video duration maintenance, health
// and metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soundpost/campaigner/internal/config"
	"github.com/soundpost/campaigner/internal/dispatch"
	"github.com/soundpost/campaigner/internal/durcache"
	"github.com/soundpost/campaigner/internal/metrics"
	"github.com/soundpost/campaigner/internal/repository"
	"github.com/soundpost/campaigner/internal/tracking"
)

// Version is stamped by the build; the health endpoint reports it.
var Version = "dev"

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.Config
	campaigns  *repository.CampaignRepository
	pipeline   *dispatch.Pipeline
	tracker    *tracking.Tracker
	refresher  *durcache.Refresher
	m          *metrics.Metrics
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer wires the router. The refresher may be nil when duration
// maintenance is not configured; its endpoints then report 503.
func NewServer(
	cfg *config.Config,
	campaigns *repository.CampaignRepository,
	pipeline *dispatch.Pipeline,
	tracker *tracking.Tracker,
	refresher *durcache.Refresher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		cfg:       cfg,
		campaigns: campaigns,
		pipeline:  pipeline,
		tracker:   tracker,
		refresher: refresher,
		m:         m,
		logger:    logger,
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// Router returns the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	// Public: mail clients hit these without credentials.
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/track/open", s.handleTrackOpen)
	s.router.Get("/track/click", s.handleTrackClick)

	if s.m != nil {
		s.router.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(s.m.Registry(), promhttp.HandlerOpts{}))
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/campaigns/send", s.handleCampaignSend)
		r.Post("/videos/refresh-durations", s.handleRefreshDurations)
		r.Get("/videos/duration-stats", s.handleDurationStats)
		r.Get("/videos/{id}/duration", s.handleVideoDuration)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // dispatch runs inline on the send endpoint
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.cfg.Server.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
