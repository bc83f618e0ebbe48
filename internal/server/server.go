package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/zapdesk/internal/backend"
	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/config"
	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/ipfilter"
	"github.com/foxzi/zapdesk/internal/metrics"
	"github.com/foxzi/zapdesk/internal/server/views"
	"github.com/foxzi/zapdesk/internal/socket"
	"github.com/foxzi/zapdesk/internal/store"
)

// Campaigns is the reconciled campaign view served by the dashboard
type Campaigns interface {
	Snapshot() []campaign.Summary
	Notifications() []campaign.Notification
	Refresh(ctx context.Context) error
	Pause(ctx context.Context, id ident.ID) error
	Resume(ctx context.Context, id ident.ID) error
	Reschedule(ctx context.Context, id ident.ID, at *time.Time) (*campaign.RescheduleResult, error)
	Delete(ctx context.Context, id ident.ID) error
	DismissNotification(key string) bool
	Subscribe() (<-chan campaign.Update, func())
}

// InventorySource loads channels and templates
type InventorySource interface {
	Inventory(ctx context.Context) (*backend.Inventory, error)
}

// StateSource reports the realtime connection state
type StateSource interface {
	State() socket.State
}

// AuditLog lists recorded user actions
type AuditLog interface {
	List(ctx context.Context, filter store.AuditFilter) ([]store.AuditEntry, int, error)
}

// Deps are the collaborators of the dashboard server
type Deps struct {
	Campaigns Campaigns
	Inventory InventorySource
	Socket    StateSource
	Audit     AuditLog
	Metrics   *metrics.Metrics
}

// Server is the local dashboard HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cfg        *config.ServerConfig
	metricsCfg config.MetricsConfig
	deps       Deps
	logger     *slog.Logger
	version    string
	startTime  time.Time

	filter    *ipfilter.Filter
	views     *views.Engine
	heartbeat time.Duration
}

// NewServer creates a new dashboard server
func NewServer(cfg *config.ServerConfig, metricsCfg config.MetricsConfig, deps Deps, logger *slog.Logger, version string) (*Server, error) {
	s := &Server{
		router:     chi.NewRouter(),
		cfg:        cfg,
		metricsCfg: metricsCfg,
		deps:       deps,
		logger:     logger.With("component", "server"),
		version:    version,
		startTime:  time.Now(),
		heartbeat:  25 * time.Second,
	}

	filter, err := ipfilter.New(cfg.AllowedIPs, s.logger)
	if err != nil {
		return nil, fmt.Errorf("dashboard allowlist: %w", err)
	}
	s.filter = filter

	engine, err := views.New()
	if err != nil {
		return nil, fmt.Errorf("dashboard templates: %w", err)
	}
	s.views = engine

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.filter.Middleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	s.router.Get("/health", s.handleHealth)

	if s.metricsCfg.Enabled && s.deps.Metrics != nil {
		s.router.Handle(s.metricsCfg.Path, s.deps.Metrics.Handler())
	}

	s.router.With(s.authMiddleware).Get("/", s.handleDashboard)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/campaigns", s.handleCampaigns)
		r.Post("/campaigns/refresh", s.handleRefresh)
		r.Post("/campaigns/{id}/pause", s.handlePause)
		r.Post("/campaigns/{id}/resume", s.handleResume)
		r.Post("/campaigns/{id}/reschedule", s.handleReschedule)
		r.Delete("/campaigns/{id}", s.handleDelete)

		r.Get("/notifications", s.handleNotifications)
		r.Delete("/notifications/{key}", s.handleDismiss)

		r.Get("/templates/available", s.handleAvailableTemplates)
		r.Post("/recipients/preview", s.handleRecipientsPreview)

		r.Get("/audit", s.handleAudit)
		r.Get("/events", s.handleEvents)
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	// The event stream clears its own write deadline
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting dashboard server", "addr", s.cfg.ListenAddr, "auth", s.cfg.Auth.PasswordHash != "")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down dashboard server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
