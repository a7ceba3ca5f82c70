// Package api provides the HTTP API for Mobilille.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mobilille/mobilille/internal/api/handler"
	"github.com/mobilille/mobilille/internal/api/middleware"
	"github.com/mobilille/mobilille/internal/auth"
)

// Views is what the data and readiness endpoints read.
type Views interface {
	handler.ViewReader
	handler.PendingLister
}

// Scheduler is what the status and admin endpoints need from the refresh
// scheduler.
type Scheduler interface {
	handler.RefreshMonitor
	handler.RefreshTrigger
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Views     Views
	Store     handler.SnapshotReader
	Scheduler Scheduler

	// JWT authorizes the admin endpoints. Nil disables them.
	JWT *auth.JWTService

	CORSOrigins []string
	RequireTLS  bool

	// FrontendDir holds templates/ and static/. Empty disables the pages.
	FrontendDir string
}

// NewRouter creates a new chi router with all routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "mobilille-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, nosniff, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Views:     cfg.Views,
		Store:     cfg.Store,
		Refresh:   cfg.Scheduler,
	})
	dataHandler := handler.NewDataHandler(cfg.Views)

	apiCSP := middleware.ContentSecurityPolicy(middleware.APIContentSecurityPolicy)

	// Ops endpoints (public)
	r.Route("/ops", func(r chi.Router) {
		r.Use(apiCSP)
		r.Use(middleware.ContentTypeJSON)
		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/ready", opsHandler.ReadinessCheck)
		r.Get("/status", opsHandler.SystemStatus)
	})

	// Data endpoints polled by the pages
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORSOrigins))
		r.Use(apiCSP)
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RateLimitByIP(middleware.DataRateLimit)) // 300 req/min

		r.Get("/matched_stops", dataHandler.MatchedStops)
		r.Get("/gtfs", dataHandler.Schedule)
		r.Get("/stations_metro", dataHandler.Passthrough(handler.ViewMetroStations))
		r.Get("/vlille", dataHandler.Passthrough(handler.ViewVLille))
		r.Get("/parking", dataHandler.Passthrough(handler.ViewParking))
		r.Get("/reseaux_sociaux", dataHandler.Passthrough(handler.ViewSocial))

		// Admin endpoints (authenticated) - only when a signing key is set
		if cfg.JWT != nil && cfg.Scheduler != nil {
			adminHandler := handler.NewAdminHandler(cfg.Scheduler, cfg.Logger)

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RateLimitByIP(middleware.AdminRateLimit)) // 10 req/min
				r.Use(middleware.AdminAuth(cfg.JWT, auth.ScopeRefresh))
				r.Post("/sources/{source}/refresh", adminHandler.RefreshSource)
			})
		}
	})

	// Pages and assets
	if cfg.FrontendDir != "" {
		pages := handler.NewPagesHandler(cfg.FrontendDir, cfg.Logger)
		for _, page := range handler.Pages {
			r.Get("/"+page+".html", pages.Page(page))
		}
		r.Get("/", pages.Page("index"))
		r.Handle("/static/*", pages.Static())
	}

	return r
}
