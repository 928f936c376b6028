// Package api provides the HTTP API for the FinTrack privacy service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack/internal/api/handler"
	"github.com/fintrack/fintrack/internal/api/middleware"
	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/export"
	"github.com/fintrack/fintrack/internal/featureflags"
	"github.com/fintrack/fintrack/internal/resilience"
	"github.com/fintrack/fintrack/internal/retention"
	"github.com/fintrack/fintrack/internal/user"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// MetricsHandler serves Prometheus metrics on /metrics when set.
	MetricsHandler http.Handler

	Tokens             middleware.TokenValidator
	UserService        *user.Service
	FeatureFlagService *featureflags.Service
	AuditService       *audit.Service
	ExportService      *export.Service
	RetentionService   *retention.Service
	Registry           *resilience.Registry
	ReadinessChecks    map[string]handler.ReadinessCheck
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "fintrack-privacy-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Audit:     mirrorReporter(cfg.AuditService),
		Registry:  cfg.Registry,
		Flags:     cfg.FeatureFlagService,
		Checks:    cfg.ReadinessChecks,
	})

	authMiddleware := middleware.Auth(cfg.Tokens)
	standardLimit := middleware.StandardLimit.PerUser()

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Privacy endpoints (authenticated) - user-based rate limiting
		r.Route("/privacy", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.NoStore)
			r.Use(middleware.RequireJSONBody)

			if cfg.ExportService != nil {
				exportHandler := handler.NewExportHandler(cfg.ExportService, cfg.Logger)
				exportLimit := middleware.ExportLimit.PerUser()
				r.With(middleware.ContentTypeJSON, standardLimit).Post("/exports:preview", exportHandler.PreviewExport)
				r.With(middleware.ContentTypeJSON, exportLimit).Post("/exports", exportHandler.CreateExport)
				// Downloads stream their own content type
				r.With(middleware.DownloadLimit.PerUser()).Get("/exports/download/{token}", exportHandler.DownloadExport)
			}

			if cfg.AuditService != nil {
				auditHandler := handler.NewAuditHandler(cfg.AuditService)
				r.Route("/audit", func(r chi.Router) {
					r.Use(standardLimit)
					r.With(middleware.ContentTypeJSON).Get("/summary", auditHandler.GetSummary)
					r.Get("/export", auditHandler.ExportLog)
				})
			}

			if cfg.RetentionService != nil {
				retentionHandler := handler.NewRetentionHandler(cfg.RetentionService)
				r.Route("/retention", func(r chi.Router) {
					r.Use(middleware.ContentTypeJSON)
					r.Use(standardLimit)
					r.Get("/settings", retentionHandler.GetSettings)
					r.Put("/settings", retentionHandler.UpdateSettings)
					r.Get("/policy", retentionHandler.GetPolicy)
					r.Get("/history", retentionHandler.GetHistory)
					r.With(middleware.PurgeLimit.PerUser()).Post("/purge", retentionHandler.Purge)
				})
			}
		})

		// Me endpoints (authenticated) - user-based rate limiting
		if cfg.UserService != nil {
			meHandler := handler.NewMeHandler(cfg.UserService)
			r.Route("/me", func(r chi.Router) {
				r.Use(middleware.ContentTypeJSON)
				r.Use(middleware.NoStore)
				r.Use(middleware.RequireJSONBody)
				r.Use(authMiddleware)
				r.Use(standardLimit)
				r.Get("/consents", meHandler.GetConsents)
				r.Put("/consents", meHandler.UpdateConsents)
			})
		}

		// Admin endpoints (authenticated) - for internal operations
		if cfg.FeatureFlagService != nil {
			featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService, eventLogger(cfg.AuditService))
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.ContentTypeJSON)
				r.Use(middleware.RequireJSONBody)
				r.Use(authMiddleware)
				r.Use(standardLimit)

				r.Route("/feature-flags", func(r chi.Router) {
					r.Get("/", featureFlagsHandler.ListFeatureFlags)
					r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
					r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
				})
			})
		}
	})

	return r
}

// mirrorReporter and eventLogger keep a nil *audit.Service from becoming a
// non-nil interface.
func mirrorReporter(s *audit.Service) handler.MirrorReporter {
	if s == nil {
		return nil
	}
	return s
}

func eventLogger(s *audit.Service) handler.EventLogger {
	if s == nil {
		return nil
	}
	return s
}
