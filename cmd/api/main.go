// Package main provides the entrypoint for the FinTrack privacy API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fintrack/fintrack/internal/api"
	"github.com/fintrack/fintrack/internal/api/middleware"
	"github.com/fintrack/fintrack/internal/app"
	"github.com/fintrack/fintrack/internal/config"
	"github.com/fintrack/fintrack/internal/logging"
	"github.com/fintrack/fintrack/internal/metrics"
	"github.com/fintrack/fintrack/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "fintrack-privacy-api"

	cfg, err := config.FromArgs(serviceName, os.Args[1:])
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	log := logging.New(cfg.Log, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Str("store", cfg.Store.Backend).
		Str("audit_mirror", cfg.Audit.Mirror).
		Msg("starting FinTrack privacy API")
	if cfg.UsesDevSecrets() {
		log.Warn().Msg("using development secrets - not secure for production")
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.FromConfig(cfg, serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	metrics.MustRegister()

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build services")
	}
	defer svc.Close()

	if err := svc.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}
	log.Info().Msg("privacy services initialized")

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            httpMetrics,
		RequireTLS:         cfg.App.RequireTLS,
		MetricsHandler:     metrics.Handler(),
		Tokens:             svc.JWT,
		UserService:        svc.Users,
		FeatureFlagService: svc.Flags,
		AuditService:       svc.Audit,
		ExportService:      svc.Exports,
		RetentionService:   svc.Retention,
		Registry:           svc.Registry,
		ReadinessChecks:    svc.ReadinessChecks(),
	})

	server := &http.Server{
		Addr:        ":" + cfg.App.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Export generation and downloads run longer than ordinary requests.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	svc.Shutdown(shutdownCtx)

	log.Info().Msg("server stopped")
}
