// Package main provides the entrypoint for the FinTrack privacy worker.
// The worker runs scheduled purges and cleanups and serves on-demand jobs
// from Pub/Sub.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fintrack/fintrack/internal/api/handler"
	"github.com/fintrack/fintrack/internal/api/response"
	"github.com/fintrack/fintrack/internal/app"
	"github.com/fintrack/fintrack/internal/config"
	"github.com/fintrack/fintrack/internal/logging"
	"github.com/fintrack/fintrack/internal/metrics"
	"github.com/fintrack/fintrack/internal/scheduler"
	"github.com/fintrack/fintrack/internal/telemetry"
	"github.com/fintrack/fintrack/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "fintrack-privacy-worker"

	cfg, err := config.FromArgs(serviceName, os.Args[1:])
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	log := logging.New(cfg.Log, serviceName, Version)
	log.Info().Str("build_time", BuildTime).Msg("starting FinTrack privacy worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.FromConfig(cfg, serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	metrics.MustRegister()

	svc, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build services")
	}
	defer svc.Close()
	if err := svc.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize services")
	}

	maintenance := worker.NewMaintenanceJob(worker.MaintenanceJobConfig{
		Config:    worker.DefaultMaintenanceConfig(),
		Logger:    log,
		Retention: svc.Retention,
		Files:     svc.Files,
		Exports:   svc.Exports,
		Audit:     svc.Audit,
		Flags:     svc.Flags,
	})

	sched := scheduler.New(log)
	for _, job := range maintenance.Jobs() {
		if err := sched.Register(job); err != nil {
			log.Fatal().Err(err).Str("job", job.Name).Msg("failed to register job")
		}
	}
	sched.Start(ctx)
	log.Info().Strs("jobs", sched.Jobs()).Msg("scheduler started")

	var subscriber *worker.PubSubHandler
	if cfg.PubSub.ProjectID != "" {
		subscriber, err = worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Runner:           maintenance,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		go func() {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		log.Warn().Msg("pubsub not configured - on-demand jobs disabled")
	}

	// Health endpoints for Cloud Run
	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Audit:     svc.Audit,
		Registry:  svc.Registry,
		Flags:     svc.Flags,
		Checks:    svc.ReadinessChecks(),
	})
	r := chi.NewRouter()
	r.Get("/health", ops.HealthCheck)
	r.Get("/ready", ops.ReadinessCheck)
	r.Get("/jobs", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, maintenance.MetricsSnapshot())
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()
	sched.Stop()
	if subscriber != nil {
		if err := subscriber.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	svc.Shutdown(shutdownCtx)

	log.Info().Msg("worker stopped")
}
