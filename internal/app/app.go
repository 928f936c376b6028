// Package app assembles the FinTrack privacy services from configuration.
// Both the API server and the worker build the same App so that they share
// one store, one audit log and one retention schedule.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack/internal/api/handler"
	"github.com/fintrack/fintrack/internal/assistant"
	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/auth"
	"github.com/fintrack/fintrack/internal/config"
	"github.com/fintrack/fintrack/internal/database"
	"github.com/fintrack/fintrack/internal/export"
	"github.com/fintrack/fintrack/internal/featureflags"
	"github.com/fintrack/fintrack/internal/ledger"
	"github.com/fintrack/fintrack/internal/resilience"
	"github.com/fintrack/fintrack/internal/retention"
	"github.com/fintrack/fintrack/internal/securefile"
	"github.com/fintrack/fintrack/internal/storage"
	"github.com/fintrack/fintrack/internal/user"
)

// Store key prefixes for locally held non-financial data.
const (
	AnalyticsPrefix = "analytics:"
	SessionPrefix   = "session:"
	UsageEventsKey  = "usage_events"
)

// App holds the wired services.
type App struct {
	Config config.Config
	Logger zerolog.Logger

	Store    storage.Store
	Registry *resilience.Registry
	JWT      *auth.JWTService

	Flags     *featureflags.Service
	Audit     *audit.Service
	Users     *user.Service
	Files     *securefile.Service
	Exports   *export.Service
	Retention *retention.Service

	pool    *pgxpool.Pool
	redis   *redis.Client
	history assistant.Repository
}

// New connects the configured backends and builds every service.
// Call Initialize before serving and Close when done.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: resilience.NewRegistry(),
	}

	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}

	inner, locker := a.backend()
	sealed, err := storage.NewSealedStore(inner, []byte(cfg.Store.MasterKey))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("seal store: %w", err)
	}
	a.Store = sealed

	a.JWT = auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.Auth.JWTSigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew,
	})

	var (
		flagRepo   featureflags.Repository = featureflags.NewInMemoryRepository()
		userRepo   user.Repository         = user.NewInMemoryRepository()
		ledgerRepo export.Ledger           = ledger.NewInMemoryRepository()
	)
	a.history = assistant.NewInMemoryRepository()
	if a.pool != nil {
		flagRepo = featureflags.NewPostgresRepository(a.pool)
		userRepo = user.NewPostgresRepository(a.pool)
		ledgerRepo = ledger.NewPostgresRepository(a.pool)
		a.history = assistant.NewPostgresRepository(a.pool)
	}

	a.Flags = featureflags.NewService(featureflags.ServiceConfig{
		Repository: flagRepo,
		Logger:     logger,
		CacheTTL:   time.Minute,
	})

	sink, err := a.auditSink()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Audit = audit.NewService(audit.ServiceConfig{
		Repository: audit.NewStoreRepository(a.Store),
		Sink:       sink,
		Flags:      a.Flags,
		Logger:     logger,
		MaxEvents:  cfg.Audit.MaxEvents,
	})

	a.Users = user.NewService(user.ServiceConfig{
		Repository: userRepo,
		Auditor:    a.Audit,
		Logger:     logger,
	})

	a.Files = securefile.NewService(securefile.ServiceConfig{
		Store:       a.Store,
		Locker:      locker,
		Audit:       a.Audit,
		Logger:      logger,
		SecureDir:   cfg.SecureDir(),
		TempDir:     cfg.DownloadDir(),
		TokenTTL:    cfg.Export.TokenTTL,
		FileMaxAge:  cfg.Export.FileMaxAge,
		TempFileTTL: cfg.Export.TempFileTTL,
	})

	a.Exports = export.NewService(export.ServiceConfig{
		Profiles: a.Users,
		Ledger:   ledgerRepo,
		History:  a.history,
		Files:    a.Files,
		Audit:    a.Audit,
		Flags:    a.Flags,
		Logger:   logger,
		WorkDir:  cfg.WorkDir(),
	})

	a.Retention = retention.NewService(retention.ServiceConfig{
		Store:  a.Store,
		Audit:  a.Audit,
		Flags:  a.Flags,
		Logger: logger,
	})
	if err := a.registerPurgers(); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Initialize prepares directories and loads persisted state.
func (a *App) Initialize(ctx context.Context) error {
	for _, dir := range []string{a.Config.CacheDir(), a.Config.TempDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"audit", a.Audit.Initialize},
		{"secure files", a.Files.Initialize},
		{"exports", a.Exports.Initialize},
		{"retention", a.Retention.Initialize},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", step.name, err)
		}
	}
	return nil
}

// Shutdown flushes the audit outbox and removes transient plaintext files.
func (a *App) Shutdown(ctx context.Context) {
	a.Files.Shutdown(ctx)
	a.Audit.Shutdown(ctx)
}

// Close releases backend connections.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// ReadinessChecks probes the connected backends.
func (a *App) ReadinessChecks() map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"store": func(ctx context.Context) error {
			_, err := a.Store.Get(ctx, retention.SettingsKey)
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		},
	}
	if a.pool != nil {
		checks["postgres"] = func(ctx context.Context) error { return a.pool.Ping(ctx) }
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	if cfg.UsesPostgres() {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
		a.Logger.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	}

	if cfg.Store.Backend == config.StoreRedis {
		rs, err := storage.NewRedisStore(ctx, storage.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.redis = rs.Client()
		a.Logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}
	return nil
}

// backend returns the unsealed store and the token locker for the configured backend.
func (a *App) backend() (storage.Store, storage.Locker) {
	switch {
	case a.redis != nil:
		return storage.NewRedisStoreFromClient(a.redis, a.Config.Redis.Namespace), storage.NewRedisLocker(a.redis)
	case a.Config.Store.Backend == config.StorePostgres:
		return storage.NewPostgresStore(a.pool), storage.NewInMemoryLocker()
	default:
		return storage.NewInMemoryStore(), storage.NewInMemoryLocker()
	}
}

func (a *App) auditSink() (audit.RemoteSink, error) {
	switch a.Config.Audit.Mirror {
	case config.MirrorPostgres:
		return audit.NewPostgresSink(a.pool), nil
	case config.MirrorHTTP:
		clientCfg := resilience.DefaultClientConfig("audit-mirror")
		clientCfg.Registry = a.Registry
		return audit.NewHTTPSink(resilience.NewClient(clientCfg), a.Config.Audit.MirrorURL, a.Config.Audit.MirrorToken), nil
	case config.MirrorNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown audit mirror %q", a.Config.Audit.Mirror)
}

// registerPurgers binds every purge-eligible category to the data it covers.
func (a *App) registerPurgers() error {
	purgers := map[retention.Category]retention.Purger{
		retention.CategoryUserAnalytics: &retention.PrefixPurger{Store: a.Store, Prefix: AnalyticsPrefix},
		retention.CategoryCommunicationLogs: retention.PurgerFunc(func(ctx context.Context, cutoff time.Time) (retention.PurgeResult, error) {
			n, err := a.history.PurgeBefore(ctx, cutoff)
			return retention.PurgeResult{ItemsDeleted: n}, err
		}),
		retention.CategoryUsageData:   &retention.ListPurger{Store: a.Store, Key: UsageEventsKey},
		retention.CategorySessionData: &retention.PrefixPurger{Store: a.Store, Prefix: SessionPrefix},
		retention.CategoryTempFiles:   &retention.DirPurger{Dir: a.Config.TempDir()},
		retention.CategoryCacheData:   &retention.DirPurger{Dir: a.Config.CacheDir()},
	}
	for _, c := range retention.EligibleCategories {
		if err := a.Retention.RegisterPurger(c, purgers[c]); err != nil {
			return fmt.Errorf("register %s purger: %w", c, err)
		}
	}
	return nil
}
