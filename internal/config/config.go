// Package config loads service configuration from defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fintrack/fintrack/internal/database"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Audit mirror kinds.
const (
	MirrorNone     = "none"
	MirrorPostgres = "postgres"
	MirrorHTTP     = "http"
)

// MinMasterKeyLength is the shortest accepted master key, in bytes.
const MinMasterKeyLength = 16

// Development fallbacks. Validate rejects them in production.
const (
	devJWTSigningKey = "local-dev-signing-key-change-in-production"
	devMasterKey     = "local-dev-master-key-change-me"
)

type AppConfig struct {
	Port    string `yaml:"port"`
	Env     string `yaml:"env"`
	DataDir string `yaml:"data_dir"`

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool `yaml:"require_tls"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type StoreConfig struct {
	Backend   string `yaml:"backend"`
	MasterKey string `yaml:"master_key"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"`
}

type AuthConfig struct {
	JWTSigningKey string        `yaml:"jwt_signing_key"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
}

type AuditConfig struct {
	Mirror      string `yaml:"mirror"`
	MirrorURL   string `yaml:"mirror_url"`
	MirrorToken string `yaml:"mirror_token"`
	MaxEvents   int    `yaml:"max_events"`
}

type ExportConfig struct {
	TokenTTL    time.Duration `yaml:"token_ttl"`
	FileMaxAge  time.Duration `yaml:"file_max_age"`
	TempFileTTL time.Duration `yaml:"temp_file_ttl"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// SampleRatio of zero picks the environment default.
	SampleRatio float64 `yaml:"sample_ratio"`
}

type PubSubConfig struct {
	ProjectID    string `yaml:"project_id"`
	Subscription string `yaml:"subscription"`
}

// Config is the complete service configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  database.Config `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Audit     AuditConfig     `yaml:"audit"`
	Export    ExportConfig    `yaml:"export"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		App: AppConfig{
			Port:    "8080",
			Env:     "development",
			DataDir: "./data",
		},
		Log: LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{
			Backend:   StoreMemory,
			MasterKey: devMasterKey,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Namespace: "fintrack",
		},
		Database: database.DefaultConfig(),
		Auth: AuthConfig{
			JWTSigningKey: devJWTSigningKey,
			Issuer:        "https://accounts.fintrack.ca",
			Audience:      "fintrack-privacy",
			ClockSkew:     30 * time.Second,
		},
		Audit: AuditConfig{
			Mirror:    MirrorNone,
			MaxEvents: 1000,
		},
		Export: ExportConfig{
			TokenTTL:    24 * time.Hour,
			FileMaxAge:  24 * time.Hour,
			TempFileTTL: 5 * time.Minute,
		},
		Telemetry: TelemetryConfig{OTLPEndpoint: "localhost:4317"},
		PubSub:    PubSubConfig{Subscription: "fintrack-privacy-jobs"},
	}
}

// FromArgs parses the -config flag from args and loads the configuration.
func FromArgs(name string, args []string) (Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", os.Getenv("CONFIG_FILE"), "path to config yaml")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return Load(*path)
}

// Load builds the configuration from defaults, the YAML file at path (if
// any) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and production requirements.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}

	switch c.Audit.Mirror {
	case MirrorNone, MirrorPostgres:
	case MirrorHTTP:
		if c.Audit.MirrorURL == "" {
			errs = append(errs, errors.New("audit.mirror_url is required for the http mirror"))
		}
	default:
		errs = append(errs, fmt.Errorf("audit.mirror: unknown mirror %q", c.Audit.Mirror))
	}

	if len(c.Store.MasterKey) < MinMasterKeyLength {
		errs = append(errs, fmt.Errorf("store.master_key must be at least %d bytes", MinMasterKeyLength))
	}
	if c.App.DataDir == "" {
		errs = append(errs, errors.New("app.data_dir is required"))
	}

	if c.IsProduction() {
		if c.Auth.JWTSigningKey == devJWTSigningKey || c.Auth.JWTSigningKey == "" {
			errs = append(errs, errors.New("auth.jwt_signing_key must be set in production"))
		}
		if c.Store.MasterKey == devMasterKey {
			errs = append(errs, errors.New("store.master_key must be set in production"))
		}
	}

	return errors.Join(errs...)
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// UsesDevSecrets reports whether development fallback secrets are in use.
func (c Config) UsesDevSecrets() bool {
	return c.Auth.JWTSigningKey == devJWTSigningKey || c.Store.MasterKey == devMasterKey
}

// UsesPostgres reports whether any component needs a database connection.
func (c Config) UsesPostgres() bool {
	return c.Store.Backend == StorePostgres || c.Audit.Mirror == MirrorPostgres
}

// SecureDir is where encrypted exports are written.
func (c Config) SecureDir() string { return filepath.Join(c.App.DataDir, "secure_exports") }

// WorkDir is where plaintext payloads wait for encryption.
func (c Config) WorkDir() string { return filepath.Join(c.App.DataDir, "exports") }

// DownloadDir holds transient decrypted downloads.
func (c Config) DownloadDir() string { return filepath.Join(c.App.DataDir, "downloads") }

// CacheDir holds purgeable cached files.
func (c Config) CacheDir() string { return filepath.Join(c.App.DataDir, "cache") }

// TempDir holds purgeable temporary files.
func (c Config) TempDir() string { return filepath.Join(c.App.DataDir, "tmp") }

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	fraction := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 || f > 1 {
				errs = append(errs, fmt.Errorf("%s: want a fraction between 0 and 1, got %q", key, v))
				return
			}
			*dst = f
		}
	}

	str("APP_PORT", &cfg.App.Port)
	str("APP_ENV", &cfg.App.Env)
	str("DATA_DIR", &cfg.App.DataDir)
	boolean("REQUIRE_TLS", &cfg.App.RequireTLS)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	str("STORE_BACKEND", &cfg.Store.Backend)
	str("MASTER_KEY", &cfg.Store.MasterKey)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)

	str("DB_HOST", &cfg.Database.Host)
	num("DB_PORT", &cfg.Database.Port)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Database)
	str("DB_SSL_MODE", &cfg.Database.SSLMode)
	num("DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	num("DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	dur("DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)

	str("JWT_SIGNING_KEY", &cfg.Auth.JWTSigningKey)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	str("JWT_AUDIENCE", &cfg.Auth.Audience)
	dur("JWT_CLOCK_SKEW", &cfg.Auth.ClockSkew)

	str("AUDIT_MIRROR", &cfg.Audit.Mirror)
	str("AUDIT_MIRROR_URL", &cfg.Audit.MirrorURL)
	str("AUDIT_MIRROR_TOKEN", &cfg.Audit.MirrorToken)

	dur("EXPORT_TOKEN_TTL", &cfg.Export.TokenTTL)
	dur("EXPORT_TEMP_FILE_TTL", &cfg.Export.TempFileTTL)

	boolean("OTEL_ENABLED", &cfg.Telemetry.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	fraction("OTEL_TRACES_SAMPLER_ARG", &cfg.Telemetry.SampleRatio)

	str("PUBSUB_PROJECT_ID", &cfg.PubSub.ProjectID)
	str("PUBSUB_SUBSCRIPTION", &cfg.PubSub.Subscription)

	return errors.Join(errs...)
}
