// Package database provides PostgreSQL connection management.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds database connection configuration.
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultConfig returns settings for a local development database.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "fintrack",
		Password:        "localdev",
		Database:        "fintrack",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// ConnectionString returns the PostgreSQL connection string.
func (c Config) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Connect creates a new database connection pool.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns) //nolint:gosec // MaxOpenConns is bounded by config validation
	poolConfig.MinConns = int32(cfg.MaxIdleConns) //nolint:gosec // MaxIdleConns is bounded by config validation
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// schema creates every table the Postgres repositories use.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id               TEXT PRIMARY KEY,
		name                  TEXT NOT NULL DEFAULT '',
		email                 TEXT NOT NULL DEFAULT '',
		phone                 TEXT NOT NULL DEFAULT '',
		locale                TEXT NOT NULL DEFAULT 'en-CA',
		currency              TEXT NOT NULL DEFAULT 'CAD',
		notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		budget_alerts         BOOLEAN NOT NULL DEFAULT FALSE,
		biometric_lock        BOOLEAN NOT NULL DEFAULT FALSE,
		dark_mode             BOOLEAN NOT NULL DEFAULT FALSE,
		settings_updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		consent_analytics     BOOLEAN NOT NULL DEFAULT FALSE,
		consent_marketing     BOOLEAN NOT NULL DEFAULT FALSE,
		consent_data_sharing  BOOLEAN NOT NULL DEFAULT FALSE,
		consents_updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id                   TEXT PRIMARY KEY,
		user_id              TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		name                 TEXT NOT NULL,
		color                TEXT NOT NULL DEFAULT '',
		monthly_budget_cents BIGINT NOT NULL DEFAULT 0,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		occurred_on  TIMESTAMPTZ NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		merchant     TEXT NOT NULL DEFAULT '',
		amount_cents BIGINT NOT NULL,
		currency     TEXT NOT NULL DEFAULT 'CAD',
		type         TEXT NOT NULL DEFAULT 'debit',
		category_id  TEXT REFERENCES categories(id) ON DELETE SET NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS transactions_user_date_idx ON transactions (user_id, occurred_on DESC)`,
	`CREATE TABLE IF NOT EXISTS assistant_history (
		id       TEXT PRIMARY KEY,
		user_id  TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		question TEXT NOT NULL,
		answer   TEXT NOT NULL,
		topic    TEXT NOT NULL DEFAULT '',
		asked_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS privacy_audit_logs (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		action        TEXT NOT NULL,
		resource      TEXT NOT NULL,
		metadata      JSONB,
		occurred_at   TIMESTAMPTZ NOT NULL,
		success       BOOLEAN NOT NULL,
		error_message TEXT,
		compliance    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS privacy_audit_logs_user_idx ON privacy_audit_logs (user_id, occurred_at)`,
	`CREATE TABLE IF NOT EXISTS feature_flags (
		key        TEXT PRIMARY KEY,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS kv_store (
		key        TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
