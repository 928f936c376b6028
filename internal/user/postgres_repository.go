package user

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE for a duplicate primary key.
const uniqueViolation = "23505"

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL user repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const userColumns = `
	user_id, name, email, phone, locale,
	currency, notifications_enabled, budget_alerts, biometric_lock, dark_mode, settings_updated_at,
	consent_analytics, consent_marketing, consent_data_sharing, consents_updated_at,
	created_at, updated_at`

// Get retrieves a user by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user := &User{Settings: &Settings{}, Consents: &Consents{}}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.Locale,
		&user.Settings.Currency,
		&user.Settings.NotificationsEnabled,
		&user.Settings.BudgetAlerts,
		&user.Settings.BiometricLock,
		&user.Settings.DarkMode,
		&user.Settings.UpdatedAt,
		&user.Consents.Analytics,
		&user.Consents.Marketing,
		&user.Consents.DataSharing,
		&user.Consents.UpdatedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// Create creates a new user.
func (r *PostgresRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query, args(user)...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrUserExists
	}
	return err
}

// Update updates an existing user.
func (r *PostgresRepository) Update(ctx context.Context, user *User) error {
	query := `
		UPDATE users SET
			name = $2,
			email = $3,
			phone = $4,
			locale = $5,
			currency = $6,
			notifications_enabled = $7,
			budget_alerts = $8,
			biometric_lock = $9,
			dark_mode = $10,
			settings_updated_at = $11,
			consent_analytics = $12,
			consent_marketing = $13,
			consent_data_sharing = $14,
			consents_updated_at = $15,
			updated_at = $16
		WHERE user_id = $1
	`

	// Same order as args without created_at.
	a := args(user)
	a = append(a[:15], a[16])
	result, err := r.pool.Exec(ctx, query, a...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete deletes a user. Ledger and assistant rows cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, id)
	return err
}

func args(user *User) []interface{} {
	settings := user.Settings
	if settings == nil {
		settings = DefaultSettings()
	}
	consents := user.Consents
	if consents == nil {
		consents = DefaultConsents()
	}
	return []interface{}{
		user.ID,
		user.Name,
		user.Email,
		user.Phone,
		user.Locale,
		settings.Currency,
		settings.NotificationsEnabled,
		settings.BudgetAlerts,
		settings.BiometricLock,
		settings.DarkMode,
		settings.UpdatedAt,
		consents.Analytics,
		consents.Marketing,
		consents.DataSharing,
		consents.UpdatedAt,
		user.CreatedAt,
		user.UpdatedAt,
	}
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
