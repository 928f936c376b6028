package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL ledger repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListTransactions returns the user's transactions within r, newest first.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID string, rng Range) ([]Transaction, error) {
	query := `
		SELECT id, user_id, occurred_on, description, merchant, amount_cents, currency, type,
		       COALESCE(category_id, ''), created_at
		FROM transactions
		WHERE user_id = $1
		  AND ($2::timestamptz IS NULL OR occurred_on >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_on <= $3)
		ORDER BY occurred_on DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, nullableTime(rng.From), nullableTime(rng.To))
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Transaction, error) {
		var tx Transaction
		err := row.Scan(
			&tx.ID,
			&tx.UserID,
			&tx.Date,
			&tx.Description,
			&tx.Merchant,
			&tx.AmountCents,
			&tx.Currency,
			&tx.Type,
			&tx.CategoryID,
			&tx.CreatedAt,
		)
		return tx, err
	})
}

// AddTransaction stores a transaction.
func (r *PostgresRepository) AddTransaction(ctx context.Context, tx *Transaction) error {
	query := `
		INSERT INTO transactions
			(id, user_id, occurred_on, description, merchant, amount_cents, currency, type, category_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
	`
	_, err := r.pool.Exec(ctx, query,
		tx.ID, tx.UserID, tx.Date, tx.Description, tx.Merchant,
		tx.AmountCents, tx.Currency, tx.Type, tx.CategoryID, tx.CreatedAt,
	)
	return err
}

// ListCategories returns the user's categories ordered by name.
func (r *PostgresRepository) ListCategories(ctx context.Context, userID string) ([]Category, error) {
	query := `
		SELECT id, user_id, name, color, monthly_budget_cents, created_at
		FROM categories
		WHERE user_id = $1
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Category, error) {
		var c Category
		err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.MonthlyBudgetCents, &c.CreatedAt)
		return c, err
	})
}

// AddCategory stores a category.
func (r *PostgresRepository) AddCategory(ctx context.Context, c *Category) error {
	query := `
		INSERT INTO categories (id, user_id, name, color, monthly_budget_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, c.ID, c.UserID, c.Name, c.Color, c.MonthlyBudgetCents, c.CreatedAt)
	return err
}

// DeleteUserData removes all ledger data for a user.
func (r *PostgresRepository) DeleteUserData(ctx context.Context, userID string) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM transactions WHERE user_id = $1`, userID)
	batch.Queue(`DELETE FROM categories WHERE user_id = $1`, userID)
	return r.pool.SendBatch(ctx, batch).Close()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
