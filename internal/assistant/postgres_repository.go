package assistant

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

// NewPostgresRepository creates a new PostgreSQL Q&A history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListHistory returns exchanges asked at or after since, oldest first.
func (r *PostgresRepository) ListHistory(ctx context.Context, userID string, since time.Time) ([]Exchange, error) {
	query := `
		SELECT id, user_id, question, answer, topic, asked_at
		FROM assistant_history
		WHERE user_id = $1 AND asked_at >= $2
		ORDER BY asked_at
	`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Exchange, error) {
		var e Exchange
		err := row.Scan(&e.ID, &e.UserID, &e.Question, &e.Answer, &e.Topic, &e.AskedAt)
		return e, err
	})
}

// Append stores an exchange.
func (r *PostgresRepository) Append(ctx context.Context, e *Exchange) error {
	query := `
		INSERT INTO assistant_history (id, user_id, question, answer, topic, asked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, e.ID, e.UserID, e.Question, e.Answer, e.Topic, e.AskedAt)
	return err
}

// DeleteUserData removes the user's history.
func (r *PostgresRepository) DeleteUserData(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM assistant_history WHERE user_id = $1`, userID)
	return err
}

// PurgeBefore removes every exchange asked before cutoff.
func (r *PostgresRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM assistant_history WHERE asked_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
