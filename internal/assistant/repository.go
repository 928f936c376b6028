package assistant

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for Q&A history persistence.
type Repository interface {
	// ListHistory returns exchanges asked at or after since, oldest first.
	// A zero since returns the whole history.
	ListHistory(ctx context.Context, userID string, since time.Time) ([]Exchange, error)

	// Append stores an exchange.
	Append(ctx context.Context, e *Exchange) error

	// DeleteUserData removes the user's history.
	DeleteUserData(ctx context.Context, userID string) error

	// PurgeBefore removes every exchange asked before cutoff and returns how many were removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	history map[string][]Exchange
}

// NewInMemoryRepository creates a new in-memory Q&A history repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{history: make(map[string][]Exchange)}
}

// ListHistory returns exchanges asked at or after since, oldest first.
func (r *InMemoryRepository) ListHistory(_ context.Context, userID string, since time.Time) ([]Exchange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Exchange, 0, len(r.history[userID]))
	for _, e := range r.history[userID] {
		if since.IsZero() || !e.AskedAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AskedAt.Before(out[j].AskedAt) })
	return out, nil
}

// Append stores an exchange.
func (r *InMemoryRepository) Append(_ context.Context, e *Exchange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.history[e.UserID] = append(r.history[e.UserID], *e)
	return nil
}

// DeleteUserData removes the user's history.
func (r *InMemoryRepository) DeleteUserData(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.history, userID)
	return nil
}

// PurgeBefore removes every exchange asked before cutoff.
func (r *InMemoryRepository) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for userID, history := range r.history {
		kept := history[:0]
		for _, e := range history {
			if e.AskedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(r.history, userID)
			continue
		}
		r.history[userID] = kept
	}
	return removed, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
