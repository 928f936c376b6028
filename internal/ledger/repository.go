package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Repository errors.
var (
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Repository defines the interface for ledger persistence.
type Repository interface {
	// ListTransactions returns the user's transactions within r, newest first.
	ListTransactions(ctx context.Context, userID string, r Range) ([]Transaction, error)

	// AddTransaction stores a transaction.
	AddTransaction(ctx context.Context, tx *Transaction) error

	// ListCategories returns the user's categories ordered by name.
	ListCategories(ctx context.Context, userID string) ([]Category, error)

	// AddCategory stores a category.
	AddCategory(ctx context.Context, c *Category) error

	// DeleteUserData removes all ledger data for a user.
	DeleteUserData(ctx context.Context, userID string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu           sync.RWMutex
	transactions map[string][]Transaction
	categories   map[string][]Category
}

// NewInMemoryRepository creates a new in-memory ledger repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		transactions: make(map[string][]Transaction),
		categories:   make(map[string][]Category),
	}
}

// ListTransactions returns the user's transactions within r, newest first.
func (r *InMemoryRepository) ListTransactions(_ context.Context, userID string, rng Range) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Transaction, 0)
	for _, tx := range r.transactions[userID] {
		if rng.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// AddTransaction stores a transaction.
func (r *InMemoryRepository) AddTransaction(_ context.Context, tx *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transactions[tx.UserID] = append(r.transactions[tx.UserID], *tx)
	return nil
}

// ListCategories returns the user's categories ordered by name.
func (r *InMemoryRepository) ListCategories(_ context.Context, userID string) ([]Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := append([]Category{}, r.categories[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddCategory stores a category.
func (r *InMemoryRepository) AddCategory(_ context.Context, c *Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.categories[c.UserID] = append(r.categories[c.UserID], *c)
	return nil
}

// DeleteUserData removes all ledger data for a user.
func (r *InMemoryRepository) DeleteUserData(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.transactions, userID)
	delete(r.categories, userID)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
