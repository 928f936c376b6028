package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/fintrack/fintrack/internal/storage"
)

// LogKey is the storage key holding the local audit log.
const LogKey = "privacy_audit_log"

// Repository persists the bounded local event log.
type Repository interface {
	// Load returns the persisted events, oldest first.
	Load(ctx context.Context) ([]Event, error)

	// Save replaces the persisted events.
	Save(ctx context.Context, events []Event) error
}

// InMemoryRepository keeps the log in memory.
type InMemoryRepository struct {
	mu     sync.RWMutex
	events []Event
	err    error
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Load returns a copy of the stored events.
func (r *InMemoryRepository) Load(_ context.Context) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Event(nil), r.events...), nil
}

// Save replaces the stored events.
func (r *InMemoryRepository) Save(_ context.Context, events []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return r.err
	}
	r.events = append([]Event(nil), events...)
	return nil
}

// FailWith makes subsequent saves return err. A nil err restores normal behavior.
func (r *InMemoryRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// StoreRepository persists the log as a msgpack blob in a storage.Store.
type StoreRepository struct {
	store storage.Store
}

// NewStoreRepository creates a repository backed by store.
func NewStoreRepository(store storage.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// Load decodes the persisted log.
func (r *StoreRepository) Load(ctx context.Context) ([]Event, error) {
	raw, err := r.store.Get(ctx, LogKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load audit log: %w", err)
	}

	var events []Event
	if err := msgpack.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode audit log: %w", err)
	}
	return events, nil
}

// Save encodes and persists the log.
func (r *StoreRepository) Save(ctx context.Context, events []Event) error {
	raw, err := msgpack.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode audit log: %w", err)
	}
	return r.store.Set(ctx, LogKey, raw)
}

// Ensure implementations satisfy Repository.
var (
	_ Repository = (*InMemoryRepository)(nil)
	_ Repository = (*StoreRepository)(nil)
)
