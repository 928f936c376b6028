package featureflags

import (
	"context"
	"sync"
)

// InMemoryRepository keeps flags in process memory. It stores copies, so
// callers cannot change a stored flag through a pointer they hold.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewInMemoryRepository creates a repository seeded with the default flags.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithFlags(DefaultFlags())
}

// NewInMemoryRepositoryWithFlags creates a repository holding flags.
func NewInMemoryRepositoryWithFlags(flags map[string]*Flag) *InMemoryRepository {
	repo := &InMemoryRepository{flags: make(map[string]Flag, len(flags))}
	for k, v := range flags {
		repo.flags[k] = *v
	}
	return repo
}

func (r *InMemoryRepository) GetFlag(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flag, ok := r.flags[key]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &flag, nil
}

func (r *InMemoryRepository) GetAllFlags(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Flag, len(r.flags))
	for k, v := range r.flags {
		flag := v
		out[k] = &flag
	}
	return out, nil
}

func (r *InMemoryRepository) SetFlag(ctx context.Context, flag *Flag) error {
	return r.SetFlags(ctx, []*Flag{flag})
}

func (r *InMemoryRepository) SetFlags(_ context.Context, flags []*Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, flag := range flags {
		r.flags[flag.Key] = *flag
	}
	return nil
}

func (r *InMemoryRepository) DeleteFlag(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.flags, key)
	r.mu.Unlock()
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
