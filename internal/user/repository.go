package user

import (
	"context"
	"errors"
	"sync"
)

// Repository errors.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Repository persists user profiles with their settings and consents.
// Create reports ErrUserExists for a duplicate ID; Update and Get report
// ErrUserNotFound for a missing one.
type Repository interface {
	Get(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository keeps users in process memory. Values go in and come
// out as copies.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{users: make(map[string]User)}
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.clone(), nil
}

func (r *InMemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return ErrUserExists
	}
	r.users[u.ID] = *u.clone()
	return nil
}

func (r *InMemoryRepository) Update(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	r.users[u.ID] = *u.clone()
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.users, id)
	r.mu.Unlock()
	return nil
}

// clone copies u including its settings and consents.
func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Settings != nil {
		s := *u.Settings
		c.Settings = &s
	}
	if u.Consents != nil {
		cs := *u.Consents
		c.Consents = &cs
	}
	return &c
}

var _ Repository = (*InMemoryRepository)(nil)
