package featureflags

import (
	"context"
	"errors"
)

// ErrFlagNotFound is returned when a feature flag is not found.
var ErrFlagNotFound = errors.New("feature flag not found")

// Repository persists the operator-controlled flags. Implementations must
// apply SetFlags atomically.
type Repository interface {
	GetFlag(ctx context.Context, key string) (*Flag, error)
	GetAllFlags(ctx context.Context) (map[string]*Flag, error)
	SetFlag(ctx context.Context, flag *Flag) error
	SetFlags(ctx context.Context, flags []*Flag) error
	DeleteFlag(ctx context.Context, key string) error
}
