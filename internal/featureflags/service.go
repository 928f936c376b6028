package featureflags

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultAuditRetentionDays = 365

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger
	// CacheTTL is how long a loaded snapshot is served before the
	// repository is read again. Default: 1 minute
	CacheTTL time.Duration
	// DefaultFlags are served for keys the repository does not hold and
	// whenever it cannot be read. Default: DefaultFlags()
	DefaultFlags map[string]*Flag
	Now          func() time.Time
}

// Service evaluates flags from a cached snapshot of the repository.
// A repository outage never fails a caller; the last snapshot or the
// defaults are served instead.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	cacheTTL time.Duration
	defaults map[string]*Flag
	now      func() time.Time

	mu       sync.RWMutex
	snapshot map[string]*Flag
	loadedAt time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger.With().Str("component", "featureflags").Logger(),
		cacheTTL: cfg.CacheTTL,
		defaults: cfg.DefaultFlags,
		now:      cfg.Now,
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = time.Minute
	}
	if s.defaults == nil {
		s.defaults = DefaultFlags()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// GetFlag returns the flag for key, or nil when neither the repository nor
// the defaults know it.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag, ok := s.current(ctx)[key]; ok {
		return flag
	}
	return nil
}

// GetAllFlags returns every known flag, stored values over defaults.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	snap := s.current(ctx)
	out := make(map[string]*Flag, len(snap))
	for k, v := range snap {
		out[k] = v
	}
	return out
}

// SetFlag validates and stores a single flag.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	return s.SetFlags(ctx, []*Flag{flag})
}

// SetFlags validates every flag first and stores them together.
// Nothing is written when any flag is invalid.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	now := s.now()
	for _, flag := range flags {
		value, err := Normalize(flag.Key, flag.Value)
		if err != nil {
			return err
		}
		flag.Value = value
		flag.UpdatedAt = now
	}

	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return err
	}

	s.mu.Lock()
	if s.snapshot != nil {
		next := make(map[string]*Flag, len(s.snapshot)+len(flags))
		for k, v := range s.snapshot {
			next[k] = v
		}
		for _, flag := range flags {
			next[flag.Key] = flag
		}
		s.snapshot = next
	}
	s.mu.Unlock()

	for _, flag := range flags {
		s.logger.Info().Str("flag", flag.Key).Interface("value", flag.Value).Msg("feature flag updated")
	}
	return nil
}

// InvalidateCache drops the snapshot so the next read goes to the repository.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.snapshot = nil
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

// IsEnabled reports whether a boolean flag is on. Unknown flags are off.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

// IsAuditMirrorDisabled returns true if remote audit mirroring is turned off.
func (s *Service) IsAuditMirrorDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDisableAuditMirror)
}

// AuditLocalRetentionDays returns how long audit events stay in the local log.
func (s *Service) AuditLocalRetentionDays(ctx context.Context) int {
	days := s.GetFlag(ctx, FlagAuditLocalRetentionDays).IntValue(defaultAuditRetentionDays)
	if days <= 0 {
		return defaultAuditRetentionDays
	}
	return days
}

// current returns a fresh snapshot, reloading it when expired. On a
// repository error the stale snapshot, or the defaults, are kept.
func (s *Service) current(ctx context.Context) map[string]*Flag {
	s.mu.RLock()
	snap, loadedAt := s.snapshot, s.loadedAt
	s.mu.RUnlock()
	if snap != nil && s.now().Sub(loadedAt) < s.cacheTTL {
		return snap
	}

	stored, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load feature flags, serving last known values")
		if snap != nil {
			return snap
		}
		return s.defaults
	}

	next := make(map[string]*Flag, len(s.defaults)+len(stored))
	for k, v := range s.defaults {
		next[k] = v
	}
	for k, v := range stored {
		next[k] = v
	}

	s.mu.Lock()
	s.snapshot = next
	s.loadedAt = s.now()
	s.mu.Unlock()
	return next
}
