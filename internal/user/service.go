package user

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack/internal/audit"
)

// ConsentAuditor records consent transitions.
type ConsentAuditor interface {
	LogConsentChange(ctx context.Context, userID, consentType string, before, after bool) audit.Event
}

// ServiceConfig holds configuration for the user service.
type ServiceConfig struct {
	Repository Repository
	Auditor    ConsentAuditor
	Logger     zerolog.Logger
}

// Service provides user profile operations.
type Service struct {
	repo    Repository
	auditor ConsentAuditor
	logger  zerolog.Logger
}

// NewService creates a new user service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:    cfg.Repository,
		auditor: cfg.Auditor,
		logger:  cfg.Logger.With().Str("component", "user").Logger(),
	}
}

// Get retrieves a user by ID.
func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	return s.repo.Get(ctx, userID)
}

// CreateUser creates a new user with default settings.
// An existing user is returned unchanged.
func (s *Service) CreateUser(ctx context.Context, userID, locale string) (*User, error) {
	existing, err := s.repo.Get(ctx, userID)
	if err == nil && existing != nil {
		return existing, nil
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user := DefaultUser(userID)
	if locale != "" {
		user.Locale = locale
	}

	err = s.repo.Create(ctx, user)
	if errors.Is(err, ErrUserExists) {
		// Lost a race with a concurrent first request.
		return s.repo.Get(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Msg("user created")
	return user, nil
}

// GetSettings retrieves the user's settings.
func (s *Service) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Settings == nil {
		return DefaultSettings(), nil
	}
	return user.Settings, nil
}

// UpdateSettings applies a partial settings update.
func (s *Service) UpdateSettings(ctx context.Context, userID string, input SettingsUpdate) (*Settings, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Settings == nil {
		user.Settings = DefaultSettings()
	}

	if input.Currency != nil {
		user.Settings.Currency = *input.Currency
	}
	if input.NotificationsEnabled != nil {
		user.Settings.NotificationsEnabled = *input.NotificationsEnabled
	}
	if input.BudgetAlerts != nil {
		user.Settings.BudgetAlerts = *input.BudgetAlerts
	}
	if input.BiometricLock != nil {
		user.Settings.BiometricLock = *input.BiometricLock
	}
	if input.DarkMode != nil {
		user.Settings.DarkMode = *input.DarkMode
	}

	now := time.Now()
	user.Settings.UpdatedAt = now
	user.UpdatedAt = now

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user.Settings, nil
}

// GetConsents retrieves the user's consent states.
func (s *Service) GetConsents(ctx context.Context, userID string) (*Consents, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Consents == nil {
		return DefaultConsents(), nil
	}
	return user.Consents, nil
}

// UpdateConsents applies a partial consents update and audits every field that was supplied.
func (s *Service) UpdateConsents(ctx context.Context, userID string, input ConsentsUpdate) (*Consents, error) {
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Consents == nil {
		user.Consents = DefaultConsents()
	}

	type change struct {
		name          string
		before, after bool
	}
	var changes []change

	apply := func(name string, field *bool, value *bool) {
		if value == nil {
			return
		}
		changes = append(changes, change{name: name, before: *field, after: *value})
		*field = *value
	}
	apply("analytics", &user.Consents.Analytics, input.Analytics)
	apply("marketing", &user.Consents.Marketing, input.Marketing)
	apply("data_sharing", &user.Consents.DataSharing, input.DataSharing)

	now := time.Now()
	user.Consents.UpdatedAt = now
	user.UpdatedAt = now

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	if s.auditor != nil {
		for _, c := range changes {
			s.auditor.LogConsentChange(ctx, userID, c.name, c.before, c.after)
		}
	}
	return user.Consents, nil
}

// DeleteUser deletes a user and all associated data.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Msg("user deleted")
	return nil
}
