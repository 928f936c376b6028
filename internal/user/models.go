// Package user provides user profile, settings and consent management.
//
// # PII Considerations
//
// Data Stored:
//   - Name, email and phone: contact details entered by the user
//   - Locale and currency: display preferences
//   - Settings: app preferences (notifications, biometric lock, theme)
//   - Consents: analytics, marketing and data-sharing opt-ins
//
// Every field here is included in the personal-information and settings
// sections of a data export. Consent changes are recorded in the privacy audit log.
package user

import "time"

// User represents a user's profile, settings and consents.
type User struct {
	// ID is the unique user identifier (format: usr_XXXX).
	ID string

	Name  string
	Email string
	Phone string

	// Locale is the user's preferred language/region (BCP 47, e.g., "en-CA").
	Locale string

	Settings *Settings
	Consents *Consents

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settings holds the user's app preferences.
type Settings struct {
	Currency             string
	NotificationsEnabled bool
	BudgetAlerts         bool
	BiometricLock        bool
	DarkMode             bool
	UpdatedAt            time.Time
}

// Consents represents the user's privacy consent states.
type Consents struct {
	Analytics   bool
	Marketing   bool
	DataSharing bool
	UpdatedAt   time.Time
}

// SettingsUpdate is a partial settings update. Nil fields are left unchanged.
type SettingsUpdate struct {
	Currency             *string
	NotificationsEnabled *bool
	BudgetAlerts         *bool
	BiometricLock        *bool
	DarkMode             *bool
}

// ConsentsUpdate is a partial consents update. Nil fields are left unchanged.
type ConsentsUpdate struct {
	Analytics   *bool
	Marketing   *bool
	DataSharing *bool
}

// DefaultUser returns a new user with default settings.
func DefaultUser(id string) *User {
	now := time.Now()
	return &User{
		ID:        id,
		Locale:    "en-CA",
		Settings:  DefaultSettings(),
		Consents:  DefaultConsents(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DefaultSettings returns settings with notifications on and everything else off.
func DefaultSettings() *Settings {
	return &Settings{
		Currency:             "CAD",
		NotificationsEnabled: true,
		UpdatedAt:            time.Now(),
	}
}

// DefaultConsents returns consents with all options disabled by default.
func DefaultConsents() *Consents {
	return &Consents{
		UpdatedAt: time.Now(),
	}
}
