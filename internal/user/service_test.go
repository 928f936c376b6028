package user_test

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/user"
)

func ptr[T any](v T) *T { return &v }

func TestService_CreateUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := user.NewService(user.ServiceConfig{Repository: user.NewInMemoryRepository(), Logger: zerolog.Nop()})

	u, err := svc.CreateUser(ctx, "usr_1", "fr-CA")
	require.NoError(t, err)
	assert.Equal(t, "fr-CA", u.Locale)
	assert.Equal(t, "CAD", u.Settings.Currency)

	again, err := svc.CreateUser(ctx, "usr_1", "en-CA")
	require.NoError(t, err)
	assert.Equal(t, "fr-CA", again.Locale)
}

func TestService_UpdateSettings(t *testing.T) {
	ctx := context.Background()
	svc := user.NewService(user.ServiceConfig{Repository: user.NewInMemoryRepository(), Logger: zerolog.Nop()})
	_, err := svc.CreateUser(ctx, "usr_1", "")
	require.NoError(t, err)

	settings, err := svc.UpdateSettings(ctx, "usr_1", user.SettingsUpdate{
		Currency: ptr("USD"),
		DarkMode: ptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", settings.Currency)
	assert.True(t, settings.DarkMode)
	assert.True(t, settings.NotificationsEnabled, "unset fields keep their value")

	_, err = svc.UpdateSettings(ctx, "missing", user.SettingsUpdate{})
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestService_UpdateConsentsAudits(t *testing.T) {
	ctx := context.Background()
	auditor := audit.NewService(audit.ServiceConfig{Logger: zerolog.Nop()})
	svc := user.NewService(user.ServiceConfig{
		Repository: user.NewInMemoryRepository(),
		Auditor:    auditor,
		Logger:     zerolog.Nop(),
	})
	_, err := svc.CreateUser(ctx, "usr_1", "")
	require.NoError(t, err)

	consents, err := svc.UpdateConsents(ctx, "usr_1", user.ConsentsUpdate{Analytics: ptr(true)})
	require.NoError(t, err)
	assert.True(t, consents.Analytics)

	_, err = svc.UpdateConsents(ctx, "usr_1", user.ConsentsUpdate{Analytics: ptr(false), Marketing: ptr(false)})
	require.NoError(t, err)

	events := auditor.Events(ctx, "usr_1")
	require.Len(t, events, 3)
	assert.Equal(t, audit.ActionConsentGiven, events[0].Action)
	assert.Equal(t, audit.ActionConsentWithdrawn, events[1].Action)
	assert.Equal(t, audit.ActionConsentUpdated, events[2].Action)
	assert.Equal(t, "marketing", events[2].Metadata["consentType"])
}

func TestInMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := user.NewInMemoryRepository()
	require.NoError(t, repo.Create(ctx, user.DefaultUser("usr_1")))

	u, err := repo.Get(ctx, "usr_1")
	require.NoError(t, err)
	u.Settings.Currency = "EUR"

	again, err := repo.Get(ctx, "usr_1")
	require.NoError(t, err)
	assert.Equal(t, "CAD", again.Settings.Currency)
}

func TestService_CreateUserConcurrentFirstContact(t *testing.T) {
	ctx := context.Background()
	svc := user.NewService(user.ServiceConfig{Repository: user.NewInMemoryRepository(), Logger: zerolog.Nop()})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateUser(ctx, "usr_race", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestInMemoryRepository_CreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := user.NewInMemoryRepository()

	require.NoError(t, repo.Create(ctx, user.DefaultUser("usr_1")))
	assert.ErrorIs(t, repo.Create(ctx, user.DefaultUser("usr_1")), user.ErrUserExists)
}
