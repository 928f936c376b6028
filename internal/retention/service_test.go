package retention_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/featureflags"
	"github.com/fintrack/fintrack/internal/retention"
	"github.com/fintrack/fintrack/internal/storage"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type flags map[string]bool

func (f flags) IsEnabled(_ context.Context, key string) bool { return f[key] }

type fixture struct {
	svc   *retention.Service
	store *storage.InMemoryStore
	audit *audit.Service
	clock *clock
	flags flags
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewInMemoryStore(),
		audit: audit.NewService(audit.ServiceConfig{Logger: zerolog.Nop()}),
		clock: &clock{t: time.Now()},
		flags: flags{},
	}
	f.svc = f.newService()
	require.NoError(t, f.svc.Initialize(context.Background()))
	return f
}

func (f *fixture) newService() *retention.Service {
	return retention.NewService(retention.ServiceConfig{
		Store:  f.store,
		Audit:  f.audit,
		Flags:  f.flags,
		Logger: zerolog.Nop(),
		Now:    f.clock.Now,
	})
}

func (f *fixture) enableAutoDelete(t *testing.T) {
	t.Helper()
	on := true
	_, err := f.svc.UpdateRetentionSettings(context.Background(), retention.SettingsUpdate{AutoDeleteOldData: &on})
	require.NoError(t, err)
}

func (f *fixture) actions() []audit.Action {
	var out []audit.Action
	for _, e := range f.audit.Events(context.Background(), "system") {
		out = append(out, e.Action)
	}
	return out
}

func TestPolicyFor_FinancialFloor(t *testing.T) {
	periods := []retention.Period{
		retention.Period1Year, retention.Period2Years, retention.Period3Years,
		retention.Period5Years, retention.Period7Years, "bogus",
	}
	for _, p := range periods {
		t.Run(string(p), func(t *testing.T) {
			policy := retention.PolicyFor(p)
			assert.Equal(t, 2555, policy.FinancialRecords)
			assert.Equal(t, 2555, policy.TransactionHistory)
			assert.Equal(t, 2555, policy.TaxRelatedData)
			assert.LessOrEqual(t, policy.UserAnalytics, 730)
			assert.LessOrEqual(t, policy.CommunicationLogs, 365)
			assert.LessOrEqual(t, policy.SessionData, 90)
			assert.LessOrEqual(t, policy.TempFiles, 30)
			assert.LessOrEqual(t, policy.CacheData, 30)
		})
	}

	oneYear := retention.PolicyFor(retention.Period1Year)
	assert.Equal(t, 365, oneYear.UserAnalytics)
	assert.Equal(t, 730, retention.PolicyFor(retention.Period7Years).UserAnalytics)
}

func TestService_DefaultSettings(t *testing.T) {
	f := newFixture(t)

	settings := f.svc.GetRetentionSettings()
	assert.False(t, settings.AutoDeleteOldData)
	assert.Equal(t, retention.Period2Years, settings.RetentionPeriod)
	assert.Nil(t, settings.NextScheduledPurge)
	assert.Equal(t, 2555, f.svc.GetRetentionPolicy().FinancialRecords)
}

func TestService_UpdateRetentionSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	on, off := true, false
	period := retention.Period1Year
	settings, err := f.svc.UpdateRetentionSettings(ctx, retention.SettingsUpdate{AutoDeleteOldData: &on, RetentionPeriod: &period})
	require.NoError(t, err)
	require.NotNil(t, settings.NextScheduledPurge)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), *settings.NextScheduledPurge)
	assert.Equal(t, 365, f.svc.GetRetentionPolicy().UsageData)

	settings, err = f.svc.UpdateRetentionSettings(ctx, retention.SettingsUpdate{AutoDeleteOldData: &off})
	require.NoError(t, err)
	assert.Nil(t, settings.NextScheduledPurge)
	assert.Equal(t, retention.Period1Year, settings.RetentionPeriod)

	bad := retention.Period("forever")
	_, err = f.svc.UpdateRetentionSettings(ctx, retention.SettingsUpdate{RetentionPeriod: &bad})
	assert.ErrorIs(t, err, retention.ErrInvalidPeriod)

	assert.Equal(t, []audit.Action{audit.ActionSettingsChanged, audit.ActionSettingsChanged}, f.actions())
}

func TestService_PerformManualPurgeRequiresAutoDelete(t *testing.T) {
	f := newFixture(t)

	report, err := f.svc.PerformManualPurge(context.Background())
	assert.Nil(t, report)
	require.ErrorIs(t, err, retention.ErrPolicyViolation)

	var violation *retention.PolicyViolationError
	assert.True(t, errors.As(err, &violation))
	assert.Empty(t, f.svc.GetPurgeHistory())

	events := f.audit.Events(context.Background(), "system")
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionRetentionPurge, events[0].Action)
	assert.False(t, events[0].Success)
}

func TestService_RegisterPurgerRejectsFinancialCategories(t *testing.T) {
	f := newFixture(t)
	noop := retention.PurgerFunc(func(context.Context, time.Time) (retention.PurgeResult, error) {
		return retention.PurgeResult{}, nil
	})

	for _, c := range retention.ProtectedCategories {
		assert.ErrorIs(t, f.svc.RegisterPurger(c, noop), retention.ErrProtectedCategory, c)
	}
	assert.ErrorIs(t, f.svc.RegisterPurger("Photos", noop), retention.ErrUnknownCategory)
	assert.NoError(t, f.svc.RegisterPurger(retention.CategoryCacheData, noop))
}

func TestService_ExecutePurge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enableAutoDelete(t)
	now := f.clock.Now()

	analytics, err := json.Marshal([]map[string]interface{}{
		{"event": "old", "timestamp": now.AddDate(0, 0, -800).Format(time.RFC3339)},
		{"event": "recent", "timestamp": now.AddDate(0, 0, -10).UnixMilli()},
		{"event": "untimed"},
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Set(ctx, "analytics_events", analytics))

	oldSession, _ := json.Marshal(map[string]interface{}{"timestamp": now.AddDate(0, 0, -100).Format(time.RFC3339)})
	newSession, _ := json.Marshal(map[string]interface{}{"timestamp": now.AddDate(0, 0, -10).Format(time.RFC3339)})
	require.NoError(t, f.store.Set(ctx, "session_a", oldSession))
	require.NoError(t, f.store.Set(ctx, "session_b", newSession))

	tempDir := t.TempDir()
	stale := filepath.Join(tempDir, "stale.tmp")
	require.NoError(t, os.WriteFile(stale, []byte("0123456789"), 0o600))
	old := now.AddDate(0, 0, -40)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "fresh.tmp"), []byte("x"), 0o600))

	require.NoError(t, f.svc.RegisterPurger(retention.CategoryUserAnalytics, &retention.ListPurger{Store: f.store, Key: "analytics_events"}))
	require.NoError(t, f.svc.RegisterPurger(retention.CategorySessionData, &retention.PrefixPurger{Store: f.store, Prefix: "session_"}))
	require.NoError(t, f.svc.RegisterPurger(retention.CategoryTempFiles, &retention.DirPurger{Dir: tempDir}))
	require.NoError(t, f.svc.RegisterPurger(retention.CategoryCacheData, retention.PurgerFunc(func(context.Context, time.Time) (retention.PurgeResult, error) {
		return retention.PurgeResult{}, errors.New("cache locked")
	})))
	require.NoError(t, f.svc.RegisterPurger(retention.CategoryUsageData, retention.PurgerFunc(func(context.Context, time.Time) (retention.PurgeResult, error) {
		panic("boom")
	})))

	report, err := f.svc.PerformManualPurge(ctx)
	require.NoError(t, err)

	assert.True(t, report.Manual)
	assert.Equal(t, 3, report.ItemsDeleted)
	assert.Equal(t, []string{
		string(retention.CategoryUserAnalytics),
		string(retention.CategorySessionData),
		string(retention.CategoryTempFiles),
	}, report.CategoriesProcessed)
	assert.Equal(t, []string{
		string(retention.CategoryUsageData),
		string(retention.CategoryCacheData),
	}, report.CategoriesFailed)
	assert.Len(t, report.Errors, 2)
	assert.Greater(t, report.SpaceFreed, int64(10))
	assert.NotEmpty(t, report.SpaceFreedHuman)
	assert.Equal(t, now.Add(7*24*time.Hour), report.NextScheduledPurge)

	for _, c := range report.CategoriesProcessed {
		assert.NotContains(t, []string{"Financial Records", "Transaction History", "Tax Related Data"}, c)
	}

	raw, err := f.store.Get(ctx, "analytics_events")
	require.NoError(t, err)
	var kept []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &kept))
	assert.Len(t, kept, 2)

	_, err = f.store.Get(ctx, "session_a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.Get(ctx, "session_b")
	assert.NoError(t, err)
	assert.NoFileExists(t, stale)

	settings := f.svc.GetRetentionSettings()
	require.NotNil(t, settings.LastPurgeDate)
	assert.Equal(t, now, *settings.LastPurgeDate)
	assert.Len(t, f.svc.GetPurgeHistory(), 1)
	assert.Contains(t, f.actions(), audit.ActionRetentionPurge)
}

func TestService_PurgeHistoryIsCapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 12; i++ {
		f.clock.Advance(time.Minute)
		_, err := f.svc.ExecutePurge(ctx, false)
		require.NoError(t, err)
	}

	history := f.svc.GetPurgeHistory()
	require.Len(t, history, 10)
	assert.Equal(t, f.clock.Now(), history[9].PurgeDate)
}

func TestService_CheckScheduledPurge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	report, err := f.svc.CheckScheduledPurge(ctx)
	require.NoError(t, err)
	assert.Nil(t, report, "auto-delete disabled")

	f.enableAutoDelete(t)
	report, err = f.svc.CheckScheduledPurge(ctx)
	require.NoError(t, err)
	assert.Nil(t, report, "not yet due")

	f.clock.Advance(8 * 24 * time.Hour)
	f.flags[featureflags.FlagDisableScheduledPurge] = true
	report, err = f.svc.CheckScheduledPurge(ctx)
	require.NoError(t, err)
	assert.Nil(t, report, "paused by flag")

	delete(f.flags, featureflags.FlagDisableScheduledPurge)
	report, err = f.svc.CheckScheduledPurge(ctx)
	require.NoError(t, err)
	require.NotNil(t, report, "overdue purge runs immediately")
	assert.False(t, report.Manual)

	next := f.svc.GetRetentionSettings().NextScheduledPurge
	require.NotNil(t, next)
	assert.Equal(t, f.clock.Now().Add(7*24*time.Hour), *next)
}

func TestService_InitializeRestoresState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enableAutoDelete(t)
	_, err := f.svc.PerformManualPurge(ctx)
	require.NoError(t, err)

	restored := f.newService()
	require.NoError(t, restored.Initialize(ctx))

	assert.True(t, restored.GetRetentionSettings().AutoDeleteOldData)
	assert.NotNil(t, restored.GetRetentionSettings().LastPurgeDate)
	assert.Len(t, restored.GetPurgeHistory(), 1)
}
