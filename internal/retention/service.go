package retention

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/auth"
	"github.com/fintrack/fintrack/internal/featureflags"
	"github.com/fintrack/fintrack/internal/metrics"
	"github.com/fintrack/fintrack/internal/storage"
	"github.com/fintrack/fintrack/internal/telemetry"
)

// Storage keys.
const (
	SettingsKey = "data_retention_settings"
	HistoryKey  = "purge_history"
)

// Defaults.
const (
	PurgeInterval = 7 * 24 * time.Hour
	MaxHistory    = 10
	systemActor   = "system"
	auditResource = "data_retention"
)

// Auditor records retention events.
type Auditor interface {
	LogEvent(ctx context.Context, userID string, action audit.Action, resource string, metadata map[string]interface{}, success bool, errMsg string) audit.Event
}

// FlagChecker reports whether a feature flag is enabled.
type FlagChecker interface {
	IsEnabled(ctx context.Context, key string) bool
}

// ServiceConfig holds configuration for the retention service.
type ServiceConfig struct {
	Store  storage.Store
	Audit  Auditor
	Flags  FlagChecker
	Logger zerolog.Logger
	Now    func() time.Time
}

// Service owns retention settings, purgers and purge history.
type Service struct {
	store  storage.Store
	audit  Auditor
	flags  FlagChecker
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	settings Settings
	history  []PurgeReport
	purgers  map[Category]Purger

	// purgeMu serializes purge passes.
	purgeMu sync.Mutex
}

// NewService creates a new retention service with default settings.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Store == nil {
		cfg.Store = storage.NewInMemoryStore()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:    cfg.Store,
		audit:    cfg.Audit,
		flags:    cfg.Flags,
		logger:   cfg.Logger.With().Str("component", "retention").Logger(),
		now:      cfg.Now,
		settings: DefaultSettings(),
		purgers:  make(map[Category]Purger),
	}
}

// Initialize loads persisted settings and purge history.
func (s *Service) Initialize(ctx context.Context) error {
	settings := DefaultSettings()
	if err := s.load(ctx, SettingsKey, &settings); err != nil {
		return fmt.Errorf("load retention settings: %w", err)
	}
	if settings.RetentionPeriod.Days() == 0 {
		settings.RetentionPeriod = DefaultPeriod
	}

	var history []PurgeReport
	if err := s.load(ctx, HistoryKey, &history); err != nil {
		return fmt.Errorf("load purge history: %w", err)
	}

	s.mu.Lock()
	s.settings = settings
	s.history = trimHistory(history)
	s.mu.Unlock()
	return nil
}

// RegisterPurger sets the purger for an eligible category. Protected
// financial categories are rejected with ErrProtectedCategory.
func (s *Service) RegisterPurger(c Category, p Purger) error {
	if c.Protected() {
		return fmt.Errorf("%w: %s", ErrProtectedCategory, c)
	}
	if !c.Eligible() {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, c)
	}

	s.mu.Lock()
	s.purgers[c] = p
	s.mu.Unlock()
	return nil
}

// GetRetentionSettings returns the current settings.
func (s *Service) GetRetentionSettings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySettings(s.settings)
}

// UpdateRetentionSettings applies a partial update. Enabling auto-delete
// schedules the next purge a week out; disabling it clears the schedule.
func (s *Service) UpdateRetentionSettings(ctx context.Context, update SettingsUpdate) (Settings, error) {
	if update.RetentionPeriod != nil && update.RetentionPeriod.Days() == 0 {
		return Settings{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, *update.RetentionPeriod)
	}

	s.mu.Lock()
	before := copySettings(s.settings)
	next := copySettings(s.settings)
	if update.AutoDeleteOldData != nil {
		next.AutoDeleteOldData = *update.AutoDeleteOldData
	}
	if update.RetentionPeriod != nil {
		next.RetentionPeriod = *update.RetentionPeriod
	}
	if next.AutoDeleteOldData {
		at := s.now().Add(PurgeInterval)
		next.NextScheduledPurge = &at
	} else {
		next.NextScheduledPurge = nil
	}

	if err := s.save(ctx, SettingsKey, next); err != nil {
		s.mu.Unlock()
		s.logAudit(ctx, audit.ActionSettingsChanged, map[string]interface{}{"setting": "data_retention"}, err)
		return Settings{}, fmt.Errorf("save retention settings: %w", err)
	}
	s.settings = next
	s.mu.Unlock()

	s.logAudit(ctx, audit.ActionSettingsChanged, map[string]interface{}{
		"setting":                   "data_retention",
		"previousAutoDeleteOldData": before.AutoDeleteOldData,
		"autoDeleteOldData":         next.AutoDeleteOldData,
		"previousRetentionPeriod":   string(before.RetentionPeriod),
		"retentionPeriod":           string(next.RetentionPeriod),
	}, nil)
	s.logger.Info().
		Bool("auto_delete", next.AutoDeleteOldData).
		Str("period", string(next.RetentionPeriod)).
		Msg("retention settings updated")
	return copySettings(next), nil
}

// GetRetentionPolicy returns the windows implied by the current settings.
func (s *Service) GetRetentionPolicy() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return PolicyFor(s.settings.RetentionPeriod)
}

// GetPurgeHistory returns up to the last MaxHistory reports, oldest first.
func (s *Service) GetPurgeHistory() []PurgeReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PurgeReport(nil), s.history...)
}

// PerformManualPurge runs a purge on request. It is refused with a
// *PolicyViolationError unless the user enabled auto-delete.
func (s *Service) PerformManualPurge(ctx context.Context) (*PurgeReport, error) {
	if !s.GetRetentionSettings().AutoDeleteOldData {
		err := &PolicyViolationError{Reason: "manual purge requires auto-delete of old data to be enabled"}
		s.logAudit(ctx, audit.ActionRetentionPurge, map[string]interface{}{"manual": true}, err)
		return nil, err
	}
	return s.ExecutePurge(ctx, true)
}

// CheckScheduledPurge runs a purge when auto-delete is on and the scheduled
// time has passed. Overdue or missing schedules purge immediately.
// It returns a nil report when nothing was due.
func (s *Service) CheckScheduledPurge(ctx context.Context) (*PurgeReport, error) {
	settings := s.GetRetentionSettings()
	if !settings.AutoDeleteOldData {
		return nil, nil
	}
	if s.flags != nil && s.flags.IsEnabled(ctx, featureflags.FlagDisableScheduledPurge) {
		s.logger.Debug().Msg("scheduled purge disabled by flag")
		return nil, nil
	}
	if settings.NextScheduledPurge != nil && s.now().Before(*settings.NextScheduledPurge) {
		return nil, nil
	}
	return s.ExecutePurge(ctx, false)
}

// ExecutePurge runs every registered eligible purger with its policy cutoff.
// A failing category is recorded in the report and does not stop the others.
func (s *Service) ExecutePurge(ctx context.Context, manual bool) (*PurgeReport, error) {
	s.purgeMu.Lock()
	defer s.purgeMu.Unlock()

	ctx, end := telemetry.StartSpan(ctx, "retention.purge", attribute.Bool("retention.manual", manual))
	defer end(nil)

	now := s.now()
	policy := s.GetRetentionPolicy()

	s.mu.RLock()
	purgers := make(map[Category]Purger, len(s.purgers))
	for c, p := range s.purgers {
		purgers[c] = p
	}
	s.mu.RUnlock()

	report := &PurgeReport{
		PurgeDate:           now,
		CategoriesProcessed: []string{},
		CategoriesFailed:    []string{},
		Errors:              []string{},
		NextScheduledPurge:  now.Add(PurgeInterval),
		Manual:              manual,
	}

	for _, c := range EligibleCategories {
		p, ok := purgers[c]
		if !ok {
			continue
		}
		cutoff := now.AddDate(0, 0, -policy.Window(c))

		res, err := runPurger(ctx, p, cutoff)
		report.ItemsDeleted += res.ItemsDeleted
		report.SpaceFreed += res.BytesFreed
		metrics.AddPurgedItems(string(c), res.ItemsDeleted)
		if err != nil {
			report.CategoriesFailed = append(report.CategoriesFailed, string(c))
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", c, err))
			s.logger.Warn().Err(err).Str("category", string(c)).Msg("purge category failed")
			continue
		}
		report.CategoriesProcessed = append(report.CategoriesProcessed, string(c))
	}
	report.SpaceFreedHuman = formatBytes(report.SpaceFreed)

	s.mu.Lock()
	s.history = trimHistory(append(s.history, *report))
	history := append([]PurgeReport(nil), s.history...)
	settings := copySettings(s.settings)
	last := report.PurgeDate
	settings.LastPurgeDate = &last
	if settings.AutoDeleteOldData {
		next := report.NextScheduledPurge
		settings.NextScheduledPurge = &next
	}
	s.settings = settings
	s.mu.Unlock()

	if err := s.save(ctx, HistoryKey, history); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("persist history: %v", err))
	}
	if err := s.save(ctx, SettingsKey, settings); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("persist settings: %v", err))
	}

	metrics.IncPurgeRun(manual)
	var purgeErr error
	if len(report.Errors) > 0 {
		purgeErr = fmt.Errorf("%d purge errors", len(report.Errors))
	}
	s.logAudit(ctx, audit.ActionRetentionPurge, map[string]interface{}{
		"manual":              manual,
		"itemsDeleted":        report.ItemsDeleted,
		"categoriesProcessed": report.CategoriesProcessed,
		"categoriesFailed":    report.CategoriesFailed,
		"spaceFreed":          report.SpaceFreed,
		"errors":              report.Errors,
	}, purgeErr)

	s.logger.Info().
		Bool("manual", manual).
		Int("items_deleted", report.ItemsDeleted).
		Int("errors", len(report.Errors)).
		Str("space_freed", report.SpaceFreedHuman).
		Msg("purge completed")
	return report, nil
}

// runPurger runs p, converting a panic into an error so one category
// cannot abort the pass.
func runPurger(ctx context.Context, p Purger, cutoff time.Time) (res PurgeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("purger panic: %v", r)
		}
	}()
	return p.Purge(ctx, cutoff)
}

func (s *Service) load(ctx context.Context, key string, v interface{}) error {
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func (s *Service) save(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, key, raw)
}

func (s *Service) logAudit(ctx context.Context, action audit.Action, meta map[string]interface{}, err error) {
	if s.audit == nil {
		return
	}
	actor := auth.UserIDFromContext(ctx)
	if actor == "" {
		actor = systemActor
	}
	if err != nil {
		s.audit.LogEvent(ctx, actor, action, auditResource, meta, false, err.Error())
		return
	}
	s.audit.LogEvent(ctx, actor, action, auditResource, meta, true, "")
}

func trimHistory(history []PurgeReport) []PurgeReport {
	if len(history) <= MaxHistory {
		return history
	}
	return append([]PurgeReport(nil), history[len(history)-MaxHistory:]...)
}

func copySettings(in Settings) Settings {
	out := in
	if in.LastPurgeDate != nil {
		t := *in.LastPurgeDate
		out.LastPurgeDate = &t
	}
	if in.NextScheduledPurge != nil {
		t := *in.NextScheduledPurge
		out.NextScheduledPurge = &t
	}
	return out
}
