package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack/internal/featureflags"
	"github.com/fintrack/fintrack/internal/metrics"
)

// Defaults for the local log and outbox.
const (
	DefaultMaxEvents     = 1000
	DefaultOutboxSize    = 500
	DefaultMirrorTimeout = 2 * time.Second
	DefaultFlushBatch    = 100
)

// FlagChecker reports whether a feature flag is enabled.
type FlagChecker interface {
	IsEnabled(ctx context.Context, key string) bool
}

// ServiceConfig holds configuration for the audit service.
type ServiceConfig struct {
	Repository    Repository
	Sink          RemoteSink // nil disables mirroring
	Flags         FlagChecker
	Logger        zerolog.Logger
	MaxEvents     int
	OutboxSize    int
	MirrorTimeout time.Duration
	Now           func() time.Time
}

// Service is the privacy audit log.
type Service struct {
	repo          Repository
	sink          RemoteSink
	flags         FlagChecker
	logger        zerolog.Logger
	maxEvents     int
	outboxSize    int
	mirrorTimeout time.Duration
	now           func() time.Time

	mu     sync.RWMutex
	events []Event

	outboxMu    sync.Mutex
	outbox      []Event
	removed     int // events taken off the front of outbox, dropped or delivered
	dropped     int
	lastErr     string
	lastSuccess *time.Time

	flushMu   sync.Mutex
	kick      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewService creates a new audit service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Repository == nil {
		cfg.Repository = NewInMemoryRepository()
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultMaxEvents
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultOutboxSize
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = DefaultMirrorTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		repo:          cfg.Repository,
		sink:          cfg.Sink,
		flags:         cfg.Flags,
		logger:        cfg.Logger.With().Str("component", "audit").Logger(),
		maxEvents:     cfg.MaxEvents,
		outboxSize:    cfg.OutboxSize,
		mirrorTimeout: cfg.MirrorTimeout,
		now:           cfg.Now,
		kick:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Initialize loads the persisted local log and starts the mirror drainer.
func (s *Service) Initialize(ctx context.Context) error {
	events, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("initialize audit log: %w", err)
	}

	sortByTime(events)

	s.mu.Lock()
	s.events = trimOldest(events, s.maxEvents)
	s.mu.Unlock()

	if s.sink != nil {
		s.startOnce.Do(func() { go s.drain() })
	}
	return nil
}

// Shutdown stops the drainer and makes a final attempt to drain the outbox.
func (s *Service) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })
	started := true
	s.startOnce.Do(func() { started = false })
	if started {
		select {
		case <-s.done:
		case <-ctx.Done():
		}
	}

	if _, err := s.FlushOutbox(ctx); err != nil {
		s.logger.Warn().Err(err).Int("pending", s.MirrorStatus().Pending).Msg("audit outbox not drained at shutdown")
	}
}

// LogEvent records an event locally and mirrors it best-effort.
// It never fails: local persistence and mirror errors are logged and absorbed.
func (s *Service) LogEvent(ctx context.Context, userID string, action Action, resource string, metadata map[string]interface{}, success bool, errMsg string) Event {
	event := Event{
		ID:           ulid.Make().String(),
		UserID:       userID,
		Action:       action,
		Resource:     resource,
		Metadata:     metadata,
		Timestamp:    s.now().UTC(),
		Success:      success,
		ErrorMessage: errMsg,
		Compliance:   ComplianceFramework,
	}

	s.mu.Lock()
	s.events = trimOldest(append(s.events, event), s.maxEvents)
	snapshot := append([]Event(nil), s.events...)
	s.mu.Unlock()

	if err := s.repo.Save(ctx, snapshot); err != nil {
		s.logger.Error().Err(err).Str("action", string(action)).Msg("failed to persist audit log")
	}

	metrics.IncAuditEvent(string(action), success)
	s.logger.Debug().
		Str("event_id", event.ID).
		Str("user_id", userID).
		Str("action", string(action)).
		Bool("success", success).
		Msg("audit event recorded")

	s.mirror(ctx, event)
	return event
}

// LogDataExport records an export lifecycle event.
func (s *Service) LogDataExport(ctx context.Context, userID string, action Action, details ExportDetails, success bool, errMsg string) Event {
	meta := map[string]interface{}{
		"exportId": details.ExportID,
		"format":   details.Format,
	}
	if details.Options != nil {
		meta["options"] = details.Options
	}
	if details.FileSize != "" {
		meta["fileSize"] = details.FileSize
	}
	return s.LogEvent(ctx, userID, action, "data_export", meta, success, errMsg)
}

// LogConsentChange records a consent transition.
func (s *Service) LogConsentChange(ctx context.Context, userID, consentType string, before, after bool) Event {
	action := ActionConsentUpdated
	switch {
	case !before && after:
		action = ActionConsentGiven
	case before && !after:
		action = ActionConsentWithdrawn
	}

	meta := map[string]interface{}{
		"consentType":   consentType,
		"previousValue": before,
		"newValue":      after,
	}
	return s.LogEvent(ctx, userID, action, "consent", meta, true, "")
}

// LogFileOperation records a secure-file operation.
func (s *Service) LogFileOperation(ctx context.Context, userID string, op FileOperation, fileID string, success bool, errMsg string) Event {
	meta := map[string]interface{}{
		"operation": string(op),
		"fileId":    fileID,
	}
	return s.LogEvent(ctx, userID, op.action(), "secure_file", meta, success, errMsg)
}

// Events returns the local events for userID, oldest first.
func (s *Service) Events(_ context.Context, userID string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0)
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

// GetAuditSummary aggregates the local events for userID.
func (s *Service) GetAuditSummary(ctx context.Context, userID string) Summary {
	events := s.Events(ctx, userID)

	summary := Summary{
		TotalEvents:     len(events),
		ActionCounts:    make(map[Action]int),
		RiskEvents:      make([]Event, 0),
		ComplianceScore: 100,
	}

	var successes, consentsGiven int
	for i, e := range events {
		summary.ActionCounts[e.Action]++
		if e.Success {
			successes++
		}
		if e.Action == ActionConsentGiven {
			consentsGiven++
		}
		if !e.Success || riskActions[e.Action] {
			summary.RiskEvents = append(summary.RiskEvents, e)
		}
		if summary.LastActivity == nil || e.Timestamp.After(*summary.LastActivity) {
			ts := events[i].Timestamp
			summary.LastActivity = &ts
		}
	}

	if len(events) > 0 {
		score := int(math.Round(float64(successes) / float64(len(events)) * 100))
		score += min(consentsGiven*2, 10)
		summary.ComplianceScore = min(score, 100)
	}

	return summary
}

// ExportAuditLog serializes the user's full audit trail as JSON.
func (s *Service) ExportAuditLog(ctx context.Context, userID string) ([]byte, error) {
	events := s.Events(ctx, userID)

	doc := Log{
		User:                userID,
		ExportDate:          s.now().UTC(),
		TotalEvents:         len(events),
		ComplianceFramework: ComplianceFramework,
		Events:              events,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal audit log: %w", err)
	}

	s.LogEvent(ctx, userID, ActionDataAccess, "audit_log", map[string]interface{}{"events": len(events)}, true, "")
	return data, nil
}

// CleanupOldEvents removes local events older than retentionDays and returns how many were removed.
func (s *Service) CleanupOldEvents(ctx context.Context, retentionDays int) int {
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	s.mu.Lock()
	kept := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(s.events) - len(kept)
	s.events = kept
	snapshot := append([]Event(nil), kept...)
	s.mu.Unlock()

	if removed > 0 {
		if err := s.repo.Save(ctx, snapshot); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist audit log after cleanup")
		}
		s.logger.Info().Int("removed", removed).Int("retention_days", retentionDays).Msg("old audit events removed")
	}
	return removed
}

// mirror queues event for the drainer. The oldest pending event is dropped
// when the outbox is full.
func (s *Service) mirror(ctx context.Context, event Event) {
	if s.mirrorState(ctx) == MirrorDisabled {
		return
	}

	s.outboxMu.Lock()
	s.outbox = append(s.outbox, event)
	if over := len(s.outbox) - s.outboxSize; over > 0 {
		s.outbox = s.outbox[over:]
		s.dropped += over
		s.removed += over
	}
	pending := len(s.outbox)
	s.outboxMu.Unlock()
	metrics.SetAuditOutboxPending(pending)

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// drain delivers the outbox whenever mirror signals new events.
func (s *Service) drain() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.kick:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.mirrorTimeout)
		if _, err := s.FlushOutbox(ctx); err != nil {
			s.logger.Warn().Err(err).Int("pending", s.MirrorStatus().Pending).Msg("audit mirror degraded, events queued")
		}
		cancel()
	}
}

// FlushOutbox delivers pending events in batches. It returns the number delivered.
// Batches are sent outside the outbox lock.
func (s *Service) FlushOutbox(ctx context.Context) (int, error) {
	if s.mirrorState(ctx) == MirrorDisabled {
		return 0, nil
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	delivered := 0
	for {
		s.outboxMu.Lock()
		n := min(len(s.outbox), DefaultFlushBatch)
		batch := append([]Event(nil), s.outbox[:n]...)
		mark := s.removed
		s.outboxMu.Unlock()

		if n == 0 {
			return delivered, nil
		}

		err := s.sink.Send(ctx, batch)

		s.outboxMu.Lock()
		if err != nil {
			s.lastErr = err.Error()
			pending := len(s.outbox)
			s.outboxMu.Unlock()
			metrics.SetAuditOutboxPending(pending)
			metrics.IncAuditMirrorFailure()
			return delivered, fmt.Errorf("mirror audit events: %w", err)
		}

		// Overflow may have dropped part of the batch while it was in flight.
		if trim := n - (s.removed - mark); trim > 0 {
			s.outbox = s.outbox[trim:]
			s.removed += trim
		}
		delivered += n
		now := s.now().UTC()
		s.lastSuccess = &now
		s.lastErr = ""
		pending := len(s.outbox)
		s.outboxMu.Unlock()
		metrics.SetAuditOutboxPending(pending)
	}
}

// MirrorStatus reports the observable state of the remote mirror.
func (s *Service) MirrorStatus() MirrorStatus {
	state := s.mirrorState(context.Background())

	s.outboxMu.Lock()
	defer s.outboxMu.Unlock()

	if state != MirrorDisabled && (s.lastErr != "" || len(s.outbox) > 0) {
		state = MirrorDegraded
	}

	status := MirrorStatus{
		State:     state,
		Pending:   len(s.outbox),
		Dropped:   s.dropped,
		LastError: s.lastErr,
	}
	if s.lastSuccess != nil {
		ts := *s.lastSuccess
		status.LastSuccess = &ts
	}
	return status
}

func (s *Service) mirrorState(ctx context.Context) MirrorState {
	if s.sink == nil {
		return MirrorDisabled
	}
	if s.flags != nil && s.flags.IsEnabled(ctx, featureflags.FlagDisableAuditMirror) {
		return MirrorDisabled
	}
	return MirrorHealthy
}

func trimOldest(events []Event, limit int) []Event {
	if len(events) <= limit {
		return events
	}
	trimmed := make([]Event, limit)
	copy(trimmed, events[len(events)-limit:])
	return trimmed
}

// sortByTime orders events oldest first.
func sortByTime(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}
