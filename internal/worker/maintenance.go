package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack/internal/retention"
	"github.com/fintrack/fintrack/internal/scheduler"
	"github.com/fintrack/fintrack/internal/securefile"
)

// ErrUnknownJobType is returned by Run for an unrecognized job type.
var ErrUnknownJobType = errors.New("unknown job type")

// RetentionChecker runs the scheduled retention purge when it is due.
type RetentionChecker interface {
	CheckScheduledPurge(ctx context.Context) (*retention.PurgeReport, error)
}

// FileCleaner removes expired encrypted files and download tokens.
type FileCleaner interface {
	CleanupExpiredFiles(ctx context.Context) (securefile.CleanupResult, error)
}

// ExportCleaner removes stray plaintext export artifacts.
type ExportCleaner interface {
	CleanupOldExports(ctx context.Context, maxAgeHours int) (int, error)
}

// AuditMaintainer drains the audit outbox and ages out local events.
type AuditMaintainer interface {
	FlushOutbox(ctx context.Context) (int, error)
	CleanupOldEvents(ctx context.Context, retentionDays int) int
}

// RetentionDays reports the local audit retention window.
type RetentionDays interface {
	AuditLocalRetentionDays(ctx context.Context) int
}

// MaintenanceJobConfig holds configuration for creating a MaintenanceJob.
// Nil services disable the corresponding job.
type MaintenanceJobConfig struct {
	Config    MaintenanceConfig
	Logger    zerolog.Logger
	Retention RetentionChecker
	Files     FileCleaner
	Exports   ExportCleaner
	Audit     AuditMaintainer
	Flags     RetentionDays
}

// MaintenanceJob runs the privacy maintenance tasks.
type MaintenanceJob struct {
	config    MaintenanceConfig
	logger    zerolog.Logger
	retention RetentionChecker
	files     FileCleaner
	exports   ExportCleaner
	audit     AuditMaintainer
	flags     RetentionDays

	metrics *MaintenanceMetrics
}

// MaintenanceMetrics tracks job run statistics.
type MaintenanceMetrics struct {
	mu sync.RWMutex

	TotalRuns  int64
	FailedRuns int64

	PurgesRun        int64
	ItemsPurged      int64
	FilesDeleted     int64
	TokensRevoked    int64
	ExportsRemoved   int64
	AuditFlushed     int64
	AuditEventsAged  int64
	LastRunAt        time.Time
	LastRunDuration  time.Duration
	LastErrorByJob   map[string]string
	LastSuccessByJob map[string]time.Time
}

// NewMaintenanceJob creates a new maintenance job processor.
func NewMaintenanceJob(cfg MaintenanceJobConfig) *MaintenanceJob {
	return &MaintenanceJob{
		config:    cfg.Config.withDefaults(),
		logger:    cfg.Logger.With().Str("component", "maintenance").Logger(),
		retention: cfg.Retention,
		files:     cfg.Files,
		exports:   cfg.Exports,
		audit:     cfg.Audit,
		flags:     cfg.Flags,
		metrics: &MaintenanceMetrics{
			LastErrorByJob:   make(map[string]string),
			LastSuccessByJob: make(map[string]time.Time),
		},
	}
}

// Jobs returns the scheduler jobs for every configured service.
func (j *MaintenanceJob) Jobs() []scheduler.Job {
	var jobs []scheduler.Job
	add := func(name string, interval time.Duration, runOnStart, enabled bool) {
		if !enabled {
			return
		}
		jobs = append(jobs, scheduler.Job{
			Name:       name,
			Interval:   interval,
			Timeout:    j.config.Timeout,
			RunOnStart: runOnStart,
			Run:        func(ctx context.Context) error { return j.Run(ctx, name) },
		})
	}

	add(JobRetentionCheck, j.config.RetentionInterval, true, j.retention != nil)
	add(JobSecureFileCleanup, j.config.SecureFileCleanupInterval, true, j.files != nil)
	add(JobExportCleanup, j.config.ExportCleanupInterval, false, j.exports != nil)
	add(JobAuditFlush, j.config.OutboxFlushInterval, false, j.audit != nil)
	add(JobAuditCleanup, j.config.AuditCleanupInterval, false, j.audit != nil)
	return jobs
}

// Run executes one job by type.
func (j *MaintenanceJob) Run(ctx context.Context, jobType string) error {
	start := time.Now()

	var err error
	switch jobType {
	case JobRetentionCheck:
		err = j.checkRetention(ctx)
	case JobSecureFileCleanup:
		err = j.cleanupFiles(ctx)
	case JobExportCleanup:
		err = j.cleanupExports(ctx)
	case JobAuditFlush:
		err = j.flushAudit(ctx)
	case JobAuditCleanup:
		err = j.cleanupAudit(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}

	j.record(jobType, time.Since(start), err)
	return err
}

func (j *MaintenanceJob) checkRetention(ctx context.Context) error {
	if j.retention == nil {
		return nil
	}
	report, err := j.retention.CheckScheduledPurge(ctx)
	if err != nil {
		return fmt.Errorf("scheduled purge: %w", err)
	}
	if report == nil {
		j.logger.Debug().Msg("scheduled purge not due")
		return nil
	}

	j.metrics.mu.Lock()
	j.metrics.PurgesRun++
	j.metrics.ItemsPurged += int64(report.ItemsDeleted)
	j.metrics.mu.Unlock()

	j.logger.Info().
		Int("items_deleted", report.ItemsDeleted).
		Strs("categories", report.CategoriesProcessed).
		Strs("failed_categories", report.CategoriesFailed).
		Int("errors", len(report.Errors)).
		Msg("scheduled purge completed")
	return nil
}

func (j *MaintenanceJob) cleanupFiles(ctx context.Context) error {
	if j.files == nil {
		return nil
	}
	res, err := j.files.CleanupExpiredFiles(ctx)

	j.metrics.mu.Lock()
	j.metrics.FilesDeleted += int64(res.FilesDeleted)
	j.metrics.TokensRevoked += int64(res.TokensRevoked)
	j.metrics.mu.Unlock()

	if err != nil {
		return fmt.Errorf("secure file cleanup: %w", err)
	}
	return nil
}

func (j *MaintenanceJob) cleanupExports(ctx context.Context) error {
	if j.exports == nil {
		return nil
	}
	n, err := j.exports.CleanupOldExports(ctx, j.config.ExportMaxAgeHours)

	j.metrics.mu.Lock()
	j.metrics.ExportsRemoved += int64(n)
	j.metrics.mu.Unlock()

	if err != nil {
		return fmt.Errorf("export cleanup: %w", err)
	}
	return nil
}

func (j *MaintenanceJob) flushAudit(ctx context.Context) error {
	if j.audit == nil {
		return nil
	}
	n, err := j.audit.FlushOutbox(ctx)

	j.metrics.mu.Lock()
	j.metrics.AuditFlushed += int64(n)
	j.metrics.mu.Unlock()

	if err != nil {
		return fmt.Errorf("audit flush: %w", err)
	}
	return nil
}

func (j *MaintenanceJob) cleanupAudit(ctx context.Context) error {
	if j.audit == nil {
		return nil
	}
	days := 365
	if j.flags != nil {
		days = j.flags.AuditLocalRetentionDays(ctx)
	}
	n := j.audit.CleanupOldEvents(ctx, days)

	j.metrics.mu.Lock()
	j.metrics.AuditEventsAged += int64(n)
	j.metrics.mu.Unlock()
	return nil
}

func (j *MaintenanceJob) record(jobType string, d time.Duration, err error) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.LastRunAt = time.Now()
	j.metrics.LastRunDuration = d
	if err != nil {
		j.metrics.FailedRuns++
		j.metrics.LastErrorByJob[jobType] = err.Error()
		return
	}
	delete(j.metrics.LastErrorByJob, jobType)
	j.metrics.LastSuccessByJob[jobType] = j.metrics.LastRunAt
}

// GetMetrics returns a copy of the current metrics.
func (j *MaintenanceJob) GetMetrics() MaintenanceMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	errs := make(map[string]string, len(j.metrics.LastErrorByJob))
	for k, v := range j.metrics.LastErrorByJob {
		errs[k] = v
	}
	successes := make(map[string]time.Time, len(j.metrics.LastSuccessByJob))
	for k, v := range j.metrics.LastSuccessByJob {
		successes[k] = v
	}

	return MaintenanceMetrics{
		TotalRuns:        j.metrics.TotalRuns,
		FailedRuns:       j.metrics.FailedRuns,
		PurgesRun:        j.metrics.PurgesRun,
		ItemsPurged:      j.metrics.ItemsPurged,
		FilesDeleted:     j.metrics.FilesDeleted,
		TokensRevoked:    j.metrics.TokensRevoked,
		ExportsRemoved:   j.metrics.ExportsRemoved,
		AuditFlushed:     j.metrics.AuditFlushed,
		AuditEventsAged:  j.metrics.AuditEventsAged,
		LastRunAt:        j.metrics.LastRunAt,
		LastRunDuration:  j.metrics.LastRunDuration,
		LastErrorByJob:   errs,
		LastSuccessByJob: successes,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *MaintenanceJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":          m.TotalRuns,
		"failed_runs":         m.FailedRuns,
		"purges_run":          m.PurgesRun,
		"items_purged":        m.ItemsPurged,
		"files_deleted":       m.FilesDeleted,
		"tokens_revoked":      m.TokensRevoked,
		"exports_removed":     m.ExportsRemoved,
		"audit_flushed":       m.AuditFlushed,
		"audit_events_aged":   m.AuditEventsAged,
		"last_run_at":         m.LastRunAt,
		"last_run_duration":   m.LastRunDuration.String(),
		"last_error_by_job":   m.LastErrorByJob,
		"last_success_by_job": m.LastSuccessByJob,
	}
}
