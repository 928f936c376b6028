// Package worker runs the privacy maintenance jobs: scheduled retention
// purges, secure-file cleanup, stray export cleanup and audit upkeep.
package worker

import (
	"time"
)

// Job types, shared by the scheduler job names and Pub/Sub messages.
const (
	JobRetentionCheck    = "retention_check"
	JobSecureFileCleanup = "secure_file_cleanup"
	JobExportCleanup     = "export_cleanup"
	JobAuditFlush        = "audit_flush"
	JobAuditCleanup      = "audit_cleanup"
)

// MaintenanceConfig holds intervals and limits for the maintenance jobs.
type MaintenanceConfig struct {
	// RetentionInterval is how often the scheduled purge is checked.
	// Default: 1 hour
	RetentionInterval time.Duration

	// SecureFileCleanupInterval is how often expired encrypted files and
	// tokens are removed.
	// Default: 1 hour
	SecureFileCleanupInterval time.Duration

	// ExportCleanupInterval is how often stray plaintext exports are removed.
	// Default: 6 hours
	ExportCleanupInterval time.Duration

	// ExportMaxAgeHours is the age after which a stray export is removed.
	// Default: 24
	ExportMaxAgeHours int

	// OutboxFlushInterval is how often queued audit events are re-sent.
	// Default: 1 minute
	OutboxFlushInterval time.Duration

	// AuditCleanupInterval is how often old local audit events are removed.
	// Default: 24 hours
	AuditCleanupInterval time.Duration

	// Timeout bounds each job run.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultMaintenanceConfig returns the default maintenance configuration.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		RetentionInterval:         time.Hour,
		SecureFileCleanupInterval: time.Hour,
		ExportCleanupInterval:     6 * time.Hour,
		ExportMaxAgeHours:         24,
		OutboxFlushInterval:       time.Minute,
		AuditCleanupInterval:      24 * time.Hour,
		Timeout:                   30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultMaintenanceConfig.
func (c MaintenanceConfig) withDefaults() MaintenanceConfig {
	d := DefaultMaintenanceConfig()
	if c.RetentionInterval <= 0 {
		c.RetentionInterval = d.RetentionInterval
	}
	if c.SecureFileCleanupInterval <= 0 {
		c.SecureFileCleanupInterval = d.SecureFileCleanupInterval
	}
	if c.ExportCleanupInterval <= 0 {
		c.ExportCleanupInterval = d.ExportCleanupInterval
	}
	if c.ExportMaxAgeHours <= 0 {
		c.ExportMaxAgeHours = d.ExportMaxAgeHours
	}
	if c.OutboxFlushInterval <= 0 {
		c.OutboxFlushInterval = d.OutboxFlushInterval
	}
	if c.AuditCleanupInterval <= 0 {
		c.AuditCleanupInterval = d.AuditCleanupInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
