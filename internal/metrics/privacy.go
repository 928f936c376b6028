package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		exportsTotal,
		tokenRedemptions,
		purgeItemsDeleted,
		purgeRuns,
		auditEvents,
		auditMirrorFailures,
		auditOutboxPending,
		secureFilesDeleted,
	)
}

var (
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fintrack_exports_total",
			Help: "Export attempts by format and outcome.",
		},
		[]string{"format", "success"},
	)

	tokenRedemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fintrack_download_token_redemptions_total",
			Help: "Download token redemption attempts by result.",
		},
		[]string{"result"}, // ok, invalid, expired, integrity, key_missing, error
	)

	purgeItemsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fintrack_purge_items_deleted_total",
			Help: "Items removed by retention purges per category.",
		},
		[]string{"category"},
	)

	purgeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fintrack_purge_runs_total",
			Help: "Retention purge executions by trigger.",
		},
		[]string{"trigger"}, // manual, scheduled
	)

	auditEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fintrack_audit_events_total",
			Help: "Privacy audit events recorded by action.",
		},
		[]string{"action", "success"},
	)

	auditMirrorFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fintrack_audit_mirror_failures_total",
			Help: "Failed attempts to mirror audit events to the remote store.",
		},
	)

	auditOutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fintrack_audit_outbox_pending",
			Help: "Audit events waiting to be mirrored.",
		},
	)

	secureFilesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fintrack_secure_files_deleted_total",
			Help: "Expired encrypted export files removed by cleanup.",
		},
	)
)

// IncExport records an export attempt.
func IncExport(format string, success bool) {
	exportsTotal.WithLabelValues(norm(format), strconv.FormatBool(success)).Inc()
}

// IncTokenRedemption records a download token redemption attempt.
func IncTokenRedemption(result string) {
	tokenRedemptions.WithLabelValues(norm(result)).Inc()
}

// AddPurgedItems records items deleted from a retention category.
func AddPurgedItems(category string, n int) {
	if n <= 0 {
		return
	}
	purgeItemsDeleted.WithLabelValues(norm(category)).Add(float64(n))
}

// IncPurgeRun records a purge execution.
func IncPurgeRun(manual bool) {
	trigger := "scheduled"
	if manual {
		trigger = "manual"
	}
	purgeRuns.WithLabelValues(trigger).Inc()
}

// IncAuditEvent records a privacy audit event.
func IncAuditEvent(action string, success bool) {
	auditEvents.WithLabelValues(norm(action), strconv.FormatBool(success)).Inc()
}

// IncAuditMirrorFailure records a failed remote mirror attempt.
func IncAuditMirrorFailure() {
	auditMirrorFailures.Inc()
}

// SetAuditOutboxPending sets the number of events awaiting mirroring.
func SetAuditOutboxPending(n int) {
	auditOutboxPending.Set(float64(n))
}

// AddSecureFilesDeleted records encrypted files removed by cleanup.
func AddSecureFilesDeleted(n int) {
	if n <= 0 {
		return
	}
	secureFilesDeleted.Add(float64(n))
}
