// Package audit records privacy-relevant actions in a bounded local log and
// mirrors them to a remote store when it is reachable.
package audit

import "time"

// Action identifies a privacy-relevant action.
type Action string

// Export actions.
const (
	ActionExportRequest    Action = "EXPORT_REQUEST"
	ActionExportGenerated  Action = "EXPORT_GENERATED"
	ActionExportDownloaded Action = "EXPORT_DOWNLOADED"
	ActionExportFailed     Action = "EXPORT_FAILED"
)

// Consent actions.
const (
	ActionConsentGiven     Action = "CONSENT_GIVEN"
	ActionConsentWithdrawn Action = "CONSENT_WITHDRAWN"
	ActionConsentUpdated   Action = "CONSENT_UPDATED"
)

// Data access actions.
const (
	ActionDataAccess       Action = "DATA_ACCESS"
	ActionDataModification Action = "DATA_MODIFICATION"
	ActionDataDeletion     Action = "DATA_DELETION"
)

// File security actions.
const (
	ActionFileEncrypted  Action = "FILE_ENCRYPTED"
	ActionFileDecrypted  Action = "FILE_DECRYPTED"
	ActionFileDeleted    Action = "FILE_DELETED"
	ActionTokenGenerated Action = "TOKEN_GENERATED"
	ActionTokenRevoked   Action = "TOKEN_REVOKED"
)

// System actions.
const (
	ActionRetentionPurge  Action = "RETENTION_PURGE"
	ActionSettingsChanged Action = "SETTINGS_CHANGED"
)

// ComplianceFramework is the regulatory framework every event is annotated with.
const ComplianceFramework = "PIPEDA"

// riskActions are always reported as risk events in a summary.
var riskActions = map[Action]bool{
	ActionExportFailed:     true,
	ActionDataDeletion:     true,
	ActionConsentWithdrawn: true,
}

// FileOperation is the kind of secure-file operation being logged.
type FileOperation string

// File operations.
const (
	FileOpEncrypt        FileOperation = "encrypt"
	FileOpDecrypt        FileOperation = "decrypt"
	FileOpDelete         FileOperation = "delete"
	FileOpTokenGenerated FileOperation = "token_generated"
	FileOpTokenRevoked   FileOperation = "token_revoked"
)

func (op FileOperation) action() Action {
	switch op {
	case FileOpEncrypt:
		return ActionFileEncrypted
	case FileOpDecrypt:
		return ActionFileDecrypted
	case FileOpTokenGenerated:
		return ActionTokenGenerated
	case FileOpTokenRevoked:
		return ActionTokenRevoked
	default:
		return ActionFileDeleted
	}
}

// Event is a single privacy audit record.
type Event struct {
	ID           string                 `json:"id" msgpack:"id"`
	UserID       string                 `json:"userId" msgpack:"user_id"`
	Action       Action                 `json:"action" msgpack:"action"`
	Resource     string                 `json:"resource" msgpack:"resource"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp" msgpack:"timestamp"`
	Success      bool                   `json:"success" msgpack:"success"`
	ErrorMessage string                 `json:"errorMessage,omitempty" msgpack:"error_message,omitempty"`
	Compliance   string                 `json:"compliance" msgpack:"compliance"`
}

// ExportDetails carries the export-specific fields of an export audit event.
type ExportDetails struct {
	ExportID string
	Format   string
	Options  interface{}
	FileSize string
}

// Summary aggregates a user's audit trail.
type Summary struct {
	TotalEvents     int            `json:"totalEvents"`
	ActionCounts    map[Action]int `json:"actionCounts"`
	RiskEvents      []Event        `json:"riskEvents"`
	ComplianceScore int            `json:"complianceScore"`
	LastActivity    *time.Time     `json:"lastActivity,omitempty"`
}

// Log is the document produced for a data-subject audit log request.
type Log struct {
	User                string    `json:"user"`
	ExportDate          time.Time `json:"exportDate"`
	TotalEvents         int       `json:"totalEvents"`
	ComplianceFramework string    `json:"complianceFramework"`
	Events              []Event   `json:"events"`
}

// MirrorState describes the health of the remote mirror.
type MirrorState string

// Mirror states.
const (
	MirrorHealthy  MirrorState = "healthy"
	MirrorDegraded MirrorState = "degraded"
	MirrorDisabled MirrorState = "disabled"
)

// MirrorStatus is an observable snapshot of the remote mirror.
type MirrorStatus struct {
	State       MirrorState `json:"state"`
	Pending     int         `json:"pending"`
	Dropped     int         `json:"dropped"`
	LastError   string      `json:"lastError,omitempty"`
	LastSuccess *time.Time  `json:"lastSuccess,omitempty"`
}
