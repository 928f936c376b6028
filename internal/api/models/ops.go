package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status                 HealthStatus       `json:"status"`
	Time                   Timestamp          `json:"time"`
	Subsystems             []SubsystemStatus  `json:"subsystems"`
	Dependencies           []DependencyStatus `json:"dependencies"`
	AuditMirror            AuditMirrorStatus  `json:"auditMirror"`
	ActiveDegradationFlags []string           `json:"activeDegradationFlags,omitempty"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// DependencyStatus represents the status of a remote dependency behind a circuit breaker.
type DependencyStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	BreakerState  string       `json:"breakerState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// AuditMirrorStatus reports the remote audit mirror and its outbox.
type AuditMirrorStatus struct {
	State       string     `json:"state"`
	Pending     int        `json:"pending"`
	Dropped     int        `json:"dropped"`
	LastError   *string    `json:"lastError,omitempty"`
	LastSuccess *Timestamp `json:"lastSuccess,omitempty"`
}
