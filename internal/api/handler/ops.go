// Package handler provides HTTP handlers for the FinTrack privacy API.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/fintrack/fintrack/internal/api/models"
	"github.com/fintrack/fintrack/internal/api/response"
	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/featureflags"
	"github.com/fintrack/fintrack/internal/resilience"
)

// ReadinessCheck probes one subsystem. A nil error means ready.
type ReadinessCheck func(ctx context.Context) error

// MirrorReporter reports the state of the remote audit mirror.
type MirrorReporter interface {
	MirrorStatus() audit.MirrorStatus
}

// degradationFlags are the boolean flags that switch off part of the service.
var degradationFlags = []string{
	featureflags.FlagDisablePDFExport,
	featureflags.FlagDisableAuditMirror,
	featureflags.FlagDisableScheduledPurge,
}

// OpsConfig holds the dependencies of the ops endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string
	Audit     MirrorReporter
	Registry  *resilience.Registry
	Flags     *featureflags.Service
	Checks    map[string]ReadinessCheck
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	audit     MirrorReporter
	registry  *resilience.Registry
	flags     *featureflags.Service
	checks    map[string]ReadinessCheck
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		audit:     cfg.Audit,
		registry:  cfg.Registry,
		flags:     cfg.Flags,
		checks:    cfg.Checks,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// Any failing subsystem check answers 503.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.subsystems(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	failed := make(map[string]interface{})
	for _, s := range subsystems {
		if s.Status == models.HealthStatusFail {
			failed[s.Name] = *s.Detail
		}
	}
	if len(failed) > 0 {
		health.Status = models.HealthStatusFail
		health.Details = failed
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem, dependency and audit mirror status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := models.SystemStatus{
		Status:       models.HealthStatusOK,
		Time:         models.Timestamp(time.Now()),
		Subsystems:   h.subsystems(ctx),
		Dependencies: h.dependencies(),
		AuditMirror:  h.auditMirror(),
	}

	if h.flags != nil {
		for _, key := range degradationFlags {
			if h.flags.IsEnabled(ctx, key) {
				status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, key)
			}
		}
	}

	for _, s := range status.Subsystems {
		status.Status = worst(status.Status, s.Status)
	}
	for _, d := range status.Dependencies {
		status.Status = worst(status.Status, d.Status)
	}
	if status.AuditMirror.State == string(audit.MirrorDegraded) {
		status.Status = worst(status.Status, models.HealthStatusDegraded)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystems(ctx context.Context) []models.SubsystemStatus {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.SubsystemStatus, 0, len(names))
	for _, name := range names {
		s := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := h.checks[name](checkCtx); err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		cancel()
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) dependencies() []models.DependencyStatus {
	out := make([]models.DependencyStatus, 0)
	if h.registry == nil {
		return out
	}
	for _, dep := range h.registry.All() {
		d := models.DependencyStatus{
			Name:          dep.Name,
			Status:        models.HealthStatusOK,
			BreakerState:  dep.State,
			LastSuccessAt: models.TimestampPtr(dep.LastSuccessAt),
			LastFailureAt: models.TimestampPtr(dep.LastFailureAt),
		}
		if !dep.Healthy() {
			d.Status = models.HealthStatusDegraded
		}
		if dep.LastError != "" {
			msg := dep.LastError
			d.Message = &msg
		}
		out = append(out, d)
	}
	return out
}

func (h *OpsHandler) auditMirror() models.AuditMirrorStatus {
	if h.audit == nil {
		return models.AuditMirrorStatus{State: string(audit.MirrorDisabled)}
	}
	ms := h.audit.MirrorStatus()
	out := models.AuditMirrorStatus{
		State:       string(ms.State),
		Pending:     ms.Pending,
		Dropped:     ms.Dropped,
		LastSuccess: models.TimestampPtr(ms.LastSuccess),
	}
	if ms.LastError != "" {
		msg := ms.LastError
		out.LastError = &msg
	}
	return out
}

var severity = map[models.HealthStatus]int{
	models.HealthStatusOK:       0,
	models.HealthStatusDegraded: 1,
	models.HealthStatusFail:     2,
}

func worst(a, b models.HealthStatus) models.HealthStatus {
	if severity[b] > severity[a] {
		return b
	}
	return a
}
