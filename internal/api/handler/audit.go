package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fintrack/fintrack/internal/api/models"
	"github.com/fintrack/fintrack/internal/api/response"
	"github.com/fintrack/fintrack/internal/audit"
)

// AuditHandler exposes the caller's privacy audit trail.
type AuditHandler struct {
	service *audit.Service
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(service *audit.Service) *AuditHandler {
	return &AuditHandler{service: service}
}

// GetSummary handles GET /v1/privacy/audit/summary.
func (h *AuditHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		response.Problem(w, r, models.KindUnauthorized, "authentication required")
		return
	}
	response.JSON(w, r, http.StatusOK, h.service.GetAuditSummary(r.Context(), userID))
}

// ExportLog handles GET /v1/privacy/audit/export - download the audit trail as JSON.
func (h *AuditHandler) ExportLog(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		response.Problem(w, r, models.KindUnauthorized, "authentication required")
		return
	}

	data, err := h.service.ExportAuditLog(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	name := fmt.Sprintf("privacy_audit_%s.json", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
