package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fintrack/fintrack/internal/api/models"
	"github.com/fintrack/fintrack/internal/api/response"
	"github.com/fintrack/fintrack/internal/retention"
)

// RetentionHandler handles data retention endpoints.
type RetentionHandler struct {
	service *retention.Service
}

// NewRetentionHandler creates a new RetentionHandler.
func NewRetentionHandler(service *retention.Service) *RetentionHandler {
	return &RetentionHandler{service: service}
}

// GetSettings handles GET /v1/privacy/retention/settings.
func (h *RetentionHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, toRetentionSettings(h.service.GetRetentionSettings()))
}

// UpdateSettings handles PUT /v1/privacy/retention/settings.
func (h *RetentionHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var input models.RetentionSettingsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	update := retention.SettingsUpdate{AutoDeleteOldData: input.AutoDeleteOldData}
	if input.RetentionPeriod != nil {
		p := retention.Period(*input.RetentionPeriod)
		update.RetentionPeriod = &p
	}

	settings, err := h.service.UpdateRetentionSettings(r.Context(), update)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toRetentionSettings(settings))
}

// GetPolicy handles GET /v1/privacy/retention/policy.
func (h *RetentionHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.service.GetRetentionPolicy())
}

// Purge handles POST /v1/privacy/retention/purge - run a manual purge.
func (h *RetentionHandler) Purge(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.PerformManualPurge(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toPurgeReport(*report))
}

// GetHistory handles GET /v1/privacy/retention/history.
func (h *RetentionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history := h.service.GetPurgeHistory()
	out := models.PurgeHistory{Items: make([]models.PurgeReport, 0, len(history))}
	for _, report := range history {
		out.Items = append(out.Items, toPurgeReport(report))
	}
	response.JSON(w, r, http.StatusOK, out)
}

func toRetentionSettings(s retention.Settings) models.RetentionSettings {
	return models.RetentionSettings{
		AutoDeleteOldData:  s.AutoDeleteOldData,
		RetentionPeriod:    string(s.RetentionPeriod),
		LastPurgeDate:      models.TimestampPtr(s.LastPurgeDate),
		NextScheduledPurge: models.TimestampPtr(s.NextScheduledPurge),
	}
}

func toPurgeReport(p retention.PurgeReport) models.PurgeReport {
	errs := p.Errors
	if errs == nil {
		errs = []string{}
	}
	failed := p.CategoriesFailed
	if failed == nil {
		failed = []string{}
	}
	return models.PurgeReport{
		PurgeDate:           models.Timestamp(p.PurgeDate),
		ItemsDeleted:        p.ItemsDeleted,
		CategoriesProcessed: p.CategoriesProcessed,
		CategoriesFailed:    failed,
		SpaceFreed:          p.SpaceFreed,
		SpaceFreedHuman:     p.SpaceFreedHuman,
		Errors:              errs,
		NextScheduledPurge:  models.Timestamp(p.NextScheduledPurge),
		Manual:              p.Manual,
	}
}
