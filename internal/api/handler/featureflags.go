package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/fintrack/fintrack/internal/api/models"
	"github.com/fintrack/fintrack/internal/api/response"
	"github.com/fintrack/fintrack/internal/audit"
	"github.com/fintrack/fintrack/internal/featureflags"
)

// EventLogger records audit events.
type EventLogger interface {
	LogEvent(ctx context.Context, userID string, action audit.Action, resource string, metadata map[string]interface{}, success bool, errMsg string) audit.Event
}

// FeatureFlagsHandler handles feature flag endpoints.
type FeatureFlagsHandler struct {
	service *featureflags.Service
	audit   EventLogger
}

// NewFeatureFlagsHandler creates a new FeatureFlagsHandler.
func NewFeatureFlagsHandler(service *featureflags.Service, auditLog EventLogger) *FeatureFlagsHandler {
	return &FeatureFlagsHandler{service: service, audit: auditLog}
}

// ListFeatureFlags handles GET /v1/admin/feature-flags - list all feature flags.
func (h *FeatureFlagsHandler) ListFeatureFlags(w http.ResponseWriter, r *http.Request) {
	flags := h.service.GetAllFlags(r.Context())

	list := featureflags.FlagList{Items: make([]featureflags.Flag, 0, len(flags))}
	for _, f := range flags {
		list.Items = append(list.Items, *f)
	}
	sort.Slice(list.Items, func(i, j int) bool { return list.Items[i].Key < list.Items[j].Key })

	response.JSON(w, r, http.StatusOK, list)
}

// UpsertFeatureFlags handles PUT /v1/admin/feature-flags - update feature flags.
func (h *FeatureFlagsHandler) UpsertFeatureFlags(w http.ResponseWriter, r *http.Request) {
	var input featureflags.FlagUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if len(input.Updates) == 0 {
		response.BadRequest(w, r, "at least one update is required", []models.FieldError{
			{Field: "updates", Message: "must not be empty", Code: "required"},
		})
		return
	}

	flags := make([]*featureflags.Flag, 0, len(input.Updates))
	keys := make([]string, 0, len(input.Updates))
	for i, u := range input.Updates {
		if u.Key == "" {
			response.BadRequest(w, r, "flag key is required", []models.FieldError{
				{Field: "updates[" + strconv.Itoa(i) + "].key", Message: "must not be empty", Code: "required"},
			})
			return
		}
		flags = append(flags, &featureflags.Flag{Key: u.Key, Value: u.Value})
		keys = append(keys, u.Key)
	}

	err := h.service.SetFlags(r.Context(), flags)
	if h.audit != nil {
		meta := map[string]interface{}{"setting": "feature_flags", "keys": keys, "reason": input.Reason}
		if err != nil {
			h.audit.LogEvent(r.Context(), requestUser(r), audit.ActionSettingsChanged, "feature_flags", meta, false, err.Error())
		} else {
			h.audit.LogEvent(r.Context(), requestUser(r), audit.ActionSettingsChanged, "feature_flags", meta, true, "")
		}
	}
	switch {
	case errors.Is(err, featureflags.ErrInvalidFlag):
		response.BadRequest(w, r, err.Error(), nil)
		return
	case err != nil:
		response.InternalError(w, r, "failed to update feature flags")
		return
	}
	response.NoContent(w, r)
}

// InvalidateCache handles POST /v1/admin/feature-flags/invalidate - invalidate flag cache.
func (h *FeatureFlagsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateCache()
	response.NoContent(w, r)
}
