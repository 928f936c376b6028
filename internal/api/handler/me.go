package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fintrack/fintrack/internal/api/models"
	"github.com/fintrack/fintrack/internal/api/response"
	"github.com/fintrack/fintrack/internal/user"
)

// MeHandler handles the caller's consent endpoints.
type MeHandler struct {
	users *user.Service
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(users *user.Service) *MeHandler {
	return &MeHandler{users: users}
}

// GetConsents handles GET /v1/me/consents - get consent states.
func (h *MeHandler) GetConsents(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		response.Problem(w, r, models.KindUnauthorized, "authentication required")
		return
	}

	// First contact provisions the user with default consents.
	if _, err := h.users.CreateUser(r.Context(), userID, ""); err != nil {
		writeServiceError(w, r, err)
		return
	}
	consents, err := h.users.GetConsents(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toConsents(consents))
}

// UpdateConsents handles PUT /v1/me/consents - update consent states.
// Every supplied field is recorded in the privacy audit log.
func (h *MeHandler) UpdateConsents(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		response.Problem(w, r, models.KindUnauthorized, "authentication required")
		return
	}

	var input models.ConsentsInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if _, err := h.users.CreateUser(r.Context(), userID, ""); err != nil {
		writeServiceError(w, r, err)
		return
	}
	consents, err := h.users.UpdateConsents(r.Context(), userID, user.ConsentsUpdate{
		Analytics:   input.Analytics,
		Marketing:   input.Marketing,
		DataSharing: input.DataSharing,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toConsents(consents))
}

func toConsents(c *user.Consents) models.Consents {
	return models.Consents{
		Analytics:   c.Analytics,
		Marketing:   c.Marketing,
		DataSharing: c.DataSharing,
		UpdatedAt:   models.Timestamp(c.UpdatedAt),
	}
}
