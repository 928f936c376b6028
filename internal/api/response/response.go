// Package response writes API responses. Every response carries the
// request ID, and problem instances never contain a download token.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/fintrack/fintrack/internal/api/middleware"
	"github.com/fintrack/fintrack/internal/api/models"
)

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if id := middleware.GetRequestID(r.Context()); id != "" {
		w.Header().Set(middleware.RequestIDHeader, id)
	}
}

// JSON writes data with status. A nil data writes headers only.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Problem writes an occurrence of kind for r.
func Problem(w http.ResponseWriter, r *http.Request, kind models.Kind, detail string) {
	Write(w, r, kind.New(middleware.GetRequestID(r.Context()), detail))
}

// Write sends p with the masked request path as its instance.
func Write(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	p.Instance = middleware.MaskPath(r.URL.Path)
	p.Write(w)
}

// BadRequest writes a validation problem with optional per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, fields []models.FieldError) {
	p := models.KindValidation.New(middleware.GetRequestID(r.Context()), detail)
	p.Errors = fields
	Write(w, r, p)
}

func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindInternal, detail)
}
