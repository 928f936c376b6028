package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is a validation failure on one request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const (
	ProblemTypeValidation       = "https://api.fintrack.ca/problems/validation-error"
	ProblemTypeUnauthorized     = "https://api.fintrack.ca/problems/unauthorized"
	ProblemTypeForbidden        = "https://api.fintrack.ca/problems/forbidden"
	ProblemTypeNotFound         = "https://api.fintrack.ca/problems/not-found"
	ProblemTypeConflict         = "https://api.fintrack.ca/problems/conflict"
	ProblemTypeGone             = "https://api.fintrack.ca/problems/gone"
	ProblemTypeIntegrity        = "https://api.fintrack.ca/problems/integrity-violation"
	ProblemTypePolicyViolation  = "https://api.fintrack.ca/problems/policy-violation"
	ProblemTypeTLSRequired      = "https://api.fintrack.ca/problems/tls-required"
	ProblemTypeTooManyRequests  = "https://api.fintrack.ca/problems/too-many-requests"
	ProblemTypeUnsupportedMedia = "https://api.fintrack.ca/problems/unsupported-media-type"
	ProblemTypeInternal         = "https://api.fintrack.ca/problems/internal-error"
	ProblemTypeUnavailable      = "https://api.fintrack.ca/problems/service-unavailable"
)

// Kind fixes the type, title and status shared by every occurrence of a
// problem.
type Kind struct {
	Type   string
	Title  string
	Status int
}

var (
	KindValidation       = Kind{ProblemTypeValidation, "Validation error", http.StatusBadRequest}
	KindUnauthorized     = Kind{ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized}
	KindForbidden        = Kind{ProblemTypeForbidden, "Forbidden", http.StatusForbidden}
	KindTLSRequired      = Kind{ProblemTypeTLSRequired, "TLS required", http.StatusForbidden}
	KindNotFound         = Kind{ProblemTypeNotFound, "Not found", http.StatusNotFound}
	KindConflict         = Kind{ProblemTypeConflict, "Conflict", http.StatusConflict}
	KindPolicyViolation  = Kind{ProblemTypePolicyViolation, "Policy violation", http.StatusConflict}
	KindGone             = Kind{ProblemTypeGone, "Gone", http.StatusGone}
	KindUnsupportedMedia = Kind{ProblemTypeUnsupportedMedia, "Unsupported media type", http.StatusUnsupportedMediaType}
	KindIntegrity        = Kind{ProblemTypeIntegrity, "Integrity violation", http.StatusUnprocessableEntity}
	KindTooManyRequests  = Kind{ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests}
	KindInternal         = Kind{ProblemTypeInternal, "Internal server error", http.StatusInternalServerError}
	KindUnavailable      = Kind{ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable}
)

// New returns an occurrence of k for the request identified by traceID.
func (k Kind) New(traceID, detail string) *Problem {
	return &Problem{
		Type:    k.Type,
		Title:   k.Title,
		Status:  k.Status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// Write sends p with its status. The trace ID doubles as X-Request-Id so
// clients can quote it in support requests.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	h.Set("Cache-Control", "no-store")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
