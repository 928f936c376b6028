package handler

import (
	"errors"
	"net/http"

	"github.com/fintrack/fintrack/internal/api/models"
	"github.com/fintrack/fintrack/internal/api/response"
	"github.com/fintrack/fintrack/internal/export"
	"github.com/fintrack/fintrack/internal/retention"
	"github.com/fintrack/fintrack/internal/securefile"
	"github.com/fintrack/fintrack/internal/user"
)

// serviceErrors maps service sentinels onto problems. An empty detail
// passes the error message through; the rest hide it.
var serviceErrors = []struct {
	err    error
	kind   models.Kind
	detail string
}{
	{export.ErrUnauthenticated, models.KindUnauthorized, "authentication required"},
	{export.ErrInvalidOptions, models.KindValidation, ""},
	{retention.ErrInvalidPeriod, models.KindValidation, ""},
	{export.ErrFormatDisabled, models.KindForbidden, ""},
	{retention.ErrPolicyViolation, models.KindPolicyViolation, ""},
	{retention.ErrProtectedCategory, models.KindPolicyViolation, ""},
	{securefile.ErrTokenExpired, models.KindGone, "download token has expired"},
	{securefile.ErrTokenInvalid, models.KindNotFound, "download token is invalid or has already been used"},
	{securefile.ErrKeyNotFound, models.KindNotFound, "download token is invalid or has already been used"},
	{securefile.ErrIntegrityViolation, models.KindIntegrity, "file failed integrity verification"},
	{user.ErrUserNotFound, models.KindNotFound, "user not found"},
}

// writeServiceError answers err with the first matching problem. Unknown
// errors become a 500 without their message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range serviceErrors {
		if !errors.Is(err, m.err) {
			continue
		}
		detail := m.detail
		if detail == "" {
			detail = err.Error()
		}
		response.Problem(w, r, m.kind, detail)
		return
	}
	response.InternalError(w, r, "an unexpected error occurred")
}
