package handler

import (
	"net/http"

	"github.com/fintrack/fintrack/internal/auth"
)

// requestUser returns the user the auth middleware authenticated.
func requestUser(r *http.Request) string {
	return auth.UserIDFromContext(r.Context())
}
