package middleware

import (
	"mime"
	"net/http"

	"github.com/fintrack/fintrack/internal/api/models"
)

// ContentTypeJSON defaults the response Content-Type to application/json.
// Handlers that stream files set their own.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSONBody rejects POST and PUT requests whose declared body type is
// not JSON with a 415 problem. Requests without a Content-Type pass.
func RequireJSONBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			next.ServeHTTP(w, r)
			return
		}
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			next.ServeHTTP(w, r)
			return
		}
		if mediaType, _, err := mime.ParseMediaType(ct); err != nil || mediaType != "application/json" {
			problem := models.KindUnsupportedMedia.New(GetRequestID(r.Context()), "request body must be application/json")
			problem.Instance = MaskPath(r.URL.Path)
			problem.Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
