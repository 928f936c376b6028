package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack/internal/api/models"
)

// Recovery turns a handler panic into a 500 problem. The panic value and
// stack are logged; neither reaches the client.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				path := MaskPath(r.URL.Path)
				log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", path).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				problem := models.KindInternal.New(requestID, "an unexpected error occurred")
				problem.Instance = path
				problem.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
