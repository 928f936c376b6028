package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// downloadSegment marks paths whose last segment is a download token.
const downloadSegment = "/download/"

// routePattern returns the matched chi route pattern, which never contains
// path parameters such as download tokens. Unrouted requests fall back to
// the raw path with any download token masked. Call it after the request
// has been served so the pattern is populated.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return MaskPath(r.URL.Path)
}

// MaskPath replaces a download token in path with a placeholder.
func MaskPath(path string) string {
	i := strings.Index(path, downloadSegment)
	if i < 0 {
		return path
	}
	return path[:i+len(downloadSegment)] + "{token}"
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func recordStatus(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer, so
// streamed export downloads can still flush.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
