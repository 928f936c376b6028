package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/api/middleware"
)

// logLine serves req through wrap(Logger(h)) and returns the decoded log line.
func logLine(t *testing.T, wrap func(http.Handler) http.Handler, h http.Handler, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := middleware.Logger(zerolog.New(&buf))(h)
	if wrap != nil {
		handler = wrap(handler)
	}
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), buf.String())
	return entry
}

func TestLogger_RequestFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/privacy/retention", http.NoBody)
	req.Header.Set("User-Agent", "fintrack-ios/3.2")

	entry := logLine(t, nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"period":"1year"}`))
	}), req)

	assert.Equal(t, "request completed", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "GET", entry["method"])
	assert.Equal(t, "/v1/privacy/retention", entry["path"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, float64(18), entry["bytes"])
	assert.Equal(t, "fintrack-ios/3.2", entry["user_agent"])
	assert.Contains(t, entry, "duration")
	assert.NotContains(t, entry, "trace_id")
}

func TestLogger_LevelByStatus(t *testing.T) {
	tests := map[int]string{
		http.StatusOK:                  "info",
		http.StatusNotModified:         "info",
		http.StatusConflict:            "warn",
		http.StatusGone:                "warn",
		http.StatusInternalServerError: "error",
	}
	for code, level := range tests {
		t.Run(http.StatusText(code), func(t *testing.T) {
			entry := logLine(t, nil, statusHandler(code), httptest.NewRequest(http.MethodPost, "/v1/privacy/purge", http.NoBody))
			assert.Equal(t, level, entry["level"])
			assert.Equal(t, float64(code), entry["status"])
		})
	}
}

func TestLogger_MasksDownloadToken(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(middleware.Logger(zerolog.New(&buf)))
	r.Get("/v1/privacy/exports/download/{token}", statusHandler(http.StatusOK).ServeHTTP)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/privacy/exports/download/3f9a0011223344c1", http.NoBody))

	assert.NotContains(t, buf.String(), "3f9a0011223344c1")
	assert.Contains(t, buf.String(), `"path":"/v1/privacy/exports/download/{token}"`)
}

func TestLogger_CorrelationIDs(t *testing.T) {
	recordSpans(t)

	chain := func(h http.Handler) http.Handler {
		return middleware.RequestID(middleware.Tracing("fintrack-api")(h))
	}
	entry := logLine(t, chain, statusHandler(http.StatusOK), httptest.NewRequest(http.MethodGet, "/v1/privacy/audit", http.NoBody))

	requestID, _ := entry["request_id"].(string)
	assert.Contains(t, requestID, "req_")

	traceID, _ := entry["trace_id"].(string)
	spanID, _ := entry["span_id"].(string)
	assert.Len(t, traceID, 32)
	assert.Len(t, spanID, 16)
}
