package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/api/middleware"
	"github.com/fintrack/fintrack/internal/api/models"
	"github.com/fintrack/fintrack/internal/auth"
)

type limitedClient struct {
	handler http.Handler
	path    string
}

func (c limitedClient) send(ip, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, c.path, http.NoBody)
	req.RemoteAddr = ip
	if userID != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func TestLimit_PerIP(t *testing.T) {
	limit := middleware.Limit{Requests: 2, Window: time.Minute}
	c := limitedClient{handler: limit.PerIP()(passThrough), path: "/v1/privacy/purge"}

	assert.Equal(t, http.StatusOK, c.send("172.16.0.1:1234", "").Code)
	assert.Equal(t, http.StatusOK, c.send("172.16.0.1:1234", "").Code)

	rec := c.send("172.16.0.1:1234", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, c.send("172.16.0.2:1234", "").Code, "other addresses keep their own budget")
}

func TestLimit_PerUser(t *testing.T) {
	limit := middleware.Limit{Requests: 2, Window: time.Minute}
	c := limitedClient{handler: limit.PerUser()(passThrough), path: "/v1/privacy/exports"}

	// One user is limited across addresses.
	assert.Equal(t, http.StatusOK, c.send("192.168.10.1:1234", "usr_a").Code)
	assert.Equal(t, http.StatusOK, c.send("192.168.10.2:1234", "usr_a").Code)
	assert.Equal(t, http.StatusTooManyRequests, c.send("192.168.10.3:1234", "usr_a").Code)

	assert.Equal(t, http.StatusOK, c.send("192.168.10.1:1234", "usr_b").Code)
}

func TestLimit_PerUserFallsBackToIP(t *testing.T) {
	limit := middleware.Limit{Requests: 1, Window: time.Minute}
	c := limitedClient{handler: limit.PerUser()(passThrough), path: "/v1/privacy/exports"}

	assert.Equal(t, http.StatusOK, c.send("198.51.100.7:1234", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, c.send("198.51.100.7:1234", "").Code)
}

func TestLimit_RetryAfterRoundsUp(t *testing.T) {
	limit := middleware.Limit{Requests: 1, Window: 1500 * time.Millisecond}
	c := limitedClient{handler: limit.PerIP()(passThrough), path: "/v1/privacy/purge"}

	c.send("198.51.100.8:1234", "")
	assert.Equal(t, "2", c.send("198.51.100.8:1234", "").Header().Get("Retry-After"))
}

func TestLimit_ProblemResponse(t *testing.T) {
	limit := middleware.Limit{Requests: 1, Window: time.Minute}
	c := limitedClient{
		handler: middleware.RequestID(limit.PerIP()(passThrough)),
		path:    "/v1/privacy/exports/download/3f9a0011223344c1",
	}

	c.send("203.0.113.9:1234", "")
	rec := c.send("203.0.113.9:1234", "")

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, models.ProblemTypeTooManyRequests, problem.Type)
	assert.Contains(t, problem.Detail, "Rate limit exceeded")
	assert.Equal(t, "/v1/privacy/exports/download/{token}", problem.Instance)
	assert.NotEmpty(t, problem.TraceID)
	assert.NotContains(t, rec.Body.String(), "3f9a0011223344c1")
}

func TestLimits_Budgets(t *testing.T) {
	assert.Equal(t, middleware.Limit{Requests: 5, Window: time.Minute}, middleware.ExportLimit)
	assert.Equal(t, middleware.Limit{Requests: 10, Window: time.Minute}, middleware.DownloadLimit)
	assert.Equal(t, middleware.Limit{Requests: 3, Window: time.Minute}, middleware.PurgeLimit)
	assert.Equal(t, middleware.Limit{Requests: 100, Window: time.Minute}, middleware.StandardLimit)
}
