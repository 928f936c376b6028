package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fintrack/fintrack/internal/api/middleware"
)

// collectMetrics installs a manual reader for the duration of the test.
func collectMetrics(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })
	return reader
}

func requestTotals(t *testing.T, reader *sdkmetric.ManualReader) []metricdata.DataPoint[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http.server.request.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			return sum.DataPoints
		}
	}
	return nil
}

func attrString(set attribute.Set, key attribute.Key) string {
	v, _ := set.Value(key)
	return v.Emit()
}

func TestMetrics_PassesResponseThrough(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetrics_StatusClass(t *testing.T) {
	tests := []struct {
		code      int
		wantClass string
	}{
		{http.StatusOK, "2xx"},
		{http.StatusNotModified, "3xx"},
		{http.StatusBadRequest, "4xx"},
		{http.StatusServiceUnavailable, "5xx"},
	}
	for _, tt := range tests {
		t.Run(tt.wantClass, func(t *testing.T) {
			reader := collectMetrics(t)
			metrics, err := middleware.NewMetrics()
			require.NoError(t, err)

			metrics.Middleware()(statusHandler(tt.code)).
				ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/privacy/purge", http.NoBody))

			points := requestTotals(t, reader)
			require.Len(t, points, 1)
			assert.Equal(t, int64(1), points[0].Value)
			assert.Equal(t, tt.wantClass, attrString(points[0].Attributes, "http.status_class"))
			assert.Equal(t, "POST", attrString(points[0].Attributes, "http.method"))
		})
	}
}

func TestMetrics_MasksDownloadToken(t *testing.T) {
	reader := collectMetrics(t)
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	metrics.Middleware()(statusHandler(http.StatusGone)).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/privacy/exports/download/3f9a0011223344c1", http.NoBody))

	points := requestTotals(t, reader)
	require.Len(t, points, 1)
	assert.Equal(t, "/v1/privacy/exports/download/{token}", attrString(points[0].Attributes, "http.route"))
}
