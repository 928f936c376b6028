package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/fintrack/fintrack/internal/config"
	"github.com/fintrack/fintrack/internal/telemetry"
)

func TestInit_DisabledLeavesGlobals(t *testing.T) {
	before := otel.GetTracerProvider()

	p, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:  "fintrack-api",
		OTLPEndpoint: "localhost:4317",
	})
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Same(t, before, otel.GetTracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProvider_ShutdownWithoutProviders(t *testing.T) {
	assert.NoError(t, (&telemetry.Provider{}).Shutdown(context.Background()))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.OTLPEndpoint = "collector:4317"

	tc := telemetry.FromConfig(cfg, "fintrack-api", "1.4.0")
	assert.Equal(t, telemetry.Config{
		ServiceName:    "fintrack-api",
		ServiceVersion: "1.4.0",
		Environment:    "development",
		OTLPEndpoint:   "collector:4317",
		Enabled:        true,
		SampleRatio:    1,
	}, tc)

	cfg.App.Env = "production"
	assert.Equal(t, 0.25, telemetry.FromConfig(cfg, "fintrack-api", "1.4.0").SampleRatio)

	cfg.Telemetry.SampleRatio = 0.05
	assert.Equal(t, 0.05, telemetry.FromConfig(cfg, "fintrack-api", "1.4.0").SampleRatio)
}

func TestSampler(t *testing.T) {
	params := func(parent trace.SpanContext) sdktrace.SamplingParameters {
		return sdktrace.SamplingParameters{
			ParentContext: trace.ContextWithSpanContext(context.Background(), parent),
			TraceID:       trace.TraceID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			Name:          "export.generate",
		}
	}
	sampledParent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	unsampledParent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{1},
		Remote:  true,
	})

	always := telemetry.Sampler(0)
	assert.Equal(t, sdktrace.RecordAndSample, always.ShouldSample(params(trace.SpanContext{})).Decision)
	assert.Equal(t, sdktrace.Drop, always.ShouldSample(params(unsampledParent)).Decision)

	// A tiny ratio drops this high trace ID but follows a sampled caller.
	rare := telemetry.Sampler(0.0001)
	assert.Equal(t, sdktrace.Drop, rare.ShouldSample(params(trace.SpanContext{})).Decision)
	assert.Equal(t, sdktrace.RecordAndSample, rare.ShouldSample(params(sampledParent)).Decision)
}

func TestStartSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, end := telemetry.StartSpan(context.Background(), "export.generate", attribute.String("format", "csv"))
	end(errors.New("disk full"))

	_, end = telemetry.StartSpan(context.Background(), "retention.purge")
	end(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "export.generate", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "disk full", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.String("format", "csv"))
	assert.Len(t, spans[0].Events(), 1)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}
