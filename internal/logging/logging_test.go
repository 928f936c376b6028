package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/config"
	"github.com/fintrack/fintrack/internal/logging"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, config.LogConfig{Level: "warn", Format: "json"}, "fintrack-api", "1.2.3")

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "fintrack-api", entry["service"])
	assert.Equal(t, "1.2.3", entry["version"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewWithWriter_BadLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, config.LogConfig{Level: "loud"}, "svc", "dev")

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, config.LogConfig{Level: "info", Format: "console"}, "svc", "dev")

	log.Info().Msg("hello")

	assert.Contains(t, buf.String(), "hello")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", logging.Redact(""))
	assert.Equal(t, "***", logging.Redact("abcdefgh"))
	assert.Equal(t, "3f9a...c1", logging.Redact("3f9a0011223344c1"))
}
