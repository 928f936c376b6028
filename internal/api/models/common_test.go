package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/api/models"
)

func TestTimestamp_JSON(t *testing.T) {
	toronto := time.FixedZone("EST", -5*60*60)
	ts := models.Timestamp(time.Date(2026, 3, 1, 7, 30, 15, 999, toronto))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-01T12:30:15Z"`, string(data))

	var back models.Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Time().Equal(time.Date(2026, 3, 1, 12, 30, 15, 0, time.UTC)))
}

func TestTimestamp_UnmarshalRejectsGarbage(t *testing.T) {
	var ts models.Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`42`), &ts))
	assert.NoError(t, json.Unmarshal([]byte(`null`), &ts))
}

func TestTimestampPtr(t *testing.T) {
	assert.Nil(t, models.TimestampPtr(nil))

	now := time.Now()
	assert.True(t, models.TimestampPtr(&now).Time().Equal(now))
}
