// Package models holds the request and response bodies of the FinTrack
// privacy API.
package models

import (
	"encoding/json"
	"time"
)

type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// ExportStatus is the outcome of an export request.
type ExportStatus string

const (
	ExportStatusReady  ExportStatus = "READY"
	ExportStatusFailed ExportStatus = "FAILED"
)

// Timestamp is a time serialized as RFC 3339 in UTC, to the second.
type Timestamp time.Time

func TimestampPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := Timestamp(*t)
	return &ts
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

func (t Timestamp) Time() time.Time {
	return time.Time(t)
}
