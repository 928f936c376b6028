// Package featureflags holds the operator switches that degrade parts of the
// privacy service at runtime.
package featureflags

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagDisablePDFExport rejects exports in the printable HTML format.
	FlagDisablePDFExport = "disable_pdf_export"

	// FlagDisableAuditMirror stops mirroring audit events to the remote store.
	FlagDisableAuditMirror = "disable_audit_mirror"

	// FlagDisableScheduledPurge pauses scheduled retention purges for all users.
	FlagDisableScheduledPurge = "disable_scheduled_purge"

	// FlagAuditLocalRetentionDays is the number of days audit events are kept locally.
	FlagAuditLocalRetentionDays = "audit_local_retention_days"
)

// ErrInvalidFlag is returned for an unknown key or a value of the wrong kind.
var ErrInvalidFlag = errors.New("invalid feature flag")

// Kind is the value type a flag accepts.
type Kind string

const (
	KindBool Kind = "bool"
	KindInt  Kind = "int"
)

// Definition describes a known flag.
type Definition struct {
	Key         string
	Kind        Kind
	Default     interface{}
	Description string
}

// Definitions lists every flag the service reads.
var Definitions = []Definition{
	{FlagDisablePDFExport, KindBool, false, "reject printable exports"},
	{FlagDisableAuditMirror, KindBool, false, "keep audit events local only"},
	{FlagDisableScheduledPurge, KindBool, false, "pause scheduled retention purges"},
	{FlagAuditLocalRetentionDays, KindInt, 365, "days audit events stay in the local log"},
}

// Lookup returns the definition for key.
func Lookup(key string) (Definition, bool) {
	for _, d := range Definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Normalize checks value against the definition of key and returns it in
// canonical form. JSON numbers arrive as float64; int flags must be whole
// and positive.
func Normalize(key string, value interface{}) (interface{}, error) {
	def, ok := Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidFlag, key)
	}
	switch def.Kind {
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case KindInt:
		switch v := value.(type) {
		case int:
			if v > 0 {
				return v, nil
			}
		case float64:
			if v > 0 && v == math.Trunc(v) {
				return int(v), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s expects a %s value", ErrInvalidFlag, key, def.Kind)
}

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the flag value as a boolean, or defaultValue when the
// flag is nil or holds something else.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	if v, ok := f.Value.(bool); ok {
		return v
	}
	return defaultValue
}

// IntValue returns the flag value as an integer, or defaultValue when the
// flag is nil or not a number.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return defaultValue
}

// DefaultFlags returns a flag per definition holding its default value.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	flags := make(map[string]*Flag, len(Definitions))
	for _, d := range Definitions {
		flags[d.Key] = &Flag{Key: d.Key, Value: d.Default, UpdatedAt: now}
	}
	return flags
}
