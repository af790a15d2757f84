package etw

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Event is one decoded trace event as produced by the session decoder.
//
// The decoder (an external collaborator) turns raw provider blobs into typed
// events; the correlation engine only ever sees this shape. Header fields are
// common to every provider; Props carries the provider-specific payload.
type Event struct {
	Provider uuid.UUID  `json:"provider"`
	ID       uint16     `json:"id"`
	Version  uint8      `json:"version"`
	QPC      uint64     `json:"qpc"`
	PID      uint32     `json:"pid"`
	TID      uint32     `json:"tid"`
	Props    Properties `json:"props,omitempty"`
}

// Header returns the portion of the event shared by all providers.
func (e *Event) Header() Header {
	return Header{QPC: e.QPC, PID: e.PID, TID: e.TID}
}

// Header is the per-event identity handlers key on: timestamp, process, thread.
type Header struct {
	QPC uint64
	PID uint32
	TID uint32
}

// Properties holds the decoded payload fields of an event.
//
// Values arrive from JSON as json.Number, string, or bool. Accessors never
// fail: a missing or mistyped field reads as the zero value, matching how the
// engine treats payload fields it does not recognize.
type Properties map[string]any

// Uint returns the named field as a uint64.
// Accepts json.Number, any Go integer type, and "0x"-prefixed hex strings
// (handle-valued fields are commonly recorded as hex).
func (p Properties) Uint(name string) uint64 {
	v, ok := p[name]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case json.Number:
		if u, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return u
		}
		// Negative numbers in a field read as unsigned wrap, like the
		// underlying C payloads do.
		if i, err := t.Int64(); err == nil {
			return uint64(i)
		}
	case string:
		s := strings.TrimPrefix(strings.ToLower(t), "0x")
		if u, err := strconv.ParseUint(s, 16, 64); err == nil {
			return u
		}
	case uint64:
		return t
	case uint32:
		return uint64(t)
	case uint16:
		return uint64(t)
	case uint8:
		return uint64(t)
	case uint:
		return uint64(t)
	case int:
		return uint64(t)
	case int64:
		return uint64(t)
	case int32:
		return uint64(t)
	case int16:
		return uint64(t)
	case int8:
		return uint64(t)
	case float64:
		return uint64(t)
	}
	return 0
}

// Uint32 returns the named field truncated to 32 bits.
func (p Properties) Uint32(name string) uint32 {
	return uint32(p.Uint(name))
}

// Int returns the named field as a signed integer.
func (p Properties) Int(name string) int64 {
	v, ok := p[name]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	}
	return int64(p.Uint(name))
}

// Bool returns the named field as a bool. Numeric values follow C semantics:
// nonzero is true.
func (p Properties) Bool(name string) bool {
	v, ok := p[name]
	if !ok {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return p.Uint(name) != 0
}

// Str returns the named field as a string, or "" if absent.
func (p Properties) Str(name string) string {
	if s, ok := p[name].(string); ok {
		return s
	}
	return ""
}

// String renders the event for log output.
func (e *Event) String() string {
	return fmt.Sprintf("%s/%d v%d qpc=%d pid=%d tid=%d", ProviderName(e.Provider), e.ID, e.Version, e.QPC, e.PID, e.TID)
}
