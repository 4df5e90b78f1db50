// Package record defines the normalized job statistics record and the strict
// parse step that maps raw captured payloads into it at the ingest boundary.
// Nothing past this boundary ever sees an unvalidated payload shape.
package record

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/evinjohnn/LinkedIn-Job-Stats/errors"
)

// Record is an immutable snapshot of one posting's statistics. The metric
// fields are pointers so "endpoint omitted the field" stays distinct from
// "endpoint returned zero": nil means absent, a pointer to 0 means observed
// as zero. Construct via Parse or New and never mutate afterwards.
type Record struct {
	EntityID   string    `json:"entity_id"`
	Views      *float64  `json:"views,omitempty"`
	Applies    *float64  `json:"applies,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// New builds a record directly. Intended for tests and internal producers;
// external payloads go through Parse.
func New(entityID string, views, applies *float64, observedAt time.Time) Record {
	return Record{
		EntityID:   entityID,
		Views:      views,
		Applies:    applies,
		ObservedAt: observedAt,
	}
}

// HasMetrics reports whether at least one metric was observed.
func (r Record) HasMetrics() bool {
	return r.Views != nil || r.Applies != nil
}

// Metric field aliases seen across capture endpoints. Matching is
// case-sensitive and checked in order.
var (
	viewKeys  = []string{"views", "viewCount", "view_count"}
	applyKeys = []string{"applies", "applyCount", "apply_count", "applications"}
)

// Parse validates entityID and payload and produces a Record observed at
// observedAt. Metrics are looked up at the payload root and, if present,
// under a "data" object, with nested values taking precedence. A payload
// carrying neither metric is rejected with an invalid-class error and must
// not be cached or broadcast.
func Parse(entityID string, payload map[string]any, observedAt time.Time) (Record, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return Record{}, errors.WrapInvalid(errors.ErrEmptyEntityID, "record", "Parse", "entity id check")
	}
	if payload == nil {
		return Record{}, errors.WrapInvalid(errors.ErrInvalidData, "record", "Parse", "payload check")
	}

	views := lookupNumber(payload, viewKeys)
	applies := lookupNumber(payload, applyKeys)

	if nested, ok := payload["data"].(map[string]any); ok {
		if v := lookupNumber(nested, viewKeys); v != nil {
			views = v
		}
		if a := lookupNumber(nested, applyKeys); a != nil {
			applies = a
		}
	}

	if views == nil && applies == nil {
		return Record{}, errors.WrapInvalid(errors.ErrNoMetrics, "record", "Parse", "metric presence check")
	}

	return Record{
		EntityID:   entityID,
		Views:      views,
		Applies:    applies,
		ObservedAt: observedAt,
	}, nil
}

// lookupNumber returns the first key in keys that holds a numeric value.
// A numeric zero is a present value.
func lookupNumber(m map[string]any, keys []string) *float64 {
	for _, key := range keys {
		v, ok := m[key]
		if !ok {
			continue
		}
		if f, ok := asFloat(v); ok {
			return &f
		}
	}
	return nil
}

// asFloat converts the numeric shapes decoded JSON can produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Float is a convenience for building optional metric values.
func Float(v float64) *float64 {
	return &v
}
