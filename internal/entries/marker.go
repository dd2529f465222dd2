// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package entries

import (
	"errors"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Marker value validation errors. Session construction drops a custom
// marker with one of these instead of failing the whole session.
var (
	// ErrValueMissing marks a marker entry without a start or end.
	ErrValueMissing = errors.New("marker value is missing")
	// ErrValueNotNumeric marks a marker start or end that is not a number.
	ErrValueNotNumeric = errors.New("marker value is not numeric")
)

// MarkerEntry is one custom marker as written in the document. Start and
// End stay untyped so validation can distinguish missing values from
// non-numeric ones when the marker is parsed against a session; users edit
// this file by hand and both happen.
type MarkerEntry struct {
	Start   interface{}
	End     interface{}
	Type    string
	Mode    string
	Cascade *bool

	// extra preserves unknown fields across load/save.
	extra map[string]interface{}
}

// StartMillis returns the start value in milliseconds. Negative values are
// returned as-is; interpreting them relative to the duration is the
// session's job.
func (e MarkerEntry) StartMillis() (int64, error) {
	return toMillis(e.Start)
}

// EndMillis returns the end value in milliseconds.
func (e MarkerEntry) EndMillis() (int64, error) {
	return toMillis(e.End)
}

// toMillis converts a raw document value to milliseconds. JSON numbers
// truncate toward zero; strings must parse as integers.
func toMillis(v interface{}) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, ErrValueMissing
	case float64:
		return int64(val), nil
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil {
				return 0, ErrValueNotNumeric
			}
			return int64(f), nil
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, ErrValueNotNumeric
		}
		return n, nil
	default:
		return 0, ErrValueNotNumeric
	}
}

// UnmarshalJSON keeps unknown marker fields so a rewrite does not lose
// them.
func (e *MarkerEntry) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	e.Start = m["start"]
	e.End = m["end"]
	if v, ok := m["type"].(string); ok {
		e.Type = v
	}
	if v, ok := m["mode"].(string); ok {
		e.Mode = v
	}
	if v, ok := m["cascade"].(bool); ok {
		e.Cascade = &v
	}

	for _, known := range []string{"start", "end", "type", "mode", "cascade"} {
		delete(m, known)
	}
	if len(m) > 0 {
		e.extra = m
	}
	return nil
}

// MarshalJSON renders the marker with its preserved unknown fields.
func (e MarkerEntry) MarshalJSON() ([]byte, error) {
	m := make(map[string]interface{}, len(e.extra)+5)
	for k, v := range e.extra {
		m[k] = v
	}
	if e.Start != nil {
		m["start"] = e.Start
	}
	if e.End != nil {
		m["end"] = e.End
	}
	if e.Type != "" {
		m["type"] = e.Type
	}
	if e.Mode != "" {
		m["mode"] = e.Mode
	}
	if e.Cascade != nil {
		m["cascade"] = *e.Cascade
	}
	return json.Marshal(m)
}

// OffsetEntry holds per-identifier timing overrides. Nil fields inherit
// the running values; Command applies only when the identifier names a
// player.
type OffsetEntry struct {
	Start   *int64   `json:"start,omitempty"`
	End     *int64   `json:"end,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Command *int64   `json:"command,omitempty"`
}
