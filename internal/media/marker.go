// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package media

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/transilio/internal/entries"
)

// ErrMarkerNeedsDuration marks a custom marker using a from-end (negative)
// value on an item whose duration is unknown.
var ErrMarkerNeedsDuration = errors.New("negative marker value requires a known duration")

// CustomMarker is a user-declared marker resolved against one item: values
// are absolute milliseconds within [0, duration]. Key records which
// document entry produced it, for logs and cascade bookkeeping.
type CustomMarker struct {
	Start   int64
	End     int64
	Type    string
	Mode    string
	Cascade bool
	Key     string
}

// Contains reports whether the half-open range [Start, End) covers offset.
func (m CustomMarker) Contains(offset int64) bool {
	return m.Start <= offset && offset < m.End
}

// TryParseMarker resolves one document marker entry against an item. A
// value of zero or more is absolute; a negative value X means duration+X.
// Resolved values clamp to [0, duration]. Errors identify exactly what was
// wrong so the caller can drop the marker with a useful log instead of
// failing the session.
func TryParseMarker(entry entries.MarkerEntry, key string, duration int64) (CustomMarker, error) {
	start, err := entry.StartMillis()
	if err != nil {
		return CustomMarker{}, fmt.Errorf("marker start for %s: %w", key, err)
	}
	end, err := entry.EndMillis()
	if err != nil {
		return CustomMarker{}, fmt.Errorf("marker end for %s: %w", key, err)
	}

	if start, err = resolveMillis(start, duration); err != nil {
		return CustomMarker{}, fmt.Errorf("marker start for %s: %w", key, err)
	}
	if end, err = resolveMillis(end, duration); err != nil {
		return CustomMarker{}, fmt.Errorf("marker end for %s: %w", key, err)
	}

	marker := CustomMarker{
		Start:   start,
		End:     end,
		Type:    strings.ToLower(entry.Type),
		Mode:    strings.ToLower(entry.Mode),
		Cascade: entry.Cascade != nil && *entry.Cascade,
		Key:     key,
	}
	return marker, nil
}

// resolveMillis maps a raw marker value to an absolute offset. Negative
// values count back from the end of the item.
func resolveMillis(v, duration int64) (int64, error) {
	if v < 0 {
		if duration <= 0 {
			return 0, ErrMarkerNeedsDuration
		}
		v = duration + v
	}
	if v < 0 {
		v = 0
	}
	if duration > 0 && v > duration {
		v = duration
	}
	return v, nil
}
