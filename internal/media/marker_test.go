// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package media

import (
	"errors"
	"testing"

	"github.com/tomtom215/transilio/internal/entries"
)

func TestTryParseMarker(t *testing.T) {
	truePtr := true

	tests := []struct {
		name      string
		entry     entries.MarkerEntry
		duration  int64
		want      CustomMarker
		wantErr   error
		wantAnErr bool
	}{
		{
			name:     "absolute values preserved",
			entry:    entries.MarkerEntry{Start: float64(30000), End: float64(60000), Type: "Intro", Mode: "SKIP", Cascade: &truePtr},
			duration: 1800000,
			want:     CustomMarker{Start: 30000, End: 60000, Type: "intro", Mode: "skip", Cascade: true, Key: "300"},
		},
		{
			name:     "negative values count from end",
			entry:    entries.MarkerEntry{Start: float64(-120000), End: float64(-1)},
			duration: 1800000,
			want:     CustomMarker{Start: 1680000, End: 1799999, Key: "300"},
		},
		{
			name:     "string values parse",
			entry:    entries.MarkerEntry{Start: "5000", End: "10000"},
			duration: 1800000,
			want:     CustomMarker{Start: 5000, End: 10000, Key: "300"},
		},
		{
			name:     "end clamps to duration",
			entry:    entries.MarkerEntry{Start: float64(1700000), End: float64(9999999)},
			duration: 1800000,
			want:     CustomMarker{Start: 1700000, End: 1800000, Key: "300"},
		},
		{
			name:     "negative beyond start clamps to zero",
			entry:    entries.MarkerEntry{Start: float64(-2000000), End: float64(-1700000)},
			duration: 1800000,
			want:     CustomMarker{Start: 0, End: 100000, Key: "300"},
		},
		{
			name:     "absolute values without duration pass through",
			entry:    entries.MarkerEntry{Start: float64(5000), End: float64(30000)},
			duration: 0,
			want:     CustomMarker{Start: 5000, End: 30000, Key: "300"},
		},
		{
			name:     "negative without duration",
			entry:    entries.MarkerEntry{Start: float64(-120000), End: float64(-1)},
			duration: 0,
			wantErr:  ErrMarkerNeedsDuration,
		},
		{
			name:     "missing start",
			entry:    entries.MarkerEntry{End: float64(60000)},
			duration: 1800000,
			wantErr:  entries.ErrValueMissing,
		},
		{
			name:     "missing end",
			entry:    entries.MarkerEntry{Start: float64(30000)},
			duration: 1800000,
			wantErr:  entries.ErrValueMissing,
		},
		{
			name:     "non-numeric start",
			entry:    entries.MarkerEntry{Start: "half past three", End: float64(60000)},
			duration: 1800000,
			wantErr:  entries.ErrValueNotNumeric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TryParseMarker(tt.entry, "300", tt.duration)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("TryParseMarker() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("TryParseMarker() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("TryParseMarker() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCustomMarkerContains(t *testing.T) {
	marker := CustomMarker{Start: 30000, End: 60000}

	tests := []struct {
		offset int64
		want   bool
	}{
		{29999, false},
		{30000, true},
		{45000, true},
		{59999, true},
		{60000, false},
	}

	for _, tt := range tests {
		if got := marker.Contains(tt.offset); got != tt.want {
			t.Errorf("Contains(%d) = %v, want %v", tt.offset, got, tt.want)
		}
	}
}

func TestDurationThreshold(t *testing.T) {
	if got := DurationThreshold(1800000); got != 1791000 {
		t.Errorf("DurationThreshold(1800000) = %d, want 1791000", got)
	}
	// Rounds to nearest rather than truncating.
	if got := DurationThreshold(1000); got != 995 {
		t.Errorf("DurationThreshold(1000) = %d, want 995", got)
	}
}
