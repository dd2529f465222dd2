// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package entries

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func writeEntriesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custom.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write custom entries: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "custom.json"))
	if err != nil {
		t.Fatalf("Load() error = %v, want empty document", err)
	}
	if doc.Markers == nil || doc.Offsets == nil || doc.Mode == nil {
		t.Error("empty document has uninitialized sections")
	}
	if len(doc.Markers) != 0 {
		t.Errorf("empty document has %d marker entries", len(doc.Markers))
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeEntriesFile(t, `{"markers": [this is not json`)

	if _, err := Load(path); err == nil {
		t.Error("Load() = nil error for malformed json")
	}

	// The daemon path degrades to an empty document instead of failing.
	doc := LoadOrDefault(path)
	if doc == nil || len(doc.Markers) != 0 {
		t.Error("LoadOrDefault() did not fall back to an empty document")
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := writeEntriesFile(t, `{
  "markers": {
    "12345": [{"start": 5000, "end": 30000, "type": "intro", "cascade": true}]
  },
  "offsets": {
    "12345": {"start": 3000, "tags": ["intro"]},
    "Living Room": {"command": 1000}
  },
  "tags": {"12345": ["intro", "credits"]},
  "allowed": {"users": ["alice"], "clients": [], "keys": ["12345"], "skip-next": ["Living Room"]},
  "blocked": {"users": ["bob"]},
  "clients": {"Living Room": "http://192.168.1.50:32500"},
  "mode": {"12345": "volume"}
}`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	markers, ok := doc.MarkersFor("12345")
	if !ok || len(markers) != 1 {
		t.Fatalf("MarkersFor(12345) = %v, %v", markers, ok)
	}
	if markers[0].Type != "intro" || markers[0].Cascade == nil || !*markers[0].Cascade {
		t.Errorf("marker = %+v, want intro with cascade", markers[0])
	}
	start, err := markers[0].StartMillis()
	if err != nil || start != 5000 {
		t.Errorf("StartMillis() = %d, %v", start, err)
	}

	offsets, ok := doc.OffsetsFor("12345")
	if !ok || offsets.Start == nil || *offsets.Start != 3000 {
		t.Errorf("OffsetsFor(12345) = %+v, %v", offsets, ok)
	}
	playerOffsets, ok := doc.OffsetsFor("Living Room")
	if !ok || playerOffsets.Command == nil || *playerOffsets.Command != 1000 {
		t.Errorf("OffsetsFor(Living Room) = %+v, %v", playerOffsets, ok)
	}

	if tags, ok := doc.TagsFor("12345"); !ok || len(tags) != 2 {
		t.Errorf("TagsFor(12345) = %v, %v", tags, ok)
	}
	if mode, ok := doc.ModeFor("12345"); !ok || mode != "volume" {
		t.Errorf("ModeFor(12345) = %q, %v", mode, ok)
	}
	if !doc.Allowed.ContainsUser("alice") {
		t.Error("allowed users missing alice")
	}
	if !doc.Blocked.ContainsUser("bob") {
		t.Error("blocked users missing bob")
	}
	if !doc.Allowed.ContainsSkipNext("Living Room") {
		t.Error("allowed skip-next missing Living Room")
	}
	// Sections absent from the file are still initialized.
	if doc.Blocked.Clients == nil || doc.Blocked.SkipNext == nil {
		t.Error("partial blocked section not initialized")
	}
}

func TestSaveRoundTripPreservesUnknownFields(t *testing.T) {
	path := writeEntriesFile(t, `{
  "markers": {"12345": [{"start": 1, "end": 2, "note": "keep this"}]},
  "future-section": {"anything": [1, 2, 3]}
}`)

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "out.json")
	if err := doc.Save(out); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("failed to read saved file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"future-section"`) {
		t.Error("unknown top-level section lost on rewrite")
	}
	if !strings.Contains(content, `"note"`) {
		t.Error("unknown marker field lost on rewrite")
	}
	if !strings.HasSuffix(content, "\n") {
		t.Error("saved file missing trailing newline")
	}

	// And the rewritten file still parses to the same known content.
	back, err := Load(out)
	if err != nil {
		t.Fatalf("Load(saved) error = %v", err)
	}
	markers, _ := back.MarkersFor("12345")
	if len(markers) != 1 {
		t.Fatalf("round-tripped markers = %v", markers)
	}
	if end, err := markers[0].EndMillis(); err != nil || end != 2 {
		t.Errorf("round-tripped EndMillis() = %d, %v", end, err)
	}
}

func TestMarkerEntryValues(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr error
	}{
		{"number", `{"start": 30000, "end": 1}`, 30000, nil},
		{"float truncates", `{"start": 30000.9, "end": 1}`, 30000, nil},
		{"numeric string", `{"start": "30000", "end": 1}`, 30000, nil},
		{"padded string", `{"start": " 30000 ", "end": 1}`, 30000, nil},
		{"negative", `{"start": -5000, "end": 1}`, -5000, nil},
		{"missing", `{"end": 1}`, 0, ErrValueMissing},
		{"junk string", `{"start": "half past three", "end": 1}`, 0, ErrValueNotNumeric},
		{"fractional string", `{"start": "30000.5", "end": 1}`, 0, ErrValueNotNumeric},
		{"wrong type", `{"start": [1], "end": 1}`, 0, ErrValueNotNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entry MarkerEntry
			if err := json.Unmarshal([]byte(tt.raw), &entry); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			got, err := entry.StartMillis()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("StartMillis() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("StartMillis() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("StartMillis() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClientURLFor(t *testing.T) {
	doc := New()
	doc.Clients["Living Room"] = "http://192.168.1.50:32500"
	doc.Clients["abc-client-id"] = "http://192.168.1.60:32500"

	if url, ok := doc.ClientURLFor("Living Room", "abc-client-id"); !ok || url != "http://192.168.1.50:32500" {
		t.Errorf("ClientURLFor(title match) = %q, %v", url, ok)
	}
	if url, ok := doc.ClientURLFor("Bedroom", "abc-client-id"); !ok || url != "http://192.168.1.60:32500" {
		t.Errorf("ClientURLFor(identifier match) = %q, %v", url, ok)
	}
	if _, ok := doc.ClientURLFor("Bedroom", "other-id"); ok {
		t.Error("ClientURLFor() matched a player with no override")
	}
}

func TestMaterialize(t *testing.T) {
	t.Run("creates skeleton", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.json")
		if err := Materialize(path); err != nil {
			t.Fatalf("Materialize() error = %v", err)
		}
		doc, err := Load(path)
		if err != nil {
			t.Fatalf("Load(materialized) error = %v", err)
		}
		if len(doc.Markers) != 0 || len(doc.Allowed.Users) != 0 {
			t.Error("materialized skeleton is not empty")
		}
	})

	t.Run("leaves existing file alone", func(t *testing.T) {
		content := `{"markers": {"1": [{"start": 0, "end": 1}]}}`
		path := writeEntriesFile(t, content)
		if err := Materialize(path); err != nil {
			t.Fatalf("Materialize() error = %v", err)
		}
		data, _ := os.ReadFile(path)
		if string(data) != content {
			t.Error("Materialize rewrote an existing file")
		}
	})
}

func TestDefaultPath(t *testing.T) {
	if got := DefaultPath("/config/config.ini"); got != "/config/custom.json" {
		t.Errorf("DefaultPath() = %q", got)
	}
}
