// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package entries

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/tomtom215/transilio/internal/logging"
)

// DefaultFileName is the custom-entries file name, resolved next to the
// config file.
const DefaultFileName = "custom.json"

// Document is the decoded custom-entries file. All sections are optional
// in the file; a loaded Document always has them initialized.
type Document struct {
	// Markers maps item identifiers to user-defined markers that fire
	// regardless of what the server reports for the item.
	Markers map[string][]MarkerEntry

	// Offsets maps item identifiers (or player title/client-identifier
	// for the command delay) to seek timing overrides.
	Offsets map[string]OffsetEntry

	// Tags maps item identifiers to a replacement tag set.
	Tags map[string][]string

	// Allowed and Blocked hold the allow/block lists. A non-empty allow
	// list admits only its members; the block list always rejects.
	Allowed AccessList
	Blocked AccessList

	// Clients maps a player title or client identifier to a base URL for
	// direct connections, bypassing the proxy-through-server default.
	Clients map[string]string

	// Mode maps an item identifier or player title/client-identifier to
	// "skip" or "volume".
	Mode map[string]string

	// raw preserves unknown top-level sections across load/save.
	raw map[string]json.RawMessage
}

// AccessList is one side of the allow/block pair.
type AccessList struct {
	Users    []string `json:"users"`
	Clients  []string `json:"clients"`
	Keys     []string `json:"keys"`
	SkipNext []string `json:"skip-next"`
}

// ContainsUser reports whether the list names the user title.
func (a AccessList) ContainsUser(title string) bool { return containsString(a.Users, title) }

// ContainsClient reports whether the list names the player title or
// client identifier.
func (a AccessList) ContainsClient(titleOrID string) bool {
	return containsString(a.Clients, titleOrID)
}

// ContainsKey reports whether the list names the item identifier.
func (a AccessList) ContainsKey(key string) bool { return containsString(a.Keys, key) }

// ContainsSkipNext reports whether the list names the player title or
// client identifier for skip-next gating.
func (a AccessList) ContainsSkipNext(titleOrID string) bool {
	return containsString(a.SkipNext, titleOrID)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// New returns an empty document with every section initialized.
func New() *Document {
	d := &Document{}
	d.ensureSections()
	return d
}

func (d *Document) ensureSections() {
	if d.Markers == nil {
		d.Markers = map[string][]MarkerEntry{}
	}
	if d.Offsets == nil {
		d.Offsets = map[string]OffsetEntry{}
	}
	if d.Tags == nil {
		d.Tags = map[string][]string{}
	}
	if d.Clients == nil {
		d.Clients = map[string]string{}
	}
	if d.Mode == nil {
		d.Mode = map[string]string{}
	}
	d.Allowed.ensure()
	d.Blocked.ensure()
}

func (a *AccessList) ensure() {
	if a.Users == nil {
		a.Users = []string{}
	}
	if a.Clients == nil {
		a.Clients = []string{}
	}
	if a.Keys == nil {
		a.Keys = []string{}
	}
	if a.SkipNext == nil {
		a.SkipNext = []string{}
	}
}

// documentJSON mirrors Document for plain (un)marshaling of the known
// sections.
type documentJSON struct {
	Markers map[string][]MarkerEntry `json:"markers"`
	Offsets map[string]OffsetEntry   `json:"offsets"`
	Tags    map[string][]string      `json:"tags"`
	Allowed AccessList               `json:"allowed"`
	Blocked AccessList               `json:"blocked"`
	Clients map[string]string        `json:"clients"`
	Mode    map[string]string        `json:"mode"`
}

var knownSections = []string{"markers", "offsets", "tags", "allowed", "blocked", "clients", "mode"}

// UnmarshalJSON decodes the known sections and stashes everything else in
// the raw shadow so unknown sections survive a rewrite.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var plain documentJSON
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}

	d.Markers = plain.Markers
	d.Offsets = plain.Offsets
	d.Tags = plain.Tags
	d.Allowed = plain.Allowed
	d.Blocked = plain.Blocked
	d.Clients = plain.Clients
	d.Mode = plain.Mode

	for _, section := range knownSections {
		delete(raw, section)
	}
	d.raw = raw

	d.ensureSections()
	return nil
}

// MarshalJSON renders the document with its known sections plus any
// preserved unknown sections. Keys serialize in sorted order.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(d.raw)+len(knownSections))
	for k, v := range d.raw {
		out[k] = v
	}
	out["markers"] = d.Markers
	out["offsets"] = d.Offsets
	out["tags"] = d.Tags
	out["allowed"] = d.Allowed
	out["blocked"] = d.Blocked
	out["clients"] = d.Clients
	out["mode"] = d.Mode
	return json.Marshal(out)
}

// DefaultPath returns the custom-entries path for a given config file path.
func DefaultPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), DefaultFileName)
}

// Load reads a custom-entries document from path. A missing file yields an
// empty document; unreadable or malformed files are errors.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read custom entries %s: %w", path, err)
	}

	doc := New()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse custom entries %s: %w", path, err)
	}
	return doc, nil
}

// LoadOrDefault loads path, logging and falling back to an empty document
// when the file cannot be read or parsed. The daemon uses this so a broken
// custom.json degrades to default behavior instead of refusing to start.
func LoadOrDefault(path string) *Document {
	doc, err := Load(path)
	if err != nil {
		logging.Error().Err(err).Str("path", path).Msg("Failed to load custom entries, using defaults")
		return New()
	}
	return doc
}

// Save writes the document to path with four-space indentation and a
// trailing newline, preserving unknown sections.
func (d *Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode custom entries: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write custom entries %s: %w", path, err)
	}
	return nil
}

// Materialize writes an empty document skeleton when path does not exist,
// mirroring config materialization so users have a template to edit. An
// existing file is left untouched, even when malformed.
func Materialize(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat custom entries %s: %w", path, err)
	}
	return New().Save(path)
}

// MarkersFor returns the custom markers declared for an item identifier.
func (d *Document) MarkersFor(key string) ([]MarkerEntry, bool) {
	m, ok := d.Markers[key]
	return m, ok
}

// OffsetsFor returns the offset overrides declared for an identifier.
func (d *Document) OffsetsFor(key string) (OffsetEntry, bool) {
	o, ok := d.Offsets[key]
	return o, ok
}

// TagsFor returns the replacement tag set declared for an identifier.
func (d *Document) TagsFor(key string) ([]string, bool) {
	t, ok := d.Tags[key]
	return t, ok
}

// ModeFor returns the mode override declared for an item identifier or
// player.
func (d *Document) ModeFor(key string) (string, bool) {
	m, ok := d.Mode[key]
	return m, ok
}

// ClientURLFor returns the base URL override for a player, trying the
// player title first and the client identifier second.
func (d *Document) ClientURLFor(title, clientIdentifier string) (string, bool) {
	if url, ok := d.Clients[title]; ok && url != "" {
		return url, true
	}
	if url, ok := d.Clients[clientIdentifier]; ok && url != "" {
		return url, true
	}
	return "", false
}
