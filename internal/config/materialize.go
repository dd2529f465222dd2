// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// sectionDefaults is one INI section worth of default options, in the
// order they are written to a materialized file.
type sectionDefaults struct {
	name string
	keys []keyDefault
}

type keyDefault struct {
	name  string
	value string
}

// defaultSections renders defaultConfig as INI sections so the
// materialized file and the defaults layer can never drift apart.
func defaultSections() []sectionDefaults {
	d := defaultConfig()
	return []sectionDefaults{
		{"Plex.tv", []keyDefault{
			{"username", d.PlexTV.Username},
			{"password", d.PlexTV.Password},
			{"token", d.PlexTV.Token},
			{"servername", d.PlexTV.ServerName},
		}},
		{"Server", []keyDefault{
			{"address", d.Server.Address},
			{"ssl", strconv.FormatBool(d.Server.SSL)},
			{"port", strconv.Itoa(d.Server.Port)},
			{"command-pool", strconv.Itoa(d.Server.CommandPool)},
		}},
		{"Security", []keyDefault{
			{"ignore-certs", strconv.FormatBool(d.Security.IgnoreCerts)},
		}},
		{"Skip", []keyDefault{
			{"mode", d.Skip.Mode},
			{"tags", strings.Join(d.Skip.Tags, ", ")},
			{"types", strings.Join(d.Skip.Types, ", ")},
			{"ignored-libraries", strings.Join(d.Skip.IgnoredLibraries, ", ")},
			{"last-chapter", strconv.FormatFloat(d.Skip.LastChapter, 'f', 1, 64)},
			{"unwatched", strconv.FormatBool(d.Skip.Unwatched)},
			{"first-episode-series", d.Skip.FirstEpisodeSeries},
			{"first-episode-season", d.Skip.FirstEpisodeSeason},
			{"first-safe-tags", strings.Join(d.Skip.FirstSafeTags, ", ")},
			{"skip-last-episode-series", d.Skip.SkipLastEpisodeSeries},
			{"skip-last-episode-season", d.Skip.SkipLastEpisodeSeason},
			{"last-safe-tags", strings.Join(d.Skip.LastSafeTags, ", ")},
			{"next", strconv.FormatBool(d.Skip.Next)},
			{"binge", strconv.Itoa(d.Skip.Binge)},
			{"binge-safe-tags", strings.Join(d.Skip.BingeSafeTags, ", ")},
			{"binge-same-show-only", strconv.FormatBool(d.Skip.BingeSameShowOnly)},
			{"skip-next-max", strconv.Itoa(d.Skip.SkipNextMax)},
		}},
		{"Offsets", []keyDefault{
			{"start", strconv.FormatInt(d.Offsets.Start, 10)},
			{"end", strconv.FormatInt(d.Offsets.End, 10)},
			{"command", strconv.FormatInt(d.Offsets.Command, 10)},
			{"tags", strings.Join(d.Offsets.Tags, ", ")},
		}},
		{"Volume", []keyDefault{
			{"low", strconv.Itoa(d.Volume.Low)},
			{"high", strconv.Itoa(d.Volume.High)},
		}},
		{"Logging", []keyDefault{
			{"level", d.Logging.Level},
			{"format", d.Logging.Format},
		}},
		{"Ops", []keyDefault{
			{"enabled", strconv.FormatBool(d.Ops.Enabled)},
			{"listen", d.Ops.Listen},
		}},
	}
}

// Materialize ensures the config file at path exists and carries every
// known option, writing defaults for whatever is missing. User-supplied
// values, unknown keys and sections, and comments are preserved; the file
// is only rewritten when something was added.
func Materialize(path string) error {
	if path == "" {
		return nil
	}

	f, err := ini.LooseLoad(path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	changed := false
	for _, section := range defaultSections() {
		sec := findSection(f, section.name)
		if sec == nil {
			sec, err = f.NewSection(section.name)
			if err != nil {
				return fmt.Errorf("failed to add section %s: %w", section.name, err)
			}
			changed = true
		}
		for _, kd := range section.keys {
			if hasKeyFold(sec, kd.name) {
				continue
			}
			if _, err := sec.NewKey(kd.name, kd.value); err != nil {
				return fmt.Errorf("failed to add %s.%s: %w", section.name, kd.name, err)
			}
			changed = true
		}
	}
	if !changed {
		return nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory %s: %w", dir, err)
		}
	}
	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// findSection locates a section by normalized name so "[plex.tv]" in a
// user file matches the canonical "Plex.tv". Returns nil when absent.
func findSection(f *ini.File, name string) *ini.Section {
	want := normalizeSection(name)
	for _, sec := range f.Sections() {
		if normalizeSection(sec.Name()) == want {
			return sec
		}
	}
	return nil
}

// hasKeyFold reports whether the section carries the key under any casing.
func hasKeyFold(sec *ini.Section, name string) bool {
	for _, key := range sec.Keys() {
		if strings.EqualFold(key.Name(), name) {
			return true
		}
	}
	return false
}
