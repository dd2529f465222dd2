// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
)

// INIParser is a koanf Parser over gopkg.in/ini.v1. It maps INI sections to
// top-level config keys, normalizing section names so "[Plex.tv]" becomes
// "plextv" (a literal dot would collide with koanf's path delimiter) and
// lowercasing key names the way Python's configparser did for the original
// config files this format is compatible with.
type INIParser struct{}

// Parser returns an INI parser for koanf's file provider.
func Parser() *INIParser {
	return &INIParser{}
}

// Unmarshal parses INI bytes into a nested map keyed by normalized section
// name. All values are strings; koanf's weakly-typed unmarshal and
// processListFields handle conversion.
func (p *INIParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	f, err := ini.Load(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ini: %w", err)
	}

	out := make(map[string]interface{}, len(f.Sections()))
	for _, sec := range f.Sections() {
		keys := sec.Keys()
		if len(keys) == 0 {
			continue
		}
		m := make(map[string]interface{}, len(keys))
		for _, key := range keys {
			m[strings.ToLower(key.Name())] = key.Value()
		}
		out[normalizeSection(sec.Name())] = m
	}
	return out, nil
}

// Marshal renders a nested map back to INI bytes with deterministic
// section and key order.
func (p *INIParser) Marshal(m map[string]interface{}) ([]byte, error) {
	f := ini.Empty()

	sections := make([]string, 0, len(m))
	for name := range m {
		sections = append(sections, name)
	}
	sort.Strings(sections)

	for _, name := range sections {
		child, ok := m[name].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("section %q is not a map", name)
		}
		sec := f.Section(name)

		keys := make([]string, 0, len(child))
		for k := range child {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if _, err := sec.NewKey(k, formatINIValue(child[k])); err != nil {
				return nil, fmt.Errorf("failed to set %s.%s: %w", name, k, err)
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write ini: %w", err)
	}
	return buf.Bytes(), nil
}

// normalizeSection lowercases a section name and drops dots so section
// lookups are case-insensitive and koanf path-safe.
func normalizeSection(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), ".", "")
}

// formatINIValue renders a config value as an INI string. Slices become
// comma-separated lists, everything else uses its default formatting.
func formatINIValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
