// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package media

import (
	"strings"

	"github.com/coreos/go-semver/semver"
)

// brokenPlayers maps a player product to the first version shipped without
// the "Advertise as Player" remote-control surface. Players at or past
// that version accept commands over the server proxy but never execute
// them, so admitting them only produces silent failures.
var brokenPlayers = map[string]string{
	"Plex Web":         "4.83.2",
	"Plex for Windows": "1.46.1",
	"Plex for Mac":     "1.46.1",
	"Plex for Linux":   "1.46.1",
}

// seekFudges maps a player product to how far short of the item end a
// seek target must stay, in milliseconds. The Roku client locks up when
// told to seek into the final moments of an item.
var seekFudges = map[string]int64{
	"Plex for Roku": 1500,
}

// SeekFudge returns the product's end-of-item seek safety margin in
// milliseconds, zero for products without one.
func (p PlayerInfo) SeekFudge() int64 {
	return seekFudges[p.Product]
}

// Broken reports whether the player runs a version known to ignore remote
// control commands. Unknown products and unparseable versions pass.
func (p PlayerInfo) Broken() bool {
	bad, ok := brokenPlayers[p.Product]
	if !ok || p.Version == "" {
		return false
	}
	have, err := parseVersion(p.Version)
	if err != nil {
		return false
	}
	return !have.LessThan(*semver.New(bad))
}

// parseVersion normalizes a player-reported version to strict semver:
// the build suffix after "-" is dropped and the release is padded or
// truncated to three components. Desktop builds report four-component
// versions like "1.46.1.3724-a7b4ffea".
func parseVersion(version string) (*semver.Version, error) {
	version, _, _ = strings.Cut(version, "-")
	parts := strings.Split(version, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return semver.NewVersion(strings.Join(parts, "."))
}
