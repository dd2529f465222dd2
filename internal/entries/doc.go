// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Package entries manages the custom-entries document: the user's
// declarative overrides for what gets skipped and how.
//
// The document is a JSON file (custom.json, next to the config file) with
// six optional sections: per-item markers, per-item offsets, per-item tags,
// allow/block lists (users, clients, keys, skip-next), per-client base URL
// overrides, and per-item-or-client mode overrides.
//
// Item identifiers may be server-local rating keys ("12345") or external
// GUIDs ("imdb://tt0944947", "tvdb://121361.3.9" for S3E9 of a show). GUIDs
// are resolved against a one-shot library walk into bidirectional lookups;
// ConvertToRatingKeys runs at engine startup, both converters back the
// transilio convert command.
//
// The schema is strictly additive: unknown top-level sections and unknown
// marker fields survive a load/save round trip.
package entries
