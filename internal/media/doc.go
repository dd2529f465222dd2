// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Package media models a single in-flight playback session and the skip
// rules resolved for it.
//
// A Session is created from one /status/sessions record plus the
// custom-entries document. Construction layers entry matches over the
// configured defaults in ancestor order (show, then season, then the item
// itself), so the most specific declaration wins, then overlays
// player-scoped overrides (mode, command delay, skip-next, direct URL).
// The resolved rule set (offsets, tags, mode, custom markers and the
// filtered server markers/chapters) is what the engine evaluates each
// tick.
//
// Runtime state (position, playback state, seek corridor, volume cache)
// is guarded by a per-session mutex: the alert worker writes it through
// UpdateOffset, the tick worker reads projections, and commander workers
// record seeks. The projected position advances with wall-clock time while
// the player reports "playing", so a skip can fire between alerts.
//
// The seek corridor replaces a "seeking" boolean: BeginSeek records
// (origin, target) and UpdateOffset rejects any alert whose offset lies
// strictly inside that range, since such alerts describe a position the
// player already left. An offset at or past the target confirms the seek;
// one below the origin is a manual user seek. Both clear the corridor.
package media
