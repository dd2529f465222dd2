// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Package models defines the Plex Media Server wire types Transilio consumes:
// websocket notifications, playback session metadata, library items, play
// queues, player timelines, and plex.tv account resources.
//
// Server REST endpoints are requested with Accept: application/json and
// decoded with goccy/go-json. Player endpoints speak XML only, so the
// timeline types carry encoding/xml tags instead.
package models
