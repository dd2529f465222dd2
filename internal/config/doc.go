// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

/*
Package config provides centralized configuration management for Transilio.

Configuration lives in an INI file. Missing sections and options are
materialized with defaults and the file is rewritten in place, preserving
user-supplied keys, unknown sections, and comments, so a fresh install can
start from an empty directory and end up with a fully commented template.

# Configuration Sources

Settings are resolved with Koanf v2 layering, last writer wins:

 1. Built-in defaults (structs provider)
 2. INI config file (custom gopkg.in/ini.v1-backed parser)
 3. PAS_* environment variables

# Configuration Structure

The INI file carries eight sections:

  - [Plex.tv]: plex.tv account (username, password, token, servername)
  - [Server]: direct server connection (address, ssl, port, command-pool)
  - [Security]: TLS handling (ignore-certs)
  - [Skip]: what to skip and when (mode, tags, types, binge settings, gates)
  - [Offsets]: seek timing adjustments in milliseconds
  - [Volume]: low/high levels for volume mode
  - [Logging]: level and output format
  - [Ops]: health and metrics HTTP endpoint (enabled, listen)

Section and key lookup is case-insensitive; "[Plex.tv]", "[plex.tv]" and
"[PLEX.TV]" are the same section. Comma-separated list options are split,
trimmed, and lowercased.

# Environment Variables

PAS_CONFIG overrides the config file path. PAS_VERBOSE=true forces trace
logging (handled by internal/logging). Every INI option has a PAS_* override,
e.g.:

  - PAS_TOKEN: [Plex.tv] token
  - PAS_ADDRESS, PAS_PORT, PAS_SSL: [Server]
  - PAS_MODE, PAS_TAGS, PAS_BINGE: [Skip]
  - PAS_OFFSET_START, PAS_OFFSET_END: [Offsets]
  - PAS_LOG_LEVEL, PAS_LOG_FORMAT: [Logging]

# Usage Example

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal("failed to load config:", err)
	}
	fmt.Println("server:", cfg.Server.URI())

# Validation

Validate() checks enum and range constraints (mode, episode gates, port,
volume levels, last-chapter fraction) via go-playground/validator struct tags
and reports violations by their INI path (for example "skip.mode must be one
of: skip volume"). Connection credentials are deliberately not required here:
a default config must load cleanly; authentication failures surface at
startup when the server client is built.

# Thread Safety

Config is immutable after Load() and safe for concurrent reads.
*/
package config
