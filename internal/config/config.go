// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package config

import (
	"fmt"
	"strings"
)

// Skip modes. Skip issues a seek past a matched range; volume ducks audio
// for its duration and restores it afterward.
const (
	ModeSkip   = "skip"
	ModeVolume = "volume"
)

// Episode gate values for first/last-episode handling. "never" strips
// non-safe tags so those markers do not fire, "watched" strips them only
// for unwatched shows, "always" leaves the session untouched.
const (
	GateNever   = "never"
	GateWatched = "watched"
	GateAlways  = "always"
)

// Config holds all Transilio settings, loaded from the INI config file with
// PAS_* environment overrides layered on top.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values for every option
//  2. Config File: INI file (config.ini), materialized on first run
//  3. Environment Variables: PAS_* overrides
//
// Config is immutable after Load() and safe for concurrent read access
// from multiple goroutines.
type Config struct {
	PlexTV   PlexTVConfig   `koanf:"plextv"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Skip     SkipConfig     `koanf:"skip"`
	Offsets  OffsetsConfig  `koanf:"offsets"`
	Volume   VolumeConfig   `koanf:"volume"`
	Logging  LoggingConfig  `koanf:"logging"`
	Ops      OpsConfig      `koanf:"ops"`
}

// PlexTVConfig holds plex.tv account settings ([Plex.tv] section).
// Either a token or a username/password pair authenticates the account;
// servername selects which of the account's servers to control when no
// direct address is configured.
type PlexTVConfig struct {
	Username   string `koanf:"username"`
	Password   string `koanf:"password"`
	Token      string `koanf:"token"`
	ServerName string `koanf:"servername"`
}

// ServerConfig holds the direct server connection ([Server] section).
// When Address is set the controller talks to the server directly and
// skips the plex.tv resource lookup. CommandPool bounds how many player
// commands may be in flight at once.
type ServerConfig struct {
	Address     string `koanf:"address"`
	SSL         bool   `koanf:"ssl"`
	Port        int    `koanf:"port" validate:"min=1,max=65535"`
	CommandPool int    `koanf:"command-pool" validate:"min=1,max=128"`
}

// Scheme returns "https" or "http" depending on the ssl option.
func (s ServerConfig) Scheme() string {
	if s.SSL {
		return "https"
	}
	return "http"
}

// URI returns the full base URL for the configured address, or "" when no
// direct address is configured.
func (s ServerConfig) URI() string {
	if s.Address == "" {
		return ""
	}
	return fmt.Sprintf("%s://%s:%d", s.Scheme(), s.Address, s.Port)
}

// SecurityConfig holds TLS handling ([Security] section). IgnoreCerts
// disables certificate verification for both the HTTP client and the
// websocket listener; needed for servers with self-signed certificates.
type SecurityConfig struct {
	IgnoreCerts bool `koanf:"ignore-certs"`
}

// SkipConfig holds the skipping rules ([Skip] section).
type SkipConfig struct {
	// Mode selects the default intervention: ModeSkip or ModeVolume.
	// Custom entries may override it per item or per player.
	Mode string `koanf:"mode" validate:"oneof=skip volume"`

	// Tags lists marker types and chapter titles that trigger skipping
	// (lowercased; "intro", "credits", "commercial", ...).
	Tags []string `koanf:"tags"`

	// Types lists media types eligible for skipping ("episode", "movie").
	Types []string `koanf:"types"`

	// IgnoredLibraries lists library section titles that never skip.
	IgnoredLibraries []string `koanf:"ignored-libraries"`

	// LastChapter treats the final chapter as credits when its start
	// position, as a fraction of duration, exceeds this value. 0 disables.
	LastChapter float64 `koanf:"last-chapter" validate:"gte=0,lte=1"`

	// Unwatched skips content the user has not watched yet. When false,
	// unwatched items are not tracked at all.
	Unwatched bool `koanf:"unwatched"`

	// FirstEpisodeSeries/FirstEpisodeSeason gate skipping on S1E1 and
	// SnE1 respectively (GateNever, GateWatched, GateAlways). FirstSafeTags
	// survive the gate so credits can still be skipped on a pilot.
	FirstEpisodeSeries string   `koanf:"first-episode-series" validate:"oneof=never watched always"`
	FirstEpisodeSeason string   `koanf:"first-episode-season" validate:"oneof=never watched always"`
	FirstSafeTags      []string `koanf:"first-safe-tags"`

	// SkipLastEpisodeSeries/SkipLastEpisodeSeason gate skipping on the
	// final episode of a series/season the same way; LastSafeTags survive.
	SkipLastEpisodeSeries string   `koanf:"skip-last-episode-series" validate:"oneof=never watched always"`
	SkipLastEpisodeSeason string   `koanf:"skip-last-episode-season" validate:"oneof=never watched always"`
	LastSafeTags          []string `koanf:"last-safe-tags"`

	// Next advances to the next play-queue item when credits run to the
	// end of the media instead of merely seeking to the end.
	Next bool `koanf:"next"`

	// Binge suppresses skipping for the first N episodes of a binge so
	// intros still play; 0 disables. During the suppressed window only
	// BingeSafeTags fire. BingeSameShowOnly restarts the count when the
	// show changes.
	Binge             int      `koanf:"binge" validate:"gte=0"`
	BingeSafeTags     []string `koanf:"binge-safe-tags"`
	BingeSameShowOnly bool     `koanf:"binge-same-show-only"`

	// SkipNextMax caps consecutive automatic advances per binge session;
	// 0 means unlimited.
	SkipNextMax int `koanf:"skip-next-max" validate:"gte=0"`
}

// OffsetsConfig holds seek timing adjustments in milliseconds
// ([Offsets] section).
type OffsetsConfig struct {
	// Start shifts marker starts left so playback is already inside the
	// marker when the alert lands. End pads the seek target past the
	// marker end. Tags limits which marker types get the shifts.
	Start int64    `koanf:"start"`
	End   int64    `koanf:"end"`
	Tags  []string `koanf:"tags"`

	// Command delays between stop and play when advancing to the next
	// item; some players drop the play command without it.
	Command int64 `koanf:"command" validate:"gte=0"`
}

// VolumeConfig holds the duck/restore levels for volume mode
// ([Volume] section).
type VolumeConfig struct {
	Low  int `koanf:"low" validate:"min=0,max=100"`
	High int `koanf:"high" validate:"min=0,max=100"`
}

// LoggingConfig holds log output settings ([Logging] section).
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// OpsConfig holds the operational HTTP endpoint ([Ops] section). The
// server exposes /healthz, /readyz and Prometheus /metrics; it never
// exposes playback controls.
type OpsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen" validate:"omitempty,hostname_port"`
}

// normalize cleans up values that arrive free-form from the INI file or
// environment: scheme and trailing slashes are stripped from the address,
// enum options are lowercased so validation and comparisons are exact.
func (c *Config) normalize() {
	c.Server.Address = normalizeAddress(c.Server.Address)

	c.Skip.Mode = strings.ToLower(strings.TrimSpace(c.Skip.Mode))
	c.Skip.FirstEpisodeSeries = strings.ToLower(strings.TrimSpace(c.Skip.FirstEpisodeSeries))
	c.Skip.FirstEpisodeSeason = strings.ToLower(strings.TrimSpace(c.Skip.FirstEpisodeSeason))
	c.Skip.SkipLastEpisodeSeries = strings.ToLower(strings.TrimSpace(c.Skip.SkipLastEpisodeSeries))
	c.Skip.SkipLastEpisodeSeason = strings.ToLower(strings.TrimSpace(c.Skip.SkipLastEpisodeSeason))

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	c.Ops.Listen = strings.TrimSpace(c.Ops.Listen)
}

// normalizeAddress strips http:// and https:// prefixes (the scheme comes
// from the ssl option) and any trailing slashes.
func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	for _, prefix := range []string{"http://", "https://"} {
		address = strings.TrimPrefix(address, prefix)
	}
	return strings.TrimRight(address, "/")
}
