// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// writeConfigFile writes INI content into a temp dir and returns the path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 32400 {
		t.Errorf("Server.Port = %d, want 32400", cfg.Server.Port)
	}
	if !cfg.Server.SSL {
		t.Error("Server.SSL = false, want true")
	}
	if cfg.Server.CommandPool != 8 {
		t.Errorf("Server.CommandPool = %d, want 8", cfg.Server.CommandPool)
	}
	if cfg.Skip.Mode != ModeSkip {
		t.Errorf("Skip.Mode = %q, want %q", cfg.Skip.Mode, ModeSkip)
	}
	wantTags := []string{"intro", "commercial", "advertisement"}
	if !reflect.DeepEqual(cfg.Skip.Tags, wantTags) {
		t.Errorf("Skip.Tags = %v, want %v", cfg.Skip.Tags, wantTags)
	}
	if !reflect.DeepEqual(cfg.Skip.Types, []string{"episode"}) {
		t.Errorf("Skip.Types = %v, want [episode]", cfg.Skip.Types)
	}
	if !cfg.Skip.Unwatched {
		t.Error("Skip.Unwatched = false, want true")
	}
	if cfg.Skip.FirstEpisodeSeries != GateAlways {
		t.Errorf("Skip.FirstEpisodeSeries = %q, want %q", cfg.Skip.FirstEpisodeSeries, GateAlways)
	}
	if cfg.Offsets.Start != 2000 || cfg.Offsets.End != 1000 || cfg.Offsets.Command != 500 {
		t.Errorf("Offsets = %+v, want start=2000 end=1000 command=500", cfg.Offsets)
	}
	if cfg.Volume.Low != 0 || cfg.Volume.High != 100 {
		t.Errorf("Volume = %+v, want low=0 high=100", cfg.Volume)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v, want level=info format=console", cfg.Logging)
	}
	if !cfg.Ops.Enabled || cfg.Ops.Listen != ":9915" {
		t.Errorf("Ops = %+v, want enabled=true listen=:9915", cfg.Ops)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
[Plex.tv]
token = abc123def456ghi789jk

[Server]
address = https://plex.example.com/
ssl = false
port = 32500

[Skip]
mode = volume
tags = Intro, Credits
last-chapter = 0.8

[Offsets]
start = 3000
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.PlexTV.Token != "abc123def456ghi789jk" {
		t.Errorf("PlexTV.Token = %q", cfg.PlexTV.Token)
	}
	// Scheme and trailing slash are stripped; the ssl option decides scheme.
	if cfg.Server.Address != "plex.example.com" {
		t.Errorf("Server.Address = %q, want plex.example.com", cfg.Server.Address)
	}
	if cfg.Server.SSL {
		t.Error("Server.SSL = true, want false")
	}
	if got := cfg.Server.URI(); got != "http://plex.example.com:32500" {
		t.Errorf("Server.URI() = %q", got)
	}
	if cfg.Skip.Mode != ModeVolume {
		t.Errorf("Skip.Mode = %q, want volume", cfg.Skip.Mode)
	}
	if want := []string{"intro", "credits"}; !reflect.DeepEqual(cfg.Skip.Tags, want) {
		t.Errorf("Skip.Tags = %v, want %v", cfg.Skip.Tags, want)
	}
	if cfg.Skip.LastChapter != 0.8 {
		t.Errorf("Skip.LastChapter = %v, want 0.8", cfg.Skip.LastChapter)
	}
	if cfg.Offsets.Start != 3000 {
		t.Errorf("Offsets.Start = %d, want 3000", cfg.Offsets.Start)
	}
	// Untouched options keep their defaults.
	if cfg.Offsets.End != 1000 {
		t.Errorf("Offsets.End = %d, want default 1000", cfg.Offsets.End)
	}
}

func TestLoadFileSectionCaseInsensitive(t *testing.T) {
	path := writeConfigFile(t, `
[plex.TV]
Token = abc123def456ghi789jk

[SERVER]
PORT = 12345
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.PlexTV.Token != "abc123def456ghi789jk" {
		t.Errorf("PlexTV.Token = %q", cfg.PlexTV.Token)
	}
	if cfg.Server.Port != 12345 {
		t.Errorf("Server.Port = %d, want 12345", cfg.Server.Port)
	}
}

func TestLoadFileEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
[Server]
port = 32500

[Skip]
mode = skip
`)

	t.Setenv("PAS_PORT", "32600")
	t.Setenv("PAS_MODE", "VOLUME")
	t.Setenv("PAS_TAGS", "Intro, Commercial Break")
	t.Setenv("PAS_SSL", "false")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Server.Port != 32600 {
		t.Errorf("Server.Port = %d, want env override 32600", cfg.Server.Port)
	}
	if cfg.Skip.Mode != ModeVolume {
		t.Errorf("Skip.Mode = %q, want env override volume", cfg.Skip.Mode)
	}
	// Multi-word entries keep interior spaces, lowercased.
	if want := []string{"intro", "commercial break"}; !reflect.DeepEqual(cfg.Skip.Tags, want) {
		t.Errorf("Skip.Tags = %v, want %v", cfg.Skip.Tags, want)
	}
	if cfg.Server.SSL {
		t.Error("Server.SSL = true, want env override false")
	}
}

func TestLoadFileEmptyListClearsDefault(t *testing.T) {
	path := writeConfigFile(t, `
[Offsets]
tags =
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(cfg.Offsets.Tags) != 0 {
		t.Errorf("Offsets.Tags = %v, want empty", cfg.Offsets.Tags)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad mode",
			mutate:  func(c *Config) { c.Skip.Mode = "mute" },
			wantErr: "skip.mode must be one of: skip volume",
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port must be at least 1",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port must be at most 65535",
		},
		{
			name:    "volume above 100",
			mutate:  func(c *Config) { c.Volume.High = 150 },
			wantErr: "volume.high must be at most 100",
		},
		{
			name:    "last chapter above 1",
			mutate:  func(c *Config) { c.Skip.LastChapter = 1.5 },
			wantErr: "skip.last-chapter must be at most 1",
		},
		{
			name:    "bad episode gate",
			mutate:  func(c *Config) { c.Skip.FirstEpisodeSeries = "sometimes" },
			wantErr: "skip.first-episode-series must be one of: never watched always",
		},
		{
			name:    "negative binge",
			mutate:  func(c *Config) { c.Skip.Binge = -1 },
			wantErr: "skip.binge must be at least 0",
		},
		{
			name:    "bad ops listen",
			mutate:  func(c *Config) { c.Ops.Listen = "no port here" },
			wantErr: "ops.listen must be a host:port listen address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMaterializeCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "config.ini")

	if err := Materialize(path); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("materialized file missing: %v", err)
	}
	content := string(data)
	for _, want := range []string{"[Plex.tv]", "[Server]", "[Security]", "[Skip]", "[Offsets]", "[Volume]", "[Logging]", "[Ops]"} {
		if !strings.Contains(content, want) {
			t.Errorf("materialized config missing section %s", want)
		}
	}

	// The materialized file must load back to the defaults.
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile(materialized) error = %v", err)
	}
	if !reflect.DeepEqual(cfg, defaultConfig()) {
		t.Errorf("materialized config loads to %+v, want defaults", cfg)
	}
}

func TestMaterializePreservesUserContent(t *testing.T) {
	path := writeConfigFile(t, `; my notes
[Server]
address = plex.local
custom-option = keepme

[Extra]
something = else
`)

	if err := Materialize(path); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	content := string(data)

	for _, want := range []string{"my notes", "plex.local", "custom-option", "[Extra]", "something"} {
		if !strings.Contains(content, want) {
			t.Errorf("materialized config lost user content %q", want)
		}
	}
	// Missing options were added.
	for _, want := range []string{"command-pool", "binge-same-show-only", "last-chapter"} {
		if !strings.Contains(content, want) {
			t.Errorf("materialized config missing added option %q", want)
		}
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Address != "plex.local" {
		t.Errorf("Server.Address = %q, want plex.local", cfg.Server.Address)
	}
}

func TestMaterializeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := Materialize(path); err != nil {
		t.Fatalf("first Materialize() error = %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if err := Materialize(path); err != nil {
		t.Fatalf("second Materialize() error = %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(first) != string(second) {
		t.Error("Materialize rewrote an already complete file")
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Run("env var points at file", func(t *testing.T) {
		path := writeConfigFile(t, "[Server]\nport = 32400\n")
		t.Setenv(ConfigPathEnvVar, path)
		if got := FindConfigFile(); got != path {
			t.Errorf("FindConfigFile() = %q, want %q", got, path)
		}
	})

	t.Run("env var points at directory", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(ConfigPathEnvVar, dir)
		want := filepath.Join(dir, "config.ini")
		if got := FindConfigFile(); got != want {
			t.Errorf("FindConfigFile() = %q, want %q", got, want)
		}
	})

	t.Run("env var points at missing file", func(t *testing.T) {
		want := filepath.Join(t.TempDir(), "nope.ini")
		t.Setenv(ConfigPathEnvVar, want)
		if got := FindConfigFile(); got != want {
			t.Errorf("FindConfigFile() = %q, want %q", got, want)
		}
	})
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plex.example.com", "plex.example.com"},
		{"http://plex.example.com", "plex.example.com"},
		{"https://plex.example.com/", "plex.example.com"},
		{"https://plex.example.com///", "plex.example.com"},
		{"  192.168.1.10 ", "192.168.1.10"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeAddress(tt.in); got != tt.want {
			t.Errorf("normalizeAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestServerURI(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"ssl", ServerConfig{Address: "plex.local", SSL: true, Port: 32400}, "https://plex.local:32400"},
		{"plain", ServerConfig{Address: "plex.local", SSL: false, Port: 32400}, "http://plex.local:32400"},
		{"no address", ServerConfig{SSL: true, Port: 32400}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.URI(); got != tt.want {
				t.Errorf("URI() = %q, want %q", got, tt.want)
			}
		})
	}
}
