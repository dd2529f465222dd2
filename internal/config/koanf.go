// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order of
// priority. The first file found wins; when none exists the first path is
// materialized with defaults.
var DefaultConfigPaths = []string{
	"config/config.ini",
	"config.ini",
	"/config/config.ini",
}

// ConfigPathEnvVar overrides the config file path. It may point at a
// directory, in which case config.ini inside it is used.
const ConfigPathEnvVar = "PAS_CONFIG"

// configFileName is appended when the configured path is a directory.
const configFileName = "config.ini"

// defaultConfig returns a Config with every option at its default value.
// These are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		PlexTV: PlexTVConfig{
			Username:   "",
			Password:   "",
			Token:      "",
			ServerName: "",
		},
		Server: ServerConfig{
			Address:     "",
			SSL:         true,
			Port:        32400,
			CommandPool: 8,
		},
		Security: SecurityConfig{
			IgnoreCerts: false,
		},
		Skip: SkipConfig{
			Mode:                  ModeSkip,
			Tags:                  []string{"intro", "commercial", "advertisement"},
			Types:                 []string{"episode"},
			IgnoredLibraries:      []string{},
			LastChapter:           0.0,
			Unwatched:             true,
			FirstEpisodeSeries:    GateAlways,
			FirstEpisodeSeason:    GateAlways,
			FirstSafeTags:         []string{"credits"},
			SkipLastEpisodeSeries: GateAlways,
			SkipLastEpisodeSeason: GateAlways,
			LastSafeTags:          []string{"intro"},
			Next:                  false,
			Binge:                 0,
			BingeSafeTags:         []string{},
			BingeSameShowOnly:     true,
			SkipNextMax:           0,
		},
		Offsets: OffsetsConfig{
			Start:   2000,
			End:     1000,
			Tags:    []string{"intro"},
			Command: 500,
		},
		Volume: VolumeConfig{
			Low:  0,
			High: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Ops: OpsConfig{
			Enabled: true,
			Listen:  ":9915",
		},
	}
}

// Load resolves the config file path (PAS_CONFIG, then the default search
// paths), materializes missing options into it, and loads the layered
// configuration. This is the entrypoint the CLI uses.
func Load() (*Config, error) {
	path := FindConfigFile()
	if err := Materialize(path); err != nil {
		// Read-only config volumes are fine; the loaded values are
		// complete either way because defaults layer underneath.
		fmt.Fprintf(os.Stderr, "warning: could not materialize config %s: %v\n", path, err)
	}
	return LoadFile(path)
}

// LoadFile loads configuration with Koanf layering:
//  1. Defaults from the Config struct
//  2. The INI file at path (skipped when absent)
//  3. PAS_* environment variables (highest priority)
//
// List options are post-processed from comma-separated strings established
// by any layer, then the result is normalized and validated.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processListFields(k); err != nil {
		return nil, fmt.Errorf("failed to process list fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// FindConfigFile resolves the config file path. PAS_CONFIG wins when set
// (a directory is joined with config.ini); otherwise the first existing
// default path is used, falling back to the first default path so a fresh
// install materializes there.
func FindConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if info, err := os.Stat(envPath); err == nil && info.IsDir() {
			return filepath.Join(envPath, configFileName)
		}
		return envPath
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return DefaultConfigPaths[0]
}

// listConfigPaths lists the options parsed as comma-separated lists.
var listConfigPaths = []string{
	"skip.tags",
	"skip.types",
	"skip.ignored-libraries",
	"skip.first-safe-tags",
	"skip.last-safe-tags",
	"skip.binge-safe-tags",
	"offsets.tags",
}

// processListFields converts comma-separated string values (from the INI
// file or env vars) to string slices for the known list options. Values
// that are already slices came from the defaults layer and pass through.
func processListFields(k *koanf.Koanf) error {
	for _, path := range listConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok {
			continue
		}
		if err := k.Set(path, splitList(strVal)); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// splitList turns a comma-separated option into a trimmed, lowercased
// slice. Interior spaces survive so multi-word library titles and chapter
// titles keep matching. An empty or blank option yields an empty list,
// which deliberately clears the default.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envTransformFunc maps PAS_* environment variables to koanf config paths.
// Unmapped variables return "" and are skipped, which keeps unrelated
// environment noise out of the configuration.
//
// Examples:
//   - PAS_TOKEN -> plextv.token
//   - PAS_ADDRESS -> server.address
//   - PAS_OFFSET_START -> offsets.start
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// [Plex.tv]
		"pas_username":   "plextv.username",
		"pas_password":   "plextv.password",
		"pas_token":      "plextv.token",
		"pas_servername": "plextv.servername",

		// [Server]
		"pas_address":      "server.address",
		"pas_ssl":          "server.ssl",
		"pas_port":         "server.port",
		"pas_command_pool": "server.command-pool",

		// [Security]
		"pas_ignore_certs": "security.ignore-certs",

		// [Skip]
		"pas_mode":                     "skip.mode",
		"pas_tags":                     "skip.tags",
		"pas_types":                    "skip.types",
		"pas_ignored_libraries":        "skip.ignored-libraries",
		"pas_last_chapter":             "skip.last-chapter",
		"pas_unwatched":                "skip.unwatched",
		"pas_first_episode_series":     "skip.first-episode-series",
		"pas_first_episode_season":     "skip.first-episode-season",
		"pas_first_safe_tags":          "skip.first-safe-tags",
		"pas_skip_last_episode_series": "skip.skip-last-episode-series",
		"pas_skip_last_episode_season": "skip.skip-last-episode-season",
		"pas_last_safe_tags":           "skip.last-safe-tags",
		"pas_next":                     "skip.next",
		"pas_binge":                    "skip.binge",
		"pas_binge_safe_tags":          "skip.binge-safe-tags",
		"pas_binge_same_show_only":     "skip.binge-same-show-only",
		"pas_skip_next_max":            "skip.skip-next-max",

		// [Offsets]
		"pas_offset_start":   "offsets.start",
		"pas_offset_end":     "offsets.end",
		"pas_offset_command": "offsets.command",
		"pas_offset_tags":    "offsets.tags",

		// [Volume]
		"pas_volume_low":  "volume.low",
		"pas_volume_high": "volume.high",

		// [Logging]
		"pas_log_level":  "logging.level",
		"pas_log_format": "logging.format",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
