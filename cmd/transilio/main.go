// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Transilio watches a Plex server's playback notifications and skips
// intros, credits and commercials on the players it controls. The bare
// command runs the daemon; maintenance tasks live on subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/transilio/internal/config"
	"github.com/tomtom215/transilio/internal/logging"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "transilio",
	Short: "Automatic intro, credits and commercial skipping for Plex",
	Long: `Transilio connects to a Plex server, listens for playback
notifications and seeks players past intro, credits and commercial
markers, or ducks the volume across them. Behavior is driven by the
server's own markers plus a custom-entries file for overrides.

Running transilio with no subcommand starts the daemon.`,
	Args:         cobra.NoArgs,
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "",
		"configuration file path (default: $PAS_CONFIG or the config search path)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration path (--config wins over
// PAS_CONFIG and the search path), materializes missing defaults into the
// file, loads the layered configuration and brings up logging. Every
// command calls this first.
func loadConfig() (*config.Config, string, error) {
	path := configFlag
	if path == "" {
		path = config.FindConfigFile()
	}

	if err := config.Materialize(path); err != nil {
		// Read-only config volumes are fine; defaults layer underneath.
		fmt.Fprintf(os.Stderr, "warning: could not materialize config %s: %v\n", path, err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, "", err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	return cfg, path, nil
}
