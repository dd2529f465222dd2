// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tomtom215/transilio/internal/auditor"
	"github.com/tomtom215/transilio/internal/entries"
	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/plex"
)

var (
	convertPath  string
	convertGuids bool
	convertKeys  bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Rewrite custom entry identifiers",
	Long: `Rewrite the identifiers in a custom marker file or directory:
rating keys to external guids for entries that should survive a server
rebuild, or guids back to this server's rating keys so the engine skips
the resolution pass at startup.`,
	Args: cobra.NoArgs,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	f := convertCmd.Flags()
	f.StringVarP(&convertPath, "path", "p", "", "custom JSON file or directory (default: the config directory)")
	f.BoolVar(&convertGuids, "to-guids", false, "rewrite rating key entries to external guids")
	f.BoolVar(&convertKeys, "to-ratingkeys", false, "rewrite guid entries to server rating keys")
	convertCmd.MarkFlagsMutuallyExclusive("to-guids", "to-ratingkeys")
	convertCmd.MarkFlagsOneRequired("to-guids", "to-ratingkeys")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	path := convertPath
	if path == "" {
		path = filepath.Dir(cfgPath)
	}

	client, err := plex.Bootstrap(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("connect to plex: %w", err)
	}
	lookup, err := entries.BuildLookup(cmd.Context(), client)
	if err != nil {
		return fmt.Errorf("index library: %w", err)
	}

	opts := auditor.Options{Rewrite: auditor.RewriteGuids}
	if convertKeys {
		opts.Rewrite = auditor.RewriteRatingKeys
	}

	res, err := auditor.New(opts, lookup).Run(path)
	if err != nil {
		return err
	}

	logging.Info().
		Int("files", res.Files).
		Int("markers", res.Markers).
		Msg("Conversion complete")
	return nil
}
