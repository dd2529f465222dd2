// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package main

import (
	"fmt"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/transilio/internal/auditor"
	"github.com/tomtom215/transilio/internal/entries"
	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/plex"
)

var (
	auditPath        string
	auditOffset      int64
	auditStartOffset int64
	auditEndOffset   int64
	auditDuration    int64
	auditWriteGuids  bool
	auditWriteKeys   bool
	auditDumpGuids   string
	auditDumpKeys    string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit and adjust custom marker files",
	Long: `Walk a custom marker file or directory, shift marker timestamps,
flag suspect spans and optionally rewrite entry identifiers between
rating keys and external guids. Rewrites and dumps contact the Plex
server; offset passes run offline.`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	f := auditCmd.Flags()
	f.StringVarP(&auditPath, "path", "p", "", "custom JSON file or directory (default: the config directory)")
	f.Int64VarP(&auditOffset, "offset", "o", 0, "milliseconds to shift both marker ends")
	f.Int64Var(&auditStartOffset, "startoffset", 0, "milliseconds to shift marker starts")
	f.Int64Var(&auditEndOffset, "endoffset", 0, "milliseconds to shift marker ends")
	f.Int64VarP(&auditDuration, "duration", "d", 0, "expected marker span in milliseconds")
	f.BoolVarP(&auditWriteGuids, "write_guids", "g", false, "rewrite rating key entries to external guids")
	f.BoolVar(&auditWriteKeys, "write_ratingkeys", false, "rewrite guid entries to server rating keys")
	f.StringVar(&auditDumpGuids, "dump_guids", "", "print an item's server markers keyed by guid")
	f.StringVar(&auditDumpKeys, "dump_ratingkeys", "", "print an item's server markers keyed by rating key")
	auditCmd.MarkFlagsMutuallyExclusive("write_guids", "write_ratingkeys")
	auditCmd.MarkFlagsMutuallyExclusive("dump_guids", "dump_ratingkeys")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	path := auditPath
	if path == "" {
		path = filepath.Dir(cfgPath)
	}

	needServer := auditWriteGuids || auditWriteKeys || auditDumpGuids != "" || auditDumpKeys != ""

	var client *plex.Client
	var lookup *entries.Lookup
	if needServer {
		client, err = plex.Bootstrap(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("connect to plex: %w", err)
		}
		lookup, err = entries.BuildLookup(cmd.Context(), client)
		if err != nil {
			return fmt.Errorf("index library: %w", err)
		}
	}

	if auditDumpGuids != "" || auditDumpKeys != "" {
		id, byGUID := auditDumpGuids, true
		if auditDumpKeys != "" {
			id, byGUID = auditDumpKeys, false
		}
		doc, err := auditor.Dump(cmd.Context(), client, lookup, id, byGUID)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(doc, "", "    ")
		if err != nil {
			return fmt.Errorf("encode markers: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	opts := auditor.Options{
		Offset:      auditOffset,
		StartOffset: auditStartOffset,
		EndOffset:   auditEndOffset,
		Duration:    auditDuration,
	}
	switch {
	case auditWriteGuids:
		opts.Rewrite = auditor.RewriteGuids
	case auditWriteKeys:
		opts.Rewrite = auditor.RewriteRatingKeys
	}

	res, err := auditor.New(opts, lookup).Run(path)
	if err != nil {
		return err
	}

	logging.Info().
		Int("files", res.Files).
		Int("markers", res.Markers).
		Int("adjusted", res.Adjusted).
		Int("clamped", res.Clamped).
		Int("negative_spans", res.NegativeSpans).
		Int("duration_mismatches", res.DurationMismatches).
		Msg("Audit complete")
	return nil
}
