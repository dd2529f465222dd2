// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Package auditor maintains custom-entries files from the command line:
// shifting marker offsets, validating marker spans, rewriting item
// identifiers between rating keys and GUIDs, and dumping an item's
// server-side markers as a fragment to paste into custom.json.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tomtom215/transilio/internal/entries"
	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/models"
)

// customExt is the file extension audited when walking a directory.
var customExt = filepath.Ext(entries.DefaultFileName)

// Rewrite selects the identifier rewrite applied after offset math.
type Rewrite int

const (
	// RewriteNone leaves identifiers as written.
	RewriteNone Rewrite = iota
	// RewriteGuids replaces server-local rating keys with external GUIDs.
	RewriteGuids
	// RewriteRatingKeys replaces external GUIDs with rating keys.
	RewriteRatingKeys
)

// Options mirrors the audit command flags. Offsets are milliseconds and
// zero disables an option, matching the flag defaults.
type Options struct {
	// Offset shifts both marker ends. When set, StartOffset and
	// EndOffset are ignored.
	Offset      int64
	StartOffset int64
	EndOffset   int64

	// Duration warns on markers whose span differs from it.
	Duration int64

	Rewrite Rewrite
}

// Result counts what one run touched, for the command's summary line.
type Result struct {
	Files              int
	Markers            int
	Adjusted           int
	Clamped            int
	NegativeSpans      int
	DurationMismatches int
}

// Auditor rewrites custom-entries files in place.
type Auditor struct {
	opts   Options
	lookup *entries.Lookup
}

// New builds an auditor. The lookup is only consulted for identifier
// rewrites and may be nil otherwise; building one costs a library walk.
func New(opts Options, lookup *entries.Lookup) *Auditor {
	return &Auditor{opts: opts, lookup: lookup}
}

// Run audits the custom-entries file at path, or every custom-entries
// file under it when path is a directory. Audited files are written back
// in place, which normalizes formatting even when nothing changed.
func (a *Auditor) Run(path string) (Result, error) {
	var res Result
	if a.opts.Rewrite != RewriteNone && a.lookup == nil {
		return res, errors.New("identifier rewrite requires a library lookup")
	}

	info, err := os.Stat(path)
	if err != nil {
		return res, fmt.Errorf("invalid path %s: %w", path, err)
	}

	if !info.IsDir() {
		return res, a.processFile(path, &res)
	}

	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return a.processFile(p, &res)
	})
	return res, walkErr
}

// processFile audits one file. Files without the custom-entries extension
// are skipped so a config directory with INI and log files can be walked
// wholesale.
func (a *Auditor) processFile(path string, res *Result) error {
	if filepath.Ext(path) != customExt {
		logging.Debug().Str("path", path).Msg("Skipping non-entries file")
		return nil
	}

	doc, err := entries.Load(path)
	if err != nil {
		return err
	}
	logging.Info().Str("path", path).Msg("Auditing custom entries")

	a.auditMarkers(doc, res)

	switch a.opts.Rewrite {
	case RewriteGuids:
		doc.ConvertToGuids(a.lookup)
	case RewriteRatingKeys:
		doc.ConvertToRatingKeys(a.lookup)
	case RewriteNone:
	}

	if err := doc.Save(path); err != nil {
		return err
	}
	res.Files++
	return nil
}

func (a *Auditor) auditMarkers(doc *entries.Document, res *Result) {
	for key, markers := range doc.Markers {
		for i := range markers {
			a.auditMarker(key, &markers[i], res)
		}
	}
}

// auditMarker validates one marker and applies the configured shifts.
// Values that cannot be read as milliseconds are reported and left
// untouched; the session layer rejects them at play time anyway.
func (a *Auditor) auditMarker(key string, m *entries.MarkerEntry, res *Result) {
	res.Markers++

	start, err := m.StartMillis()
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Marker start is unusable, skipping")
		return
	}
	end, err := m.EndMillis()
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Marker end is unusable, skipping")
		return
	}

	// The span is judged before shifting so a broken marker is reported
	// even when the shift would mask it.
	span := end - start
	if span < 0 {
		logging.Warn().Str("key", key).Int64("span", span).
			Msg("Marker span is negative, likely invalid")
		res.NegativeSpans++
	}
	if a.opts.Duration != 0 && span != a.opts.Duration {
		logging.Warn().Str("key", key).Int64("span", span).Int64("expected", a.opts.Duration).
			Msg("Marker span does not match expected duration")
		res.DurationMismatches++
	}

	startShift, endShift := a.shifts()
	if startShift != 0 {
		logging.Info().Str("key", key).Int64("offset", startShift).Int64("start", start).
			Msg("Adjusting marker start")
		start += startShift
		if start < 0 {
			logging.Warn().Str("key", key).Int64("start", start).Msg("Clamping negative start to 0")
			start = 0
			res.Clamped++
		}
		m.Start = start
		res.Adjusted++
	}
	if endShift != 0 {
		logging.Info().Str("key", key).Int64("offset", endShift).Int64("end", end).
			Msg("Adjusting marker end")
		end += endShift
		if end < 0 {
			logging.Warn().Str("key", key).Int64("end", end).Msg("Clamping negative end to 0")
			end = 0
			res.Clamped++
		}
		m.End = end
		res.Adjusted++
	}
}

// shifts returns the start and end adjustments. The combined offset wins
// over the individual ones, matching the flag precedence.
func (a *Auditor) shifts() (int64, int64) {
	if a.opts.Offset != 0 {
		return a.opts.Offset, a.opts.Offset
	}
	return a.opts.StartOffset, a.opts.EndOffset
}

// ItemSource fetches one library item with markers included. Satisfied by
// the plex client.
type ItemSource interface {
	Metadata(ctx context.Context, ratingKey string) (*models.Metadata, error)
}

// Dump fetches an item's server-side markers and renders them as a
// custom-entries document keyed by rating key, or by GUID when byGUID is
// set. The id may itself be either form; GUIDs need the lookup.
func Dump(ctx context.Context, src ItemSource, lookup *entries.Lookup, id string, byGUID bool) (*entries.Document, error) {
	ratingKey := id
	if entries.IsGUID(id) {
		if lookup == nil {
			return nil, errors.New("resolving a guid requires a library lookup")
		}
		key, ok := lookup.RatingKey(id)
		if !ok {
			return nil, fmt.Errorf("no library item for %s", id)
		}
		ratingKey = key
	}

	item, err := src.Metadata(ctx, ratingKey)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata for %s: %w", ratingKey, err)
	}

	key := ratingKey
	if byGUID {
		if lookup == nil {
			return nil, errors.New("dumping by guid requires a library lookup")
		}
		guid, ok := lookup.GUIDFor(ratingKey)
		if !ok {
			return nil, fmt.Errorf("no external guid for item %s", ratingKey)
		}
		key = guid
	}

	doc := entries.New()
	for _, marker := range item.Markers {
		doc.Markers[key] = append(doc.Markers[key], entries.MarkerEntry{
			Start: marker.StartTimeOffset,
			End:   marker.EndTimeOffset,
			Type:  marker.Type,
		})
	}
	if len(item.Markers) == 0 {
		logging.Warn().Str("key", ratingKey).Msg("Item has no server-side markers")
	}
	return doc, nil
}
