// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package entries

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/models"
)

// Library enumerates server library content for identifier resolution.
// *plex.Client satisfies it.
type Library interface {
	Sections(ctx context.Context) ([]models.Directory, error)
	SectionItems(ctx context.Context, sectionKey, mediaType string) ([]models.Metadata, error)
}

// Lookup holds the bidirectional identifier maps built from one library
// walk. Read-only after BuildLookup returns.
type Lookup struct {
	guidToKey map[string]string
	keyToGUID map[string]string
}

// RatingKey resolves an external identifier (including season/episode
// scoped forms) to a server-local rating key.
func (l *Lookup) RatingKey(id string) (string, bool) {
	g, ok := ParseGUID(id)
	if !ok {
		return "", false
	}
	key, ok := l.guidToKey[g.String()]
	return key, ok
}

// GUIDFor resolves a rating key back to its preferred external identifier.
// Episodes and seasons prefer the show-scoped composite form so entries
// stay portable across servers.
func (l *Lookup) GUIDFor(ratingKey string) (string, bool) {
	guid, ok := l.keyToGUID[ratingKey]
	return guid, ok
}

// Size returns how many external identifiers resolved.
func (l *Lookup) Size() int { return len(l.guidToKey) }

// add records one identifier pair. First write wins in both directions,
// so callers insert preferred forms first.
func (l *Lookup) add(guid, ratingKey string) {
	if guid == "" || ratingKey == "" {
		return
	}
	guid = strings.ToLower(guid)
	if _, exists := l.guidToKey[guid]; !exists {
		l.guidToKey[guid] = ratingKey
	}
	if _, exists := l.keyToGUID[ratingKey]; !exists {
		l.keyToGUID[ratingKey] = guid
	}
}

// BuildLookup walks every movie and show library section and indexes
// external GUIDs against rating keys. Shows contribute three identifier
// forms: the show itself, season-scoped, and episode-scoped composites;
// items additionally contribute their own GUIDs.
func BuildLookup(ctx context.Context, lib Library) (*Lookup, error) {
	sections, err := lib.Sections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list library sections: %w", err)
	}

	l := &Lookup{
		guidToKey: make(map[string]string),
		keyToGUID: make(map[string]string),
	}

	for _, section := range sections {
		switch section.Type {
		case models.TypeMovie:
			if err := l.indexMovies(ctx, lib, section.Key); err != nil {
				return nil, err
			}
		case models.TypeShow:
			if err := l.indexShows(ctx, lib, section.Key); err != nil {
				return nil, err
			}
		}
	}

	logging.Debug().
		Int("identifiers", l.Size()).
		Msg("Built library identifier lookup")
	return l, nil
}

func (l *Lookup) indexMovies(ctx context.Context, lib Library, sectionKey string) error {
	movies, err := lib.SectionItems(ctx, sectionKey, models.TypeMovie)
	if err != nil {
		return fmt.Errorf("failed to walk movie section %s: %w", sectionKey, err)
	}
	for i := range movies {
		l.addOwnGuids(&movies[i])
	}
	return nil
}

func (l *Lookup) indexShows(ctx context.Context, lib Library, sectionKey string) error {
	shows, err := lib.SectionItems(ctx, sectionKey, models.TypeShow)
	if err != nil {
		return fmt.Errorf("failed to walk show section %s: %w", sectionKey, err)
	}
	seasons, err := lib.SectionItems(ctx, sectionKey, models.TypeSeason)
	if err != nil {
		return fmt.Errorf("failed to walk seasons of section %s: %w", sectionKey, err)
	}
	episodes, err := lib.SectionItems(ctx, sectionKey, models.TypeEpisode)
	if err != nil {
		return fmt.Errorf("failed to walk episodes of section %s: %w", sectionKey, err)
	}

	// Show rating key -> that show's external GUIDs, for composing the
	// season- and episode-scoped forms.
	showGuids := make(map[string][]string, len(shows))
	for i := range shows {
		show := &shows[i]
		l.addOwnGuids(show)
		guids := make([]string, 0, len(show.Guids))
		for _, g := range show.Guids {
			if IsGUID(g.ID) {
				guids = append(guids, strings.ToLower(g.ID))
			}
		}
		showGuids[show.RatingKey] = guids
	}

	for i := range seasons {
		season := &seasons[i]
		for _, base := range showGuids[season.ParentRatingKey] {
			l.add(SeasonGUID(base, season.Index), season.RatingKey)
		}
		l.addOwnGuids(season)
	}

	for i := range episodes {
		episode := &episodes[i]
		for _, base := range showGuids[episode.GrandparentRatingKey] {
			l.add(EpisodeGUID(base, episode.ParentIndex, episode.Index), episode.RatingKey)
		}
		l.addOwnGuids(episode)
	}
	return nil
}

// addOwnGuids indexes an item's own external GUID tags.
func (l *Lookup) addOwnGuids(item *models.Metadata) {
	for _, g := range item.Guids {
		if IsGUID(g.ID) {
			l.add(g.ID, item.RatingKey)
		}
	}
}

// NeedsResolution reports whether any identifier in the document is an
// external GUID, meaning a library walk is required before the engine can
// match sessions against it.
func (d *Document) NeedsResolution() bool {
	for key := range d.Markers {
		if IsGUID(key) {
			return true
		}
	}
	for key := range d.Offsets {
		if IsGUID(key) {
			return true
		}
	}
	for key := range d.Tags {
		if IsGUID(key) {
			return true
		}
	}
	for key := range d.Mode {
		if IsGUID(key) {
			return true
		}
	}
	for _, key := range d.Allowed.Keys {
		if IsGUID(key) {
			return true
		}
	}
	for _, key := range d.Blocked.Keys {
		if IsGUID(key) {
			return true
		}
	}
	return false
}

// ConvertToRatingKeys rewrites every GUID identifier to its server-local
// rating key. Identifiers that do not resolve are dropped with a log;
// non-GUID keys (rating keys, player names in mode/offsets) pass through.
func (d *Document) ConvertToRatingKeys(lookup *Lookup) {
	d.rewriteIdentifiers(func(id string) (string, bool) {
		if !IsGUID(id) {
			return id, true
		}
		ratingKey, ok := lookup.RatingKey(id)
		if !ok {
			logging.Warn().
				Str("identifier", id).
				Msg("Dropping custom entry with unresolvable identifier")
			return "", false
		}
		return ratingKey, true
	})
}

// ConvertToGuids rewrites rating keys to external identifiers where the
// library carries one. Keys without a GUID mapping stay untouched so user
// data is never silently discarded by the CLI.
func (d *Document) ConvertToGuids(lookup *Lookup) {
	d.rewriteIdentifiers(func(id string) (string, bool) {
		if IsGUID(id) {
			return id, true
		}
		if guid, ok := lookup.GUIDFor(id); ok {
			return guid, true
		}
		return id, true
	})
}

// rewriteIdentifiers applies mapper to every identifier-keyed section.
func (d *Document) rewriteIdentifiers(mapper func(string) (string, bool)) {
	d.Markers = rewriteKeys(d.Markers, mapper)
	d.Offsets = rewriteKeys(d.Offsets, mapper)
	d.Tags = rewriteKeys(d.Tags, mapper)
	d.Mode = rewriteKeys(d.Mode, mapper)
	d.Allowed.Keys = rewriteList(d.Allowed.Keys, mapper)
	d.Blocked.Keys = rewriteList(d.Blocked.Keys, mapper)
}

// rewriteKeys rewrites map keys through mapper, dropping entries mapper
// rejects. Keys are visited in sorted order so identifier collisions
// resolve deterministically (last write wins).
func rewriteKeys[V any](m map[string]V, mapper func(string) (string, bool)) map[string]V {
	if len(m) == 0 {
		return m
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]V, len(m))
	for _, k := range keys {
		if newKey, keep := mapper(k); keep {
			out[newKey] = m[k]
		}
	}
	return out
}

func rewriteList(list []string, mapper func(string) (string, bool)) []string {
	out := make([]string, 0, len(list))
	for _, id := range list {
		if newKey, keep := mapper(id); keep {
			out = append(out, newKey)
		}
	}
	return out
}
