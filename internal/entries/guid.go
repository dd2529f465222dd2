// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package entries

import (
	"fmt"
	"strconv"
	"strings"
)

// guidPrefixes are the external identifier schemes understood in custom
// entries documents.
var guidPrefixes = []string{"imdb://", "tmdb://", "tvdb://"}

// IsGUID reports whether an identifier uses an external scheme rather than
// a server-local rating key.
func IsGUID(id string) bool {
	lower := strings.ToLower(strings.TrimSpace(id))
	for _, prefix := range guidPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// GUID is a parsed external identifier, optionally scoped to a season or
// episode of a show: "tvdb://121361" names the show, "tvdb://121361.3"
// season three, "tvdb://121361.3.9" S3E9. Season may legitimately be 0
// (specials), so absence is -1.
type GUID struct {
	Base    string
	Season  int64
	Episode int64
}

// HasSeason reports whether the identifier is scoped to a season.
func (g GUID) HasSeason() bool { return g.Season >= 0 }

// HasEpisode reports whether the identifier is scoped to an episode.
func (g GUID) HasEpisode() bool { return g.Episode >= 0 }

// String renders the identifier in document form.
func (g GUID) String() string {
	switch {
	case g.HasEpisode():
		return fmt.Sprintf("%s.%d.%d", g.Base, g.Season, g.Episode)
	case g.HasSeason():
		return fmt.Sprintf("%s.%d", g.Base, g.Season)
	default:
		return g.Base
	}
}

// SeasonGUID builds the season-scoped form of a base show GUID.
func SeasonGUID(base string, season int64) string {
	return fmt.Sprintf("%s.%d", strings.ToLower(base), season)
}

// EpisodeGUID builds the episode-scoped form of a base show GUID.
func EpisodeGUID(base string, season, episode int64) string {
	return fmt.Sprintf("%s.%d.%d", strings.ToLower(base), season, episode)
}

// ParseGUID parses an external identifier with its optional .season or
// .season.episode suffix. ok is false when id does not use a known scheme
// or the suffix is malformed.
func ParseGUID(id string) (GUID, bool) {
	lower := strings.ToLower(strings.TrimSpace(id))

	var scheme string
	for _, prefix := range guidPrefixes {
		if strings.HasPrefix(lower, prefix) {
			scheme = prefix
			break
		}
	}
	if scheme == "" {
		return GUID{}, false
	}

	rest := lower[len(scheme):]
	if rest == "" {
		return GUID{}, false
	}

	parts := strings.Split(rest, ".")
	if len(parts) > 3 || parts[0] == "" {
		return GUID{}, false
	}

	g := GUID{Base: scheme + parts[0], Season: -1, Episode: -1}
	if len(parts) >= 2 {
		season, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || season < 0 {
			return GUID{}, false
		}
		g.Season = season
	}
	if len(parts) == 3 {
		episode, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || episode < 0 {
			return GUID{}, false
		}
		g.Episode = episode
	}
	return g, true
}
