// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/transilio/internal/config"
	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/media"
	"github.com/tomtom215/transilio/internal/models"
	"github.com/tomtom215/transilio/internal/plex"
)

// OnAlert ingests one playback notification. Unknown sessions go through
// admission; known sessions get their offset reconciled against any
// in-flight seek and feed the binge tracker. The returned error is
// transport-level only (a failed server fetch), so the alert router can
// retry it; every admission verdict is final and returns nil.
func (e *Engine) OnAlert(ctx context.Context, n models.PlaySessionStateNotification) error {
	id := n.SessionIdentifier()

	if e.ignored.Contains(id) {
		logging.Trace().Str("session", id).Msg("Ignoring alert")
		return nil
	}

	e.mu.Lock()
	s, tracked := e.sessions[id]
	e.mu.Unlock()

	if !tracked {
		return e.admitFromAlert(ctx, n)
	}

	s.UpdateOffset(n.ViewOffset, strings.ToLower(n.State))

	// A halted session the server no longer reports has finished for
	// good; the next tick cleans it up. Transient fetch errors prove
	// nothing and leave the flag alone.
	if !s.Ended() && n.IsHalted() {
		if _, err := e.server.FindSession(ctx, n.SessionKey, n.ClientIdentifier); err != nil {
			if errors.Is(err, plex.ErrNotFound) {
				s.MarkEnded()
			} else {
				logging.Debug().
					Err(err).
					Str("session", id).
					Msg("Unable to confirm a halted session is gone")
			}
		}
	}

	e.binge.Update(ctx, s)
	return nil
}

// admitFromAlert fetches the full server session behind a first alert and
// runs admission. Alerts whose session the server does not report are
// dropped without ignoring; the next alert simply tries again.
func (e *Engine) admitFromAlert(ctx context.Context, n models.PlaySessionStateNotification) error {
	id := n.SessionIdentifier()

	item, err := e.server.FindSession(ctx, n.SessionKey, n.ClientIdentifier)
	if err != nil {
		if errors.Is(err, plex.ErrNotFound) {
			logging.Trace().
				Str("session", id).
				Str("state", n.State).
				Msg("Alert without a matching server session")
			return nil
		}
		return fmt.Errorf("fetching session %s: %w", id, err)
	}

	if !item.OnLAN() {
		logging.Debug().
			Str("session", id).
			Msg("Session is not on the local network, not tracking")
		return nil
	}

	e.admit(ctx, item, n.ClientIdentifier, strings.ToLower(n.State), n.PlayQueueID)
	return nil
}

// admit builds a session from a server record and routes it: blocked
// clients and users are ignored outright, admission failures with custom
// markers fall back to custom-only tracking, everything else is added.
func (e *Engine) admit(ctx context.Context, item *models.Metadata, clientIdentifier, state string, playQueueID int64) {
	s := media.New(item, clientIdentifier, state, playQueueID, e.defaults, e.doc)

	if e.blockedClientUser(s) {
		e.Ignore(s)
		return
	}
	if !e.shouldAdd(item) {
		if len(s.CustomMarkers()) > 0 {
			s.CustomOnly = true
			e.addSession(ctx, s)
			return
		}
		e.Ignore(s)
		return
	}
	e.addSession(ctx, s)
}

// addSession validates the player, evicts any session it took over,
// applies the first/last-episode downgrades and installs the session
// after one immediate inspection pass.
func (e *Engine) addSession(ctx context.Context, s *media.Session) {
	if s.CustomOnly {
		logging.Info().
			Str("session", s.String()).
			Int64("viewOffset", s.Media.ViewOffset).
			Str("user", s.User).
			Str("player", s.Player.Product).
			Bool("proxying", s.Player.ProxyThroughServer).
			Msg("Found blocked session, acting on custom markers only")
	} else {
		logging.Info().
			Str("session", s.String()).
			Int64("viewOffset", s.Media.ViewOffset).
			Str("user", s.User).
			Str("player", s.Player.Product).
			Bool("proxying", s.Player.ProxyThroughServer).
			Msg("Found new session")
	}

	if !e.validPlayer(s) {
		e.Ignore(s)
		return
	}

	e.purgeTakenOver(s)
	e.binge.Update(ctx, s)
	e.firstAdjust(s)
	e.lastAdjust(ctx, s)
	e.checkMedia(s)
	e.install(s)
}

// validPlayer rejects players that cannot receive commands: products
// whose version dropped Advertise as Player, and players with neither a
// direct address nor the server proxy.
func (e *Engine) validPlayer(s *media.Session) bool {
	if s.Player.Broken() {
		logging.Error().
			Str("product", s.Player.Product).
			Str("version", s.Player.Version).
			Msgf("Player version lost Advertise as Player support and cannot be controlled, see %s#notice", plex.TroubleshootURL)
		return false
	}
	if !s.Player.Reachable() {
		logging.Info().
			Str("session", s.String()).
			Msg("Session has no accessible player, it will be ignored")
		return false
	}
	return true
}

// blockedClientUser applies the user and client allow/block lists. Block
// entries always reject; a non-empty allow list admits only its members.
func (e *Engine) blockedClientUser(s *media.Session) bool {
	if e.doc.Blocked.ContainsUser(s.User) {
		logging.Debug().
			Str("session", s.String()).
			Str("user", s.User).
			Msg("Blocking session, user is on the block list")
		return true
	}
	if len(e.doc.Allowed.Users) > 0 && !e.doc.Allowed.ContainsUser(s.User) {
		logging.Debug().
			Str("session", s.String()).
			Str("user", s.User).
			Msg("Blocking session, user is not on the allow list")
		return true
	}

	if len(e.doc.Allowed.Clients) > 0 &&
		!e.doc.Allowed.ContainsClient(s.Player.Title) &&
		!e.doc.Allowed.ContainsClient(s.ClientIdentifier) {
		logging.Debug().
			Str("session", s.String()).
			Str("player", s.Player.Title).
			Str("client", s.ClientIdentifier).
			Msg("Blocking session, player is not on the allow list")
		return true
	}
	if e.doc.Blocked.ContainsClient(s.Player.Title) || e.doc.Blocked.ContainsClient(s.ClientIdentifier) {
		logging.Debug().
			Str("session", s.String()).
			Str("player", s.Player.Title).
			Str("client", s.ClientIdentifier).
			Msg("Blocking session, player is on the block list")
		return true
	}
	return false
}

// shouldAdd is the admission predicate over the media item itself: type
// and library gates, the three-level key allow/block lists, then the
// unwatched gate. A block match at any ancestry level rejects
// immediately; with a non-empty key allow list, some level must match.
func (e *Engine) shouldAdd(item *models.Metadata) bool {
	if !containsString(e.cfg.Skip.Types, item.Type) {
		logging.Debug().
			Str("item", item.Title).
			Str("type", item.Type).
			Msg("Blocking session, media type is not on the approved list")
		return false
	}
	if item.LibrarySectionTitle != "" && containsFold(e.cfg.Skip.IgnoredLibraries, item.LibrarySectionTitle) {
		logging.Debug().
			Str("item", item.Title).
			Str("library", item.LibrarySectionTitle).
			Msg("Blocking session, library is ignored")
		return false
	}

	allowed := false
	for _, key := range []string{item.RatingKey, item.ParentRatingKey, item.GrandparentRatingKey} {
		if key == "" {
			continue
		}
		if e.doc.Allowed.ContainsKey(key) {
			logging.Debug().
				Str("item", item.Title).
				Str("key", key).
				Msg("Allowing session by key")
			allowed = true
		}
		if e.doc.Blocked.ContainsKey(key) {
			logging.Debug().
				Str("item", item.Title).
				Str("key", key).
				Msg("Blocking session by key")
			return false
		}
	}
	if len(e.doc.Allowed.Keys) > 0 && !allowed {
		logging.Debug().
			Str("item", item.Title).
			Msg("Blocking session, no key on the allow list")
		return false
	}

	if !e.cfg.Skip.Unwatched && !item.Watched() {
		logging.Debug().
			Str("item", item.Title).
			Msg("Blocking session, unwatched and skip-unwatched is off")
		return false
	}
	return true
}

// firstAdjust strips non-safe tags when the configured gates protect
// season or series openers from skipping.
func (e *Engine) firstAdjust(s *media.Session) {
	item := s.Media
	if !item.IsEpisode() || item.EpisodeNumber() != 1 {
		return
	}

	if gateApplies(e.cfg.Skip.FirstEpisodeSeason, item) {
		logging.Debug().
			Str("session", s.String()).
			Str("gate", e.cfg.Skip.FirstEpisodeSeason).
			Msg("Season opener, restricting tags to first-safe set")
		s.RestrictTags(e.cfg.Skip.FirstSafeTags)
	}
	if item.SeasonNumber() == 1 && gateApplies(e.cfg.Skip.FirstEpisodeSeries, item) {
		logging.Debug().
			Str("session", s.String()).
			Str("gate", e.cfg.Skip.FirstEpisodeSeries).
			Msg("Series opener, restricting tags to first-safe set")
		s.RestrictTags(e.cfg.Skip.FirstSafeTags)
	}
}

// lastAdjust strips non-safe tags on season and series finales per the
// configured gates. Finding out whether the episode is a finale takes a
// show listing from the server; when that fails the session is left
// unrestricted rather than blocking the add.
func (e *Engine) lastAdjust(ctx context.Context, s *media.Session) {
	item := s.Media
	if !item.IsEpisode() || item.GrandparentRatingKey == "" {
		return
	}
	seasonGate := e.cfg.Skip.SkipLastEpisodeSeason
	seriesGate := e.cfg.Skip.SkipLastEpisodeSeries
	if seasonGate == config.GateAlways && seriesGate == config.GateAlways {
		return
	}

	episodes, err := e.server.Episodes(ctx, item.GrandparentRatingKey)
	if err != nil || len(episodes) == 0 {
		logging.Warn().
			Err(err).
			Str("show", item.GrandparentTitle).
			Msg("Unable to list show episodes for finale gating")
		return
	}

	var lastSeason int64
	lastEpisode := make(map[int64]int64)
	for i := range episodes {
		ep := &episodes[i]
		season, episode := ep.SeasonNumber(), ep.EpisodeNumber()
		if season > lastSeason {
			lastSeason = season
		}
		if episode > lastEpisode[season] {
			lastEpisode[season] = episode
		}
	}

	season, episode := item.SeasonNumber(), item.EpisodeNumber()
	if episode == lastEpisode[season] && gateApplies(seasonGate, item) {
		logging.Debug().
			Str("session", s.String()).
			Str("gate", seasonGate).
			Msg("Season finale, restricting tags to last-safe set")
		s.RestrictTags(e.cfg.Skip.LastSafeTags)
	}
	if season == lastSeason && episode == lastEpisode[lastSeason] && gateApplies(seriesGate, item) {
		logging.Debug().
			Str("session", s.String()).
			Str("gate", seriesGate).
			Msg("Series finale, restricting tags to last-safe set")
		s.RestrictTags(e.cfg.Skip.LastSafeTags)
	}
}

// gateApplies reports whether a never/watched/always gate calls for
// stripping the session's tags for this item.
func gateApplies(gate string, item *models.Metadata) bool {
	switch gate {
	case config.GateNever:
		return true
	case config.GateWatched:
		return !item.Watched()
	default:
		return false
	}
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
