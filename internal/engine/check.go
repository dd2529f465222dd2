// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package engine

import (
	"strings"

	"github.com/tomtom215/transilio/internal/config"
	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/media"
	"github.com/tomtom215/transilio/internal/metrics"
)

// checkMedia runs one inspection pass over a session: staleness, the skip
// and volume ranges, then end-of-item handling. A session that timed out
// is still evaluated this one last time, matching its removal being an
// accounting change rather than new information about the player.
func (e *Engine) checkMedia(s *media.Session) {
	if s.SinceLastAlert() > e.timeout {
		logging.Debug().
			Str("session", s.String()).
			Dur("timeout", e.timeout).
			Msg("Session has not been updated, removing")
		e.Remove(s, "timeout")
	}

	if s.State() == media.StateBuffering {
		return
	}

	lo, ro := e.offsets(s)
	e.checkSkip(s, lo, ro)
	e.checkVolume(s, lo, ro)

	duration := s.Media.Duration
	switch {
	case s.SkipNext && s.Ended() && duration > 0 && s.ViewOffset() >= media.DurationThreshold(duration):
		logging.Info().
			Str("session", s.String()).
			Int64("viewOffset", s.ViewOffset()).
			Int64("duration", duration).
			Msg("Ended session ran out its duration with skip-next enabled, advancing")
		e.seekTo(s, duration, "ended")
	case s.Ended():
		logging.Debug().
			Str("session", s.String()).
			Int64("viewOffset", s.ViewOffset()).
			Str("state", s.State()).
			Msg("Session marked as ended, removing")
		e.Remove(s, "ended")
	}
}

// offsets returns the session's effective left/right seek offsets,
// falling back to the configured globals where no custom entry set one.
func (e *Engine) offsets(s *media.Session) (int64, int64) {
	lo, ro := s.LeftOffset, s.RightOffset
	if lo == 0 {
		lo = e.cfg.Offsets.Start
	}
	if ro == 0 {
		ro = e.cfg.Offsets.End
	}
	return lo, ro
}

// checkSkip fires the first skip range containing the projected offset.
// Precedence is fixed: custom markers in document order, then (for
// sessions in skip mode acting on server data) the last-chapter credits
// rule, chapters, and typed markers with the tag-gated offsets.
func (e *Engine) checkSkip(s *media.Session, lo, ro int64) {
	if s.State() != media.StatePlaying {
		return
	}
	vo := s.ViewOffset()

	for _, m := range s.CustomMarkers() {
		if m.Mode != config.ModeSkip || !m.Contains(vo) {
			continue
		}
		logging.Info().
			Str("session", s.String()).
			Int64("start", m.Start).
			Int64("end", m.End).
			Int64("viewOffset", vo).
			Str("key", m.Key).
			Msg("Inside a custom skip marker")
		e.seekTo(s, m.End, "custom")
		return
	}

	if s.Mode != config.ModeSkip || s.CustomOnly {
		return
	}

	duration := s.Media.Duration
	if last, ok := s.LastChapter(); ok && e.creditsChapter(last.StartTimeOffset, duration) {
		if last.StartTimeOffset <= vo && vo < last.EndTimeOffset {
			logging.Info().
				Str("session", s.String()).
				Int64("start", last.StartTimeOffset).
				Int64("end", last.EndTimeOffset).
				Int64("viewOffset", vo).
				Msg("Inside the last chapter with skip-last-chapter enabled")
			e.seekTo(s, duration, "lastchapter")
			return
		}
	}

	for _, c := range s.Chapters() {
		if c.StartTimeOffset <= vo && vo < c.EndTimeOffset {
			logging.Info().
				Str("session", s.String()).
				Str("chapter", c.Title()).
				Int64("start", c.StartTimeOffset).
				Int64("end", c.EndTimeOffset).
				Int64("viewOffset", vo).
				Msg("Inside a skippable chapter")
			e.seekTo(s, c.EndTimeOffset, "chapter")
			return
		}
	}

	for _, m := range s.Markers() {
		mlo, mro := e.markerOffsets(s, m.Type, lo, ro)
		start := m.StartTimeOffset
		if start >= mlo {
			start += mlo
		}
		if start <= vo && vo < m.EndTimeOffset {
			logging.Info().
				Str("session", s.String()).
				Str("marker", m.Type).
				Int64("start", m.StartTimeOffset).
				Int64("end", m.EndTimeOffset).
				Int64("leftOffset", mlo).
				Int64("rightOffset", mro).
				Int64("viewOffset", vo).
				Msg("Inside a skippable marker")
			e.seekTo(s, m.EndTimeOffset+mro, "marker")
			return
		}
	}
}

// markerOffsets returns the left/right offsets for one server marker:
// the session offsets when its type is offset-tagged, zero otherwise.
func (e *Engine) markerOffsets(s *media.Session, markerType string, lo, ro int64) (int64, int64) {
	if containsString(s.OffsetTags, strings.ToLower(markerType)) {
		return lo, ro
	}
	return 0, 0
}

// creditsChapter reports whether a final chapter starting at start is
// late enough in the item to be treated as credits.
func (e *Engine) creditsChapter(start, duration int64) bool {
	fraction := e.cfg.Skip.LastChapter
	return fraction > 0 && duration > 0 && float64(start)/float64(duration) > fraction
}

// checkVolume flips the player volume at range boundaries. Transitions
// are edge-triggered off the session's lowering flag, which flips here at
// dispatch so the next tick never doubles a command.
func (e *Engine) checkVolume(s *media.Session, lo, ro int64) {
	if s.State() != media.StatePlaying {
		return
	}

	should := e.shouldLowerVolume(s, lo, ro)
	switch {
	case should && !s.LoweringVolume():
		logging.Info().
			Str("session", s.String()).
			Int64("viewOffset", s.ViewOffset()).
			Int("volume", e.cfg.Volume.Low).
			Msg("Inside a low-volume range, lowering volume")
		s.BeginLowering(e.cfg.Volume.High)
		metrics.VolumeAdjustments.WithLabelValues("lower").Inc()
		e.command.SetVolume(s, e.cfg.Volume.Low, true)
	case !should && s.LoweringVolume():
		restore := s.CachedVolume()
		logging.Info().
			Str("session", s.String()).
			Int64("viewOffset", s.ViewOffset()).
			Int("volume", restore).
			Msg("Left the low-volume range, restoring volume")
		s.EndLowering()
		metrics.VolumeAdjustments.WithLabelValues("restore").Inc()
		e.command.SetVolume(s, restore, false)
	}
}

// shouldLowerVolume reports whether the projected offset sits inside any
// volume range. It mirrors checkSkip's precedence over mode=volume
// markers, with one historical wrinkle: server markers apply the left
// offset unconditionally, and the last chapter is closed on the right.
func (e *Engine) shouldLowerVolume(s *media.Session, lo, ro int64) bool {
	vo := s.ViewOffset()

	for _, m := range s.CustomMarkers() {
		if m.Mode == config.ModeVolume && m.Contains(vo) {
			return true
		}
	}

	if s.Mode != config.ModeVolume || s.CustomOnly {
		return false
	}

	duration := s.Media.Duration
	if last, ok := s.LastChapter(); ok && e.creditsChapter(last.StartTimeOffset, duration) {
		if last.StartTimeOffset <= vo && vo <= last.EndTimeOffset {
			return true
		}
	}

	for _, c := range s.Chapters() {
		if c.StartTimeOffset <= vo && vo < c.EndTimeOffset {
			return true
		}
	}

	for _, m := range s.Markers() {
		mlo, mro := e.markerOffsets(s, m.Type, lo, ro)
		if m.StartTimeOffset+mlo <= vo && vo < m.EndTimeOffset+mro {
			return true
		}
	}
	return false
}

// seekTo routes a computed skip through the commander. A target at or
// past the end of the item becomes a play-queue advance when skip-next is
// enabled; otherwise the target is clamped to the player's end-of-item
// margin. One command per session is in flight at a time: the corridor is
// recorded here, synchronously, before the commander worker spawns.
func (e *Engine) seekTo(s *media.Session, target int64, source string) {
	duration := s.Media.Duration

	if s.SkipNext && duration > 0 && target >= duration {
		e.Remove(s, "advance")
		e.Ignore(s)
		metrics.Skips.WithLabelValues(source).Inc()
		e.command.Advance(s)
		return
	}

	if fudge := s.Player.SeekFudge(); duration > 0 && target >= duration-fudge {
		logging.Debug().
			Str("session", s.String()).
			Int64("target", target).
			Int64("duration", duration).
			Int64("fudge", fudge).
			Msg("Seek target at or past the end of the item, clamping")
		target = duration - fudge
	}

	vo := s.ViewOffset()
	if target <= vo {
		logging.Debug().
			Str("session", s.String()).
			Int64("target", target).
			Int64("viewOffset", vo).
			Msg("Seek target not ahead of the current offset, ignoring")
		return
	}

	if s.Seeking() {
		return
	}
	s.BeginSeek(target)
	metrics.Skips.WithLabelValues(source).Inc()
	logging.Info().
		Str("session", s.String()).
		Str("player", s.Player.Product).
		Int64("from", vo).
		Int64("to", target).
		Msg("Seeking player")
	e.command.Seek(s, target)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
