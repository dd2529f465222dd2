// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package media

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/transilio/internal/entries"
	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/models"
)

// Playback states as reported in PlaySessionStateNotification alerts.
const (
	StatePlaying   = "playing"
	StatePaused    = "paused"
	StateStopped   = "stopped"
	StateBuffering = "buffering"
)

// durationTolerance is the fraction of an item's duration past which the
// item counts as fully played. Players rarely report an offset exactly
// equal to the duration.
const durationTolerance = 0.995

// DurationThreshold returns the offset at which an item of the given
// duration counts as fully played.
func DurationThreshold(duration int64) int64 {
	return int64(math.Round(float64(duration) * durationTolerance))
}

// Defaults is the configured baseline a session starts from before custom
// entries are layered on top.
type Defaults struct {
	Mode       string
	Tags       []string
	OffsetTags []string
	SkipNext   bool
}

// PlayerInfo is a session's snapshot of its player. Commands reach the
// player through the server by default; BaseURL is set instead when the
// custom-entries clients section declares a direct address for it.
type PlayerInfo struct {
	Title              string
	Product            string
	Version            string
	MachineIdentifier  string
	Address            string
	BaseURL            string
	ProxyThroughServer bool
}

// Reachable reports whether the player can receive commands at all.
func (p PlayerInfo) Reachable() bool {
	return p.ProxyThroughServer || p.BaseURL != ""
}

// Session tracks one in-flight playback. Identity, media and the resolved
// rule fields are fixed at construction; runtime state is guarded by mu
// because the alert worker, the tick worker and commander workers all
// touch it.
type Session struct {
	// Media is the full server session record, markers and chapters
	// included. Treated as read-only.
	Media *models.Metadata

	SessionKey       string
	ClientIdentifier string
	PlayQueueID      int64
	User             string
	Player           PlayerInfo

	// Resolved rules. LeftOffset, RightOffset and CommandDelay stay zero
	// when no custom entry sets them; the engine falls back to the
	// configured globals.
	LeftOffset   int64
	RightOffset  int64
	OffsetTags   []string
	Mode         string
	SkipNext     bool
	CommandDelay int64

	// CustomOnly marks a session admitted solely for its custom markers:
	// server markers and chapters are not acted on.
	CustomOnly bool

	mu             sync.Mutex
	state          string
	ended          bool
	storedOffset   int64
	lastUpdate     time.Time
	lastAlert      time.Time
	lastSeek       time.Time
	seekOrigin     int64
	seekTarget     int64
	cachedVolume   int
	loweringVolume bool

	tags           []string
	customMarkers  []CustomMarker
	markers        []models.Marker
	chapters       []models.Chapter
	lastChapter    models.Chapter
	hasLastChapter bool
}

// New builds a session from a server session record. Rule resolution
// layers custom-entries matches in ancestor order (grandparent, parent,
// item) over the defaults, then applies player-scoped overlays. Invalid
// custom markers are dropped with a log; everything else about the entry
// still applies.
func New(item *models.Metadata, clientIdentifier, state string, playQueueID int64, defaults Defaults, doc *entries.Document) *Session {
	now := time.Now()
	s := &Session{
		Media:            item,
		SessionKey:       item.SessionKey,
		ClientIdentifier: clientIdentifier,
		PlayQueueID:      playQueueID,
		OffsetTags:       lowerAll(defaults.OffsetTags),
		Mode:             defaults.Mode,
		SkipNext:         defaults.SkipNext,
		state:            state,
		storedOffset:     item.ViewOffset,
		lastUpdate:       now,
		lastAlert:        now,
		tags:             lowerAll(defaults.Tags),
	}
	if item.User != nil {
		s.User = item.User.Title
	}
	if item.Player != nil {
		s.Player = PlayerInfo{
			Title:             item.Player.Title,
			Product:           item.Player.Product,
			Version:           item.Player.Version,
			MachineIdentifier: item.Player.MachineIdentifier,
			Address:           item.Player.Address,
		}
	}

	if doc != nil {
		s.applyEntries(doc)
	}

	s.tags = lowerAll(s.tags)
	s.OffsetTags = lowerAll(s.OffsetTags)
	s.Mode = strings.ToLower(s.Mode)
	s.Player.ProxyThroughServer = s.Player.BaseURL == ""

	// A custom marker without an explicit mode follows the session mode.
	for i := range s.customMarkers {
		if s.customMarkers[i].Mode == "" {
			s.customMarkers[i].Mode = s.Mode
		}
	}

	s.updateMarkersLocked()
	return s
}

// applyEntries resolves the custom-entries document against the session.
// Only construction calls this, before the session is shared.
func (s *Session) applyEntries(doc *entries.Document) {
	for _, key := range s.ancestry() {
		if entryList, ok := doc.MarkersFor(key); ok {
			incoming := make([]CustomMarker, 0, len(entryList))
			for _, entry := range entryList {
				marker, err := TryParseMarker(entry, key, s.Media.Duration)
				if err != nil {
					logging.Warn().
						Err(err).
						Str("session", s.ID()).
						Str("key", key).
						Msg("Dropping invalid custom marker")
					continue
				}
				incoming = append(incoming, marker)
			}
			// A more specific level replaces ancestor markers unless they
			// cascade.
			if len(incoming) > 0 && len(s.customMarkers) > 0 {
				s.customMarkers = keepCascading(s.customMarkers)
			}
			for _, marker := range incoming {
				if !containsMarker(s.customMarkers, marker) {
					s.customMarkers = append(s.customMarkers, marker)
				}
			}
		}

		if offsets, ok := doc.OffsetsFor(key); ok {
			if offsets.Start != nil {
				s.LeftOffset = *offsets.Start
			}
			if offsets.End != nil {
				s.RightOffset = *offsets.End
			}
			if offsets.Tags != nil {
				s.OffsetTags = append([]string(nil), offsets.Tags...)
			}
		}

		if tags, ok := doc.TagsFor(key); ok {
			s.tags = append([]string(nil), tags...)
		}

		if mode, ok := doc.ModeFor(key); ok {
			s.Mode = mode
		}
	}

	// Player-scoped overlays, player title before client identifier.
	for _, id := range []string{s.Player.Title, s.ClientIdentifier} {
		if id == "" {
			continue
		}
		if mode, ok := doc.ModeFor(id); ok {
			s.Mode = mode
			break
		}
	}
	for _, id := range []string{s.Player.Title, s.ClientIdentifier} {
		if id == "" {
			continue
		}
		if offsets, ok := doc.OffsetsFor(id); ok && offsets.Command != nil {
			s.CommandDelay = *offsets.Command
			break
		}
	}

	if doc.Allowed.ContainsSkipNext(s.Player.Title) || doc.Allowed.ContainsSkipNext(s.ClientIdentifier) {
		s.SkipNext = true
	}
	if doc.Blocked.ContainsSkipNext(s.Player.Title) || doc.Blocked.ContainsSkipNext(s.ClientIdentifier) {
		s.SkipNext = false
	}

	if url, ok := doc.ClientURLFor(s.Player.Title, s.ClientIdentifier); ok {
		s.Player.BaseURL = url
	}
}

// ancestry returns the rule resolution order: grandparent, parent, item.
func (s *Session) ancestry() []string {
	keys := make([]string, 0, 3)
	if s.Media.HasGrandparent() {
		keys = append(keys, s.Media.GrandparentRatingKey)
	}
	if s.Media.HasParent() {
		keys = append(keys, s.Media.ParentRatingKey)
	}
	if s.Media.RatingKey != "" {
		keys = append(keys, s.Media.RatingKey)
	}
	return keys
}

// ID returns the composite (sessionKey, clientIdentifier) identity.
func (s *Session) ID() string {
	return models.SessionIdentifier(s.SessionKey, s.ClientIdentifier)
}

func (s *Session) String() string {
	return fmt.Sprintf("%s (%s)", s.ID(), s.Media.Title)
}

// State returns the last accepted playback state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState overrides the playback state, bypassing the seek interlock.
// The commander uses it to park a session in buffering after a failed
// command.
func (s *Session) SetState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Halted reports whether the player is paused or stopped.
func (s *Session) Halted() bool {
	state := s.State()
	return state == StatePaused || state == StateStopped
}

// Ended reports whether the session reached the end of its item.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// MarkEnded latches the ended flag. It is never cleared.
func (s *Session) MarkEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

// ViewOffset returns the projected position: while playing, the stored
// offset advanced by the wall-clock time since it was recorded, capped to
// the item duration.
func (s *Session) ViewOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewOffsetLocked()
}

func (s *Session) viewOffsetLocked() int64 {
	offset := s.storedOffset
	if s.state == StatePlaying {
		offset += time.Since(s.lastUpdate).Milliseconds()
	}
	if offset < 0 {
		offset = 0
	}
	if d := s.Media.Duration; d > 0 && offset > d {
		offset = d
	}
	return offset
}

// StoredOffset returns the last recorded offset without projection.
func (s *Session) StoredOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storedOffset
}

// UpdateOffset reconciles an incoming alert with any in-flight seek and
// reports whether it was accepted. While a seek is in flight, any offset
// strictly inside (seekOrigin, seekTarget) describes a position the player
// already left and is rejected without touching state or timestamps. An
// offset below the origin is a manual user seek and one at or past the
// target confirms the seek; both clear the corridor. An offset exactly at
// the origin is the player's pre-seek position: accepted, corridor kept.
func (s *Session) UpdateOffset(offset int64, state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seekTarget > 0 {
		switch {
		case offset > s.seekOrigin && offset < s.seekTarget:
			return false
		case offset < s.seekOrigin || offset >= s.seekTarget:
			s.clearSeekLocked()
		}
	}

	now := time.Now()
	s.storedOffset = offset
	s.state = state
	s.lastUpdate = now
	s.lastAlert = now

	if !s.ended && (state == StatePaused || state == StateStopped) &&
		s.Media.Duration > 0 && offset >= DurationThreshold(s.Media.Duration) {
		s.ended = true
	}
	return true
}

// BeginSeek records the seek corridor for a dispatched seek command and
// advances the stored offset to the target so later projections and alert
// checks evaluate against where the player is headed.
func (s *Session) BeginSeek(target int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	origin := s.viewOffsetLocked()
	if target < origin {
		target = origin
	}
	now := time.Now()
	s.seekOrigin = origin
	s.seekTarget = target
	s.lastSeek = now
	s.storedOffset = target
	s.lastUpdate = now
}

// ClearSeek drops the seek corridor. The commander calls it when a seek
// command fails, so the failed target stops gating future alerts.
func (s *Session) ClearSeek() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearSeekLocked()
}

func (s *Session) clearSeekLocked() {
	s.seekOrigin = 0
	s.seekTarget = 0
}

// Seeking reports whether a seek is in flight.
func (s *Session) Seeking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekTarget > 0
}

// SeekTarget returns the in-flight seek target, 0 when idle.
func (s *Session) SeekTarget() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekTarget
}

// SinceLastAlert returns how long ago the last accepted alert arrived.
func (s *Session) SinceLastAlert() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastAlert)
}

// SinceLastSeek returns how long ago a seek was last dispatched.
func (s *Session) SinceLastSeek() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeek.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return time.Since(s.lastSeek)
}

// CachedVolume returns the volume recorded before lowering.
func (s *Session) CachedVolume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cachedVolume
}

// LoweringVolume reports whether the session is inside a lowered-volume
// range.
func (s *Session) LoweringVolume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loweringVolume
}

// BeginLowering caches the pre-marker volume and flags the session as
// lowered.
func (s *Session) BeginLowering(cached int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cachedVolume = cached
	s.loweringVolume = true
}

// EndLowering clears the lowered flag once volume is restored.
func (s *Session) EndLowering() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loweringVolume = false
}

// UpdateCachedVolume replaces the cached pre-marker volume with a value
// read from the player, but only while the session is still lowered; a
// late read must not clobber state after the restore already went out.
func (s *Session) UpdateCachedVolume(volume int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loweringVolume {
		s.cachedVolume = volume
	}
}

// Tags returns the session's effective tag set.
func (s *Session) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tags...)
}

// RestrictTags drops every tag not in safe and recomputes the effective
// markers and chapters. Used for first/last-episode downgrades and binge
// inhibition.
func (s *Session) RestrictTags(safe []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	safe = lowerAll(safe)
	kept := make([]string, 0, len(s.tags))
	for _, tag := range s.tags {
		if containsString(safe, tag) {
			kept = append(kept, tag)
		}
	}
	s.tags = kept
	s.updateMarkersLocked()
}

// CustomMarkers returns the resolved user-declared markers.
func (s *Session) CustomMarkers() []CustomMarker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CustomMarker(nil), s.customMarkers...)
}

// RestrictCustomMarkers drops every custom marker whose type is not in
// safe.
func (s *Session) RestrictCustomMarkers(safe []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	safe = lowerAll(safe)
	kept := make([]CustomMarker, 0, len(s.customMarkers))
	for _, marker := range s.customMarkers {
		if containsString(safe, marker.Type) {
			kept = append(kept, marker)
		}
	}
	s.customMarkers = kept
}

// Markers returns the server markers that passed the tag filter.
func (s *Session) Markers() []models.Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Marker(nil), s.markers...)
}

// Chapters returns the server chapters that passed the tag filter.
func (s *Session) Chapters() []models.Chapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Chapter(nil), s.chapters...)
}

// LastChapter returns the item's final chapter regardless of tags, for the
// skip-last-chapter rule.
func (s *Session) LastChapter() (models.Chapter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChapter, s.hasLastChapter
}

// updateMarkersLocked recomputes the effective server markers and chapters
// from the current tag set. A tag matches a marker by its type or the
// marker-only "m:" form, and a chapter by its title or the chapter-only
// "c:" form.
func (s *Session) updateMarkersLocked() {
	markers := make([]models.Marker, 0, len(s.Media.Markers))
	for _, m := range s.Media.Markers {
		markerType := strings.ToLower(m.Type)
		if containsString(s.tags, markerType) || containsString(s.tags, "m:"+markerType) {
			markers = append(markers, m)
		}
	}
	s.markers = markers

	chapters := make([]models.Chapter, 0, len(s.Media.Chapters))
	for _, c := range s.Media.Chapters {
		title := strings.ToLower(c.Title())
		if containsString(s.tags, title) || containsString(s.tags, "c:"+title) {
			chapters = append(chapters, c)
		}
	}
	s.chapters = chapters

	if last := s.Media.LastChapter(); last != nil {
		s.lastChapter = *last
		s.hasLastChapter = true
	} else {
		s.lastChapter = models.Chapter{}
		s.hasLastChapter = false
	}
}

func keepCascading(markers []CustomMarker) []CustomMarker {
	kept := make([]CustomMarker, 0, len(markers))
	for _, m := range markers {
		if m.Cascade {
			kept = append(kept, m)
		}
	}
	return kept
}

func containsMarker(markers []CustomMarker, marker CustomMarker) bool {
	for _, m := range markers {
		if m == marker {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func lowerAll(list []string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, strings.ToLower(item))
	}
	return out
}
