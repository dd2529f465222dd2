// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Package engine tracks playback sessions and decides when to intervene.
// It consumes playback alerts, admits sessions through the configured
// gates, inspects every tracked session once a second and hands the
// resulting seek and volume commands to the commander.
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/transilio/internal/binge"
	"github.com/tomtom215/transilio/internal/config"
	"github.com/tomtom215/transilio/internal/entries"
	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/media"
	"github.com/tomtom215/transilio/internal/metrics"
	"github.com/tomtom215/transilio/internal/models"
)

const (
	// tickInterval is the cadence of the inspection loop.
	tickInterval = time.Second

	// sessionTimeout is how long a session may go without an accepted
	// alert before the tick loop drops it.
	sessionTimeout = 30 * time.Second

	// ignoredCap bounds the ignore list.
	ignoredCap = 200
)

// Server is the slice of the Plex server client the engine depends on.
// *plex.Client satisfies it.
type Server interface {
	entries.Library
	Sessions(ctx context.Context) ([]models.Metadata, error)
	FindSession(ctx context.Context, sessionKey, clientIdentifier string) (*models.Metadata, error)
	Episodes(ctx context.Context, showRatingKey string) ([]models.Metadata, error)
}

// Commander executes player commands on its own workers so the tick loop
// never blocks on network I/O. Calls must return immediately.
type Commander interface {
	// Seek moves the player to target. The session's seek corridor is
	// already recorded when Seek is called.
	Seek(s *media.Session, target int64)

	// Advance moves the player to the next play-queue item. The session
	// is already removed from the table and ignored.
	Advance(s *media.Session)

	// SetVolume sets the player volume. lowering distinguishes the lower
	// edge from the restore edge; the session's lowering flag is already
	// flipped.
	SetVolume(s *media.Session, volume int, lowering bool)
}

// Engine owns the session table and the ignore list. The alert worker
// mutates them through OnAlert, the tick worker through Tick, and
// commander workers through Remove and Ignore; mu guards the table,
// the ignore list carries its own lock.
type Engine struct {
	server   Server
	doc      *entries.Document
	binge    *binge.Tracker
	command  Commander
	cfg      *config.Config
	defaults media.Defaults

	// timeout is sessionTimeout; tests shrink it to age sessions.
	timeout time.Duration

	mu       sync.Mutex
	sessions map[string]*media.Session
	ignored  *ignoreList
}

// New builds an engine over the given server, custom entries and binge
// tracker. Session rule defaults are derived from the configuration once.
func New(server Server, doc *entries.Document, tracker *binge.Tracker, command Commander, cfg *config.Config) *Engine {
	return &Engine{
		server:  server,
		doc:     doc,
		binge:   tracker,
		command: command,
		cfg:     cfg,
		defaults: media.Defaults{
			Mode:       cfg.Skip.Mode,
			Tags:       cfg.Skip.Tags,
			OffsetTags: cfg.Offsets.Tags,
			SkipNext:   cfg.Skip.Next,
		},
		timeout:  sessionTimeout,
		sessions: make(map[string]*media.Session),
		ignored:  newIgnoreList(ignoredCap),
	}
}

// Run resolves GUID-keyed custom entries, primes the table from the
// server's live sessions and drives the inspection loop until the context
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.resolveEntries(ctx)
	e.prime(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Tick()
		}
	}
}

// resolveEntries rewrites GUID-keyed document entries to rating keys so
// session ancestry lookups can hit them. On failure the GUID entries
// stay dormant; everything keyed by rating key still works.
func (e *Engine) resolveEntries(ctx context.Context) {
	if !e.doc.NeedsResolution() {
		return
	}
	lookup, err := entries.BuildLookup(ctx, e.server)
	if err != nil {
		logging.Warn().
			Err(err).
			Msg("Unable to index the library for GUID resolution, GUID-keyed custom entries will not match")
		return
	}
	e.doc.ConvertToRatingKeys(lookup)
	logging.Info().
		Int("guids", lookup.Size()).
		Msg("Resolved GUID-keyed custom entries to rating keys")
}

// prime seeds the table from the server's current sessions so playback
// already in flight is tracked before its first alert arrives.
func (e *Engine) prime(ctx context.Context) {
	active, err := e.server.Sessions(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Unable to prime sessions at startup")
		return
	}
	for i := range active {
		item := &active[i]
		if item.Player == nil || !item.OnLAN() {
			continue
		}
		id := models.SessionIdentifier(item.SessionKey, item.Player.MachineIdentifier)
		if e.ignored.Contains(id) || e.tracked(id) {
			continue
		}
		state := strings.ToLower(item.Player.State)
		if state == "" {
			state = media.StatePlaying
		}
		e.admit(ctx, item, item.Player.MachineIdentifier, state, 0)
	}
}

// tracked reports whether the identifier is in the session table.
func (e *Engine) tracked(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[id]
	return ok
}

// Tick runs one inspection pass over every tracked session and lets the
// binge tracker drop idle starters.
func (e *Engine) Tick() {
	e.mu.Lock()
	snapshot := make([]*media.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		snapshot = append(snapshot, s)
	}
	e.mu.Unlock()

	for _, s := range snapshot {
		e.checkMedia(s)
	}
	e.binge.Clean()
}

// Remove drops the session from the table. The pointer must still be the
// table's current occupant; a session re-admitted under the same identity
// is left alone.
func (e *Engine) Remove(s *media.Session, reason string) {
	e.mu.Lock()
	current, ok := e.sessions[s.ID()]
	if ok && current == s {
		delete(e.sessions, s.ID())
	}
	n := len(e.sessions)
	e.mu.Unlock()

	if !ok || current != s {
		return
	}
	logging.Debug().
		Str("session", s.String()).
		Str("reason", reason).
		Int("sessions", n).
		Msg("Removed session")
	metrics.RecordSessionRemoved(reason)
	metrics.SessionsActive.Set(float64(n))
}

// Ignore puts the session's identity on the ignore list so its future
// alerts are dropped without admission, evicting any tracked session on
// the same player first.
func (e *Engine) Ignore(s *media.Session) {
	e.purgeTakenOver(s)
	e.ignored.Add(s.ID())
	n := e.ignored.Len()
	metrics.SessionsIgnored.Set(float64(n))
	logging.Debug().
		Str("session", s.String()).
		Str("user", s.User).
		Int("ignored", n).
		Msg("Ignoring session")
}

// purgeTakenOver evicts a tracked session playing on the same machine as
// s. One player runs one session; a new session on the machine means the
// old one is gone even if its stop alert never arrived.
func (e *Engine) purgeTakenOver(s *media.Session) {
	machine := s.Player.MachineIdentifier
	if machine == "" {
		return
	}

	e.mu.Lock()
	var victim *media.Session
	for _, existing := range e.sessions {
		if existing != s && existing.ClientIdentifier == machine {
			victim = existing
			break
		}
	}
	if victim != nil {
		delete(e.sessions, victim.ID())
	}
	n := len(e.sessions)
	e.mu.Unlock()

	if victim == nil {
		return
	}
	logging.Info().
		Str("session", victim.String()).
		Str("machine", machine).
		Str("successor", s.String()).
		Msg("Session shares a player with a new session, deleting the old one")
	metrics.RecordSessionRemoved("takeover")
	metrics.SessionsActive.Set(float64(n))
}

// install puts the session in the table.
func (e *Engine) install(s *media.Session) {
	e.mu.Lock()
	e.sessions[s.ID()] = s
	n := len(e.sessions)
	e.mu.Unlock()

	metrics.SessionsStarted.Inc()
	metrics.SessionsActive.Set(float64(n))
}
