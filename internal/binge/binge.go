// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Package binge suppresses skipping during the opening episodes of a
// binge-watch so intros and recaps still play while the viewer settles in.
//
// The tracker keys one state record per player client. A record is created
// when an episode starts with a play queue that has more items behind it;
// the episode count increments each time the previous episode was watched
// past half its duration. While the count is at or below the configured
// block count, every session update filters the session's tags and custom
// markers down to the safe set. The tracker also counts play-queue
// auto-advances per client so the commander can stop playback after the
// configured maximum of consecutive skips.
package binge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/media"
	"github.com/tomtom215/transilio/internal/metrics"
	"github.com/tomtom215/transilio/internal/models"
)

// Admission errors. A play queue that fails admission is remembered and
// not retried.
var (
	ErrWrongType    = errors.New("media is not an episode")
	ErrMixedContent = errors.New("play queue mixes multiple shows")
	ErrNoPlayQueue  = errors.New("no play queue for session")
	ErrLastInQueue  = errors.New("media is the last item in its play queue")
)

const (
	// watchedPercentage is the fraction of an episode's duration that
	// counts as "watched" when crediting the binge count.
	watchedPercentage = 0.5

	// sessionTimeout evicts binge records idle longer than this.
	sessionTimeout = 300 * time.Second

	// ignoredCap bounds the rejected play-queue list.
	ignoredCap = 200
)

// Queue fetches play queues for admission checks. *plex.Client satisfies
// it.
type Queue interface {
	PlayQueue(ctx context.Context, id int64) (*models.PlayQueueContainer, error)
}

// Config carries the binge-related options.
type Config struct {
	// BlockCount is how many opening episodes keep their intros. Zero
	// disables tag filtering.
	BlockCount int

	// SafeTags survive while filtering is active.
	SafeTags []string

	// SameShowOnly restricts a binge record to episodes of one show.
	SameShowOnly bool

	// SkipNextMax caps consecutive play-queue auto-advances per client.
	// Zero means unlimited.
	SkipNextMax int
}

// session is one client's binge state.
type session struct {
	current    *media.Session
	count      int
	advances   int
	lastUpdate time.Time
}

func (b *session) remaining(blockCount int) int {
	if r := blockCount - b.count; r > 0 {
		return r
	}
	return 0
}

// Tracker holds per-client binge state. All methods are safe for
// concurrent use by the alert worker, the tick worker and commander
// workers.
type Tracker struct {
	cfg   Config
	queue Queue

	mu       sync.Mutex
	sessions map[string]*session
	ignored  []int64
}

// NewTracker returns a tracker for the given options.
func NewTracker(cfg Config, queue Queue) *Tracker {
	return &Tracker{
		cfg:      cfg,
		queue:    queue,
		sessions: make(map[string]*session),
	}
}

// Enabled reports whether the tracker does anything at all.
func (t *Tracker) Enabled() bool {
	return t.cfg.BlockCount > 0 || t.cfg.SkipNextMax > 0
}

// Update feeds one session update to the tracker. It renews or replaces
// the client's binge record and applies safe-tag filtering to the session
// while the block is active.
func (t *Tracker) Update(ctx context.Context, s *media.Session) {
	if !t.Enabled() || s.Ended() {
		return
	}

	t.mu.Lock()
	if t.ignoredLocked(s.PlayQueueID) {
		t.mu.Unlock()
		return
	}
	if bs, ok := t.sessions[s.ClientIdentifier]; ok {
		if t.renewLocked(bs, s) {
			logging.Debug().
				Str("session", s.ID()).
				Int("count", bs.count).
				Int("remaining", bs.remaining(t.cfg.BlockCount)).
				Msg("Updated binge starter")
			t.mu.Unlock()
			return
		}
		// Player moved on to alternative content.
		delete(t.sessions, s.ClientIdentifier)
		logging.Debug().
			Str("client", s.ClientIdentifier).
			Msg("Binge starter no longer relevant, player is playing alternative content")
	}
	t.mu.Unlock()

	t.start(ctx, s)
}

// start attempts to admit a new binge record for the session's client. The
// play-queue fetch happens outside the tracker lock.
func (t *Tracker) start(ctx context.Context, s *media.Session) {
	if err := t.admissible(ctx, s); err != nil {
		t.mu.Lock()
		t.ignoreLocked(s.PlayQueueID)
		t.mu.Unlock()
		logging.Debug().
			Err(err).
			Str("session", s.ID()).
			Int64("playQueueID", s.PlayQueueID).
			Msg("Session not eligible for binge tracking")
		return
	}

	bs := &session{current: s, count: 1, lastUpdate: time.Now()}

	t.mu.Lock()
	t.sessions[s.ClientIdentifier] = bs
	t.applyBlockLocked(bs)
	remaining := bs.remaining(t.cfg.BlockCount)
	t.mu.Unlock()

	logging.Debug().
		Str("session", s.ID()).
		Int("remaining", remaining).
		Msg("Created binge starter")
}

// admissible checks whether the session can seed a binge record.
func (t *Tracker) admissible(ctx context.Context, s *media.Session) error {
	if !s.Media.IsEpisode() {
		return ErrWrongType
	}
	if s.PlayQueueID == 0 {
		return ErrNoPlayQueue
	}
	pq, err := t.queue.PlayQueue(ctx, s.PlayQueueID)
	if err != nil || pq == nil || len(pq.Items()) == 0 {
		return ErrNoPlayQueue
	}
	if pq.IsLast(s.Media.RatingKey) {
		return ErrLastInQueue
	}
	if t.cfg.SameShowOnly && s.Media.HasGrandparent() {
		for _, item := range pq.Items() {
			if item.HasGrandparent() && item.GrandparentRatingKey != s.Media.GrandparentRatingKey {
				return ErrMixedContent
			}
		}
	}
	return nil
}

// renewLocked refreshes an existing binge record with a session update and
// reports whether the record still applies. The previous episode is
// credited to the count when it was watched past the threshold before the
// player moved on.
func (t *Tracker) renewLocked(bs *session, s *media.Session) bool {
	if bs.current.User != s.User {
		return false
	}
	if t.cfg.SameShowOnly &&
		bs.current.Media.HasGrandparent() && s.Media.HasGrandparent() &&
		bs.current.Media.GrandparentRatingKey != s.Media.GrandparentRatingKey {
		return false
	}

	if s.Media.RatingKey != bs.current.Media.RatingKey {
		prev := bs.current
		if prev.Media.Duration > 0 &&
			float64(prev.ViewOffset())/float64(prev.Media.Duration) >= watchedPercentage {
			bs.count++
		}
	}
	// Rebuilt sessions for the same episode still need the filter, so
	// track the live session object, not just the rating key.
	if bs.current != s {
		bs.current = s
		t.applyBlockLocked(bs)
	}
	bs.lastUpdate = time.Now()
	return true
}

// applyBlockLocked filters the tracked session down to the safe tags while
// the block is active.
func (t *Tracker) applyBlockLocked(bs *session) {
	if t.cfg.BlockCount <= 0 || bs.count > t.cfg.BlockCount {
		return
	}
	bs.current.RestrictTags(t.cfg.SafeTags)
	bs.current.RestrictCustomMarkers(t.cfg.SafeTags)
	metrics.BingeBlocks.Inc()
}

// Blocking reports whether the client is inside its binge block.
func (t *Tracker) Blocking(clientIdentifier string) bool {
	if t.cfg.BlockCount <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bs, ok := t.sessions[clientIdentifier]
	return ok && bs.count <= t.cfg.BlockCount
}

// BlockSkipNext reports whether the client has exhausted its consecutive
// auto-advance budget. The commander stops playback instead of advancing
// when this returns true.
func (t *Tracker) BlockSkipNext(clientIdentifier string) bool {
	if t.cfg.SkipNextMax <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bs, ok := t.sessions[clientIdentifier]
	return ok && bs.advances >= t.cfg.SkipNextMax
}

// RegisterAdvance records one play-queue auto-advance for the client.
func (t *Tracker) RegisterAdvance(clientIdentifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if bs, ok := t.sessions[clientIdentifier]; ok {
		bs.advances++
	}
}

// Clean evicts binge records that have not been updated within the
// timeout. The engine calls it once per tick.
func (t *Tracker) Clean() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for client, bs := range t.sessions {
		if time.Since(bs.lastUpdate) > sessionTimeout {
			logging.Debug().
				Str("client", client).
				Msg("Binge starter idle, removing")
			delete(t.sessions, client)
		}
	}
}

func (t *Tracker) ignoredLocked(playQueueID int64) bool {
	for _, id := range t.ignored {
		if id == playQueueID {
			return true
		}
	}
	return false
}

func (t *Tracker) ignoreLocked(playQueueID int64) {
	t.ignored = append(t.ignored, playQueueID)
	if len(t.ignored) > ignoredCap {
		t.ignored = t.ignored[len(t.ignored)-ignoredCap:]
	}
}
