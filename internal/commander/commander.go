// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Package commander executes player commands on short-lived workers so the
// engine's tick loop never blocks on network I/O. A weighted semaphore
// bounds worker concurrency and a per-player circuit breaker stops a dead
// player from eating the pool.
package commander

import (
	"context"
	"errors"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/transilio/internal/config"
	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/media"
	"github.com/tomtom215/transilio/internal/metrics"
	"github.com/tomtom215/transilio/internal/models"
	"github.com/tomtom215/transilio/internal/plex"
)

const (
	// commandTimeout bounds a seek or volume worker; a single player RPC
	// plus retries fits comfortably.
	commandTimeout = 45 * time.Second

	// advanceTimeout bounds an advance worker, which chains several REST
	// calls, two player RPCs and two command delays.
	advanceTimeout = 3 * time.Minute

	// Circuit breaker shape: open after breakerFailures consecutive
	// failed commands, probe again after breakerCooldown, reset counts
	// every breakerInterval while closed.
	breakerFailures = 5
	breakerCooldown = 30 * time.Second
	breakerInterval = time.Minute
)

// Player is the slice of the Plex client the commander drives. Commands
// reach the player directly or proxied through the server depending on the
// target; queue and episode lookups always go to the server.
type Player interface {
	SeekTo(ctx context.Context, target plex.PlayerTarget, offset int64) error
	SetVolume(ctx context.Context, target plex.PlayerTarget, volume int) error
	Stop(ctx context.Context, target plex.PlayerTarget) error
	PlayMedia(ctx context.Context, target plex.PlayerTarget, queue *models.PlayQueueContainer, key string, offset int64) error
	Timeline(ctx context.Context, target plex.PlayerTarget) (*models.TimelineContainer, error)
	PlayQueue(ctx context.Context, id int64) (*models.PlayQueueContainer, error)
	CreatePlayQueue(ctx context.Context, items []models.Metadata, startKey string) (*models.PlayQueueContainer, error)
	Episodes(ctx context.Context, showRatingKey string) ([]models.Metadata, error)
	OnDeck(ctx context.Context) ([]models.Metadata, error)
}

// Binge is the tracker surface gating play-queue advances.
type Binge interface {
	BlockSkipNext(clientIdentifier string) bool
	RegisterAdvance(clientIdentifier string)
}

// Table removes sessions whose player stopped answering, so the next alert
// rebuilds them from a clean slate.
type Table interface {
	Remove(s *media.Session, reason string)
}

// Commander dispatches player commands. Seek, Advance and SetVolume return
// immediately; the work happens on a pooled goroutine.
type Commander struct {
	client Player
	binge  Binge
	cfg    *config.Config
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu       sync.Mutex
	table    Table
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// New builds a commander over the given client. BindTable must be called
// before the first command is dispatched.
func New(client Player, tracker Binge, cfg *config.Config) *Commander {
	return &Commander{
		client:   client,
		binge:    tracker,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Server.CommandPool)),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// BindTable wires the session table in. The engine and the commander
// reference each other, so the table arrives after construction.
func (c *Commander) BindTable(t Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = t
}

// Wait blocks until every in-flight worker has finished.
func (c *Commander) Wait() {
	c.wg.Wait()
}

// Seek moves the player to target. The caller already recorded the seek
// corridor; a dropped dispatch clears it so the next tick can retry.
func (c *Commander) Seek(s *media.Session, target int64) {
	ok := c.dispatch("seek", commandTimeout, func(ctx context.Context) {
		c.seek(ctx, s, target)
	})
	if !ok {
		s.ClearSeek()
	}
}

// Advance moves the player to the next play-queue item. The session is
// already removed from the table and ignored; a dropped dispatch just lets
// the item play out.
func (c *Commander) Advance(s *media.Session) {
	c.dispatch("advance", advanceTimeout, func(ctx context.Context) {
		c.advance(ctx, s)
	})
}

// SetVolume sets the player volume. The caller already flipped the
// session's lowering flag; a dropped dispatch flips it back so the next
// tick re-triggers the edge.
func (c *Commander) SetVolume(s *media.Session, volume int, lowering bool) {
	ok := c.dispatch("volume", commandTimeout, func(ctx context.Context) {
		c.setVolume(ctx, s, volume, lowering)
	})
	if ok {
		return
	}
	if lowering {
		s.EndLowering()
	} else {
		s.BeginLowering(volume)
	}
}

// dispatch runs fn on a pooled worker. It reports false when the pool is
// exhausted, in which case fn never runs.
func (c *Commander) dispatch(command string, timeout time.Duration, fn func(ctx context.Context)) bool {
	if !c.sem.TryAcquire(1) {
		logging.Warn().
			Str("command", command).
			Msg("Command pool exhausted, dropping command")
		metrics.RecordCommandDropped(command)
		return false
	}

	metrics.CommandPoolInFlight.Inc()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)
		defer metrics.CommandPoolInFlight.Dec()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}()
	return true
}

func (c *Commander) seek(ctx context.Context, s *media.Session, target int64) {
	err := c.run(ctx, s, "seek", func(ctx context.Context) error {
		return c.client.SeekTo(ctx, playerTarget(s), target)
	})

	switch {
	case err == nil:
	case errors.Is(err, plex.ErrUnparseableResponse):
		// Some players answer a delivered command with broken XML.
		logging.Debug().
			Str("session", s.String()).
			Msg("Player answered the seek with an unparseable body, treating as delivered")
	case breakerRejected(err):
		logging.Debug().
			Str("session", s.String()).
			Str("player", s.Player.Product).
			Msg("Player circuit open, dropping seek")
		s.ClearSeek()
	case plex.IsTimeout(err):
		logging.Debug().
			Str("session", s.String()).
			Msg("Seek timed out, removing session so the next alert rebuilds it")
		c.removeSession(s, metrics.RemoveTimeout)
	case errors.Is(err, plex.ErrBadRequest) || errors.Is(err, plex.ErrNotFound):
		c.logCommandError(err, s, "Player rejected the seek")
		s.SetState(media.StateBuffering)
		s.ClearSeek()
	default:
		logging.Error().
			Err(err).
			Str("session", s.String()).
			Msg("Seek failed, removing session so the next alert rebuilds it")
		c.removeSession(s, metrics.RemoveError)
	}
}

func (c *Commander) setVolume(ctx context.Context, s *media.Session, volume int, lowering bool) {
	target := playerTarget(s)

	// Refine the provisional volume cache from the player's timeline so
	// the restore puts back what the user actually had. Only the lower
	// edge reads it; the restore already consumed the cache.
	if lowering {
		if timeline, err := c.client.Timeline(ctx, target); err == nil {
			if video := timeline.VideoTimeline(); video != nil && video.Volume != nil {
				s.UpdateCachedVolume(int(*video.Volume))
			} else {
				logging.Debug().
					Str("session", s.String()).
					Int("fallback", s.CachedVolume()).
					Msg("Player timeline carries no volume, will restore the configured level")
			}
		} else {
			logging.Debug().
				Err(err).
				Str("session", s.String()).
				Int("fallback", s.CachedVolume()).
				Msg("Unable to read the player timeline, will restore the configured level")
		}
	}

	err := c.run(ctx, s, "volume", func(ctx context.Context) error {
		return c.client.SetVolume(ctx, target, volume)
	})

	switch {
	case err == nil:
	case errors.Is(err, plex.ErrUnparseableResponse):
		logging.Debug().
			Str("session", s.String()).
			Msg("Player answered the volume change with an unparseable body, treating as delivered")
	case breakerRejected(err):
		logging.Debug().
			Str("session", s.String()).
			Str("player", s.Player.Product).
			Msg("Player circuit open, dropping volume change")
	case plex.IsTimeout(err):
		logging.Debug().
			Str("session", s.String()).
			Msg("Volume change timed out, removing session so the next alert rebuilds it")
		c.removeSession(s, metrics.RemoveTimeout)
	case errors.Is(err, plex.ErrBadRequest) || errors.Is(err, plex.ErrNotFound):
		c.logCommandError(err, s, "Player rejected the volume change")
	default:
		logging.Error().
			Err(err).
			Str("session", s.String()).
			Msg("Volume change failed, removing session so the next alert rebuilds it")
		c.removeSession(s, metrics.RemoveError)
	}
}

func (c *Commander) advance(ctx context.Context, s *media.Session) {
	target := playerTarget(s)

	if c.binge.BlockSkipNext(s.ClientIdentifier) {
		logging.Info().
			Str("session", s.String()).
			Msg("Consecutive auto-advance budget exhausted, stopping playback")
		if err := c.run(ctx, s, "stop", func(ctx context.Context) error {
			return c.client.Stop(ctx, target)
		}); err != nil && !errors.Is(err, plex.ErrUnparseableResponse) {
			logging.Error().
				Err(err).
				Str("session", s.String()).
				Msg("Unable to stop playback")
		}
		return
	}

	queue := c.rebuildQueue(ctx, s)
	if queue == nil || len(queue.Items()) == 0 {
		logging.Warn().
			Str("session", s.String()).
			Int64("playQueueID", s.PlayQueueID).
			Msg("No play-queue data to advance with, seeking to the end instead")
		c.seekToEnd(ctx, s)
		return
	}
	if queue.IsLast(s.Media.RatingKey) {
		logging.Debug().
			Str("session", s.String()).
			Msg("Replacement queue still ends on the current item, seeking to the end to prevent a loop")
		c.seekToEnd(ctx, s)
		return
	}

	delay := c.delay(s)
	if !sleep(ctx, delay) {
		return
	}
	if err := c.run(ctx, s, "stop", func(ctx context.Context) error {
		return c.client.Stop(ctx, target)
	}); err != nil && !errors.Is(err, plex.ErrUnparseableResponse) {
		logging.Error().
			Err(err).
			Str("session", s.String()).
			Msg("Unable to stop playback before advancing")
		return
	}
	if !sleep(ctx, delay) {
		return
	}
	if err := c.run(ctx, s, "playMedia", func(ctx context.Context) error {
		return c.client.PlayMedia(ctx, target, queue, "", 0)
	}); err != nil && !errors.Is(err, plex.ErrUnparseableResponse) {
		logging.Error().
			Err(err).
			Str("session", s.String()).
			Int64("playQueueID", queue.PlayQueueID).
			Msg("Unable to start the replacement play queue")
		return
	}

	c.binge.RegisterAdvance(s.ClientIdentifier)
	logging.Info().
		Str("session", s.String()).
		Str("player", s.Player.Product).
		Int64("playQueueID", queue.PlayQueueID).
		Msg("Advanced player to the next play-queue item")
}

// rebuildQueue produces a play queue positioned on the item after the
// session's. It tries the session's own queue first, then the remaining
// show episodes, then the show's on-deck entry. nil means nothing to
// advance to.
func (c *Commander) rebuildQueue(ctx context.Context, s *media.Session) *models.PlayQueueContainer {
	var queue *models.PlayQueueContainer

	current, err := c.client.PlayQueue(ctx, s.PlayQueueID)
	switch {
	case err != nil:
		logging.Debug().
			Err(err).
			Int64("playQueueID", s.PlayQueueID).
			Msg("Unable to fetch the session's play queue, trying the show episodes")
		queue = c.rebuildFromEpisodes(ctx, s)
	case current.IsLast(s.Media.RatingKey):
		logging.Debug().
			Int64("playQueueID", current.PlayQueueID).
			Msg("No more items in the play queue, at the end")
	default:
		if next := current.NextAfter(s.Media.RatingKey); next != nil {
			queue = c.createQueue(ctx, current.Items(), next.RatingKey)
		} else {
			logging.Debug().
				Int64("playQueueID", current.PlayQueueID).
				Msg("Session item missing from its play queue, trying the show episodes")
			queue = c.rebuildFromEpisodes(ctx, s)
		}
	}

	if queue == nil && s.Media.IsEpisode() {
		queue = c.rebuildFromOnDeck(ctx, s)
	}
	return queue
}

func (c *Commander) rebuildFromEpisodes(ctx context.Context, s *media.Session) *models.PlayQueueContainer {
	if !s.Media.IsEpisode() || s.Media.GrandparentRatingKey == "" {
		return nil
	}

	episodes, err := c.client.Episodes(ctx, s.Media.GrandparentRatingKey)
	if err != nil || len(episodes) == 0 {
		logging.Debug().
			Err(err).
			Str("show", s.Media.GrandparentTitle).
			Msg("Unable to list show episodes for a replacement queue")
		return nil
	}
	next := nextAfter(episodes, s.Media.RatingKey)
	if next == nil {
		logging.Debug().
			Str("show", s.Media.GrandparentTitle).
			Msg("No remaining episodes in the series to build a queue from")
		return nil
	}
	logging.Debug().
		Str("show", s.Media.GrandparentTitle).
		Int("episodes", len(episodes)).
		Msg("Building a replacement queue from the remaining episodes")
	return c.createQueue(ctx, episodes, next.RatingKey)
}

func (c *Commander) rebuildFromOnDeck(ctx context.Context, s *media.Session) *models.PlayQueueContainer {
	onDeck, err := c.client.OnDeck(ctx)
	if err != nil {
		logging.Debug().
			Err(err).
			Msg("Unable to read the on-deck list for a replacement queue")
		return nil
	}

	items := []models.Metadata{*s.Media}
	for i := range onDeck {
		if onDeck[i].GrandparentRatingKey == s.Media.GrandparentRatingKey {
			items = append(items, onDeck[i])
		}
	}
	if len(items) < 2 {
		logging.Debug().
			Str("show", s.Media.GrandparentTitle).
			Msg("No on-deck episode for the show to build a queue from")
		return nil
	}
	logging.Debug().
		Str("show", s.Media.GrandparentTitle).
		Msg("Building a replacement queue from the show's on-deck entry")
	return c.createQueue(ctx, items, items[1].RatingKey)
}

func (c *Commander) createQueue(ctx context.Context, items []models.Metadata, startKey string) *models.PlayQueueContainer {
	queue, err := c.client.CreatePlayQueue(ctx, items, startKey)
	if err != nil {
		logging.Debug().
			Err(err).
			Str("startKey", startKey).
			Msg("Unable to create a replacement play queue")
		return nil
	}
	logging.Debug().
		Int64("playQueueID", queue.PlayQueueID).
		Str("startKey", startKey).
		Msg("Created replacement play queue")
	return queue
}

// seekToEnd is the advance fallback when no queue can be built: park the
// player at the end of the item (short of the product's fudge) and let it
// finish naturally.
func (c *Commander) seekToEnd(ctx context.Context, s *media.Session) {
	duration := s.Media.Duration
	if duration <= 0 {
		return
	}
	target := duration - s.Player.SeekFudge()
	err := c.run(ctx, s, "seek", func(ctx context.Context) error {
		return c.client.SeekTo(ctx, playerTarget(s), target)
	})
	if err != nil && !errors.Is(err, plex.ErrUnparseableResponse) {
		logging.Debug().
			Err(err).
			Str("session", s.String()).
			Int64("target", target).
			Msg("Unable to seek to the end of the item")
	}
}

// run executes one player RPC behind the player's circuit breaker and
// records command metrics. Unparseable responses count as delivered.
func (c *Commander) run(ctx context.Context, s *media.Session, command string, fn func(ctx context.Context) error) error {
	start := time.Now()
	_, err := c.breaker(s.Player).Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})

	outcome := metrics.OutcomeOK
	if err != nil && !errors.Is(err, plex.ErrUnparseableResponse) {
		outcome = metrics.OutcomeError
	}
	metrics.RecordCommand(command, outcome, time.Since(start))
	return err
}

func (c *Commander) breaker(p media.PlayerInfo) *gobreaker.CircuitBreaker[struct{}] {
	key := p.MachineIdentifier
	if key == "" {
		key = p.Title
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[key]; ok {
		return cb
	}

	name := p.Title
	if name == "" {
		name = key
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    breakerInterval,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, plex.ErrUnparseableResponse)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerGauge(to))
			logging.Warn().
				Str("player", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Player circuit breaker state change")
		},
	})
	c.breakers[key] = cb
	return cb
}

func (c *Commander) removeSession(s *media.Session, reason string) {
	c.mu.Lock()
	table := c.table
	c.mu.Unlock()
	if table != nil {
		table.Remove(s, reason)
	}
}

func (c *Commander) logCommandError(err error, s *media.Session, msg string) {
	event := logging.Error().
		Err(err).
		Str("session", s.String()).
		Str("player", s.Player.Product)
	var cmdErr *plex.CommandError
	if errors.As(err, &cmdErr) {
		if hint := cmdErr.Hint(); hint != "" {
			event = event.Str("hint", hint)
		}
	}
	event.Msg(msg)
}

// delay returns the stop/play spacing for the session's player, falling
// back to the configured default.
func (c *Commander) delay(s *media.Session) time.Duration {
	ms := s.CommandDelay
	if ms <= 0 {
		ms = c.cfg.Offsets.Command
	}
	return time.Duration(ms) * time.Millisecond
}

func playerTarget(s *media.Session) plex.PlayerTarget {
	return plex.PlayerTarget{
		Title:             s.Player.Title,
		MachineIdentifier: s.Player.MachineIdentifier,
		BaseURL:           s.Player.BaseURL,
	}
}

// nextAfter returns the item following ratingKey in the list, nil when
// ratingKey is missing or last.
func nextAfter(items []models.Metadata, ratingKey string) *models.Metadata {
	for i := range items {
		if items[i].RatingKey == ratingKey && i+1 < len(items) {
			return &items[i+1]
		}
	}
	return nil
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func breakerGauge(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
