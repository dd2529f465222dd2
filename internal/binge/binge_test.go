// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package binge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tomtom215/transilio/internal/media"
	"github.com/tomtom215/transilio/internal/models"
)

type fakeQueue struct {
	containers map[int64]*models.PlayQueueContainer
	err        error
	calls      int
}

func (f *fakeQueue) PlayQueue(_ context.Context, id int64) (*models.PlayQueueContainer, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	pq, ok := f.containers[id]
	if !ok {
		return nil, errors.New("play queue not found")
	}
	return pq, nil
}

func queueOf(id int64, showKey string, ratingKeys ...string) *models.PlayQueueContainer {
	items := make([]models.Metadata, 0, len(ratingKeys))
	for _, key := range ratingKeys {
		items = append(items, models.Metadata{
			RatingKey:            key,
			GrandparentRatingKey: showKey,
			Type:                 models.TypeEpisode,
		})
	}
	return &models.PlayQueueContainer{PlayQueueID: id, Metadata: items, Size: len(items)}
}

func episodeItem(ratingKey, showKey, user string) *models.Metadata {
	return &models.Metadata{
		RatingKey:            ratingKey,
		ParentRatingKey:      showKey + "-s1",
		GrandparentRatingKey: showKey,
		Type:                 models.TypeEpisode,
		Title:                "Episode " + ratingKey,
		Duration:             1800000,
		SessionKey:           "77",
		User:                 &models.SessionUser{ID: "1", Title: user},
		Player: &models.SessionPlayer{
			Title:             "Living Room",
			Product:           "Plex for Roku",
			MachineIdentifier: "client-1",
			Address:           "192.168.1.20",
		},
		Markers: []models.Marker{
			{Type: "intro", StartTimeOffset: 30000, EndTimeOffset: 60000},
			{Type: "commercial", StartTimeOffset: 900000, EndTimeOffset: 930000},
		},
	}
}

func episodeSession(t *testing.T, item *models.Metadata, playQueueID int64) *media.Session {
	t.Helper()
	return media.New(item, "client-1", media.StatePaused, playQueueID, media.Defaults{
		Mode: "skip",
		Tags: []string{"intro", "commercial"},
	}, nil)
}

func markerTypes(t *testing.T, s *media.Session) []string {
	t.Helper()
	markers := s.Markers()
	types := make([]string, 0, len(markers))
	for _, m := range markers {
		types = append(types, m.Type)
	}
	return types
}

func TestBingeBlocksOpeningEpisodes(t *testing.T) {
	queue := &fakeQueue{containers: map[int64]*models.PlayQueueContainer{
		40: queueOf(40, "10", "101", "102", "103", "104", "105"),
	}}
	tracker := NewTracker(Config{
		BlockCount:   3,
		SafeTags:     []string{"commercial"},
		SameShowOnly: true,
	}, queue)
	ctx := context.Background()

	var prev *media.Session
	for i, ratingKey := range []string{"101", "102", "103", "104"} {
		if prev != nil {
			// Watch two thirds of the previous episode before moving on.
			prev.UpdateOffset(1200000, media.StatePaused)
		}
		s := episodeSession(t, episodeItem(ratingKey, "10", "alice"), 40)
		tracker.Update(ctx, s)

		wantBlocked := i < 3
		tags := s.Tags()
		if wantBlocked {
			if len(tags) != 1 || tags[0] != "commercial" {
				t.Fatalf("episode %s: tags = %v, want [commercial]", ratingKey, tags)
			}
			if types := markerTypes(t, s); len(types) != 1 || types[0] != "commercial" {
				t.Fatalf("episode %s: marker types = %v, want [commercial]", ratingKey, types)
			}
			if !tracker.Blocking("client-1") {
				t.Fatalf("episode %s: Blocking = false, want true", ratingKey)
			}
		} else {
			if len(tags) != 2 {
				t.Fatalf("episode %s: tags = %v, want intro and commercial", ratingKey, tags)
			}
			if types := markerTypes(t, s); len(types) != 2 {
				t.Fatalf("episode %s: marker types = %v, want both markers", ratingKey, types)
			}
			if tracker.Blocking("client-1") {
				t.Fatalf("episode %s: Blocking = true, want false", ratingKey)
			}
		}
		prev = s
	}

	if queue.calls != 1 {
		t.Fatalf("play queue fetched %d times, want 1", queue.calls)
	}
}

func TestBingeCountRequiresWatchedPrevious(t *testing.T) {
	queue := &fakeQueue{containers: map[int64]*models.PlayQueueContainer{
		40: queueOf(40, "10", "101", "102", "103"),
	}}
	tracker := NewTracker(Config{BlockCount: 1, SafeTags: []string{"commercial"}}, queue)
	ctx := context.Background()

	first := episodeSession(t, episodeItem("101", "10", "alice"), 40)
	tracker.Update(ctx, first)

	// Bail out of the first episode almost immediately.
	first.UpdateOffset(120000, media.StatePaused)

	second := episodeSession(t, episodeItem("102", "10", "alice"), 40)
	tracker.Update(ctx, second)

	bs := tracker.sessions["client-1"]
	if bs == nil {
		t.Fatal("binge record missing after second episode")
	}
	if bs.count != 1 {
		t.Fatalf("count = %d after unwatched previous episode, want 1", bs.count)
	}
	if tags := second.Tags(); len(tags) != 1 || tags[0] != "commercial" {
		t.Fatalf("second episode tags = %v, want still filtered", tags)
	}

	// Now actually watch it before starting the next one.
	second.UpdateOffset(1500000, media.StatePaused)
	third := episodeSession(t, episodeItem("103", "10", "alice"), 40)
	tracker.Update(ctx, third)

	if bs.count != 2 {
		t.Fatalf("count = %d after watched previous episode, want 2", bs.count)
	}
	if tags := third.Tags(); len(tags) != 2 {
		t.Fatalf("third episode tags = %v, want unfiltered past block", tags)
	}
}

func TestBingeRefiltersRebuiltSession(t *testing.T) {
	queue := &fakeQueue{containers: map[int64]*models.PlayQueueContainer{
		40: queueOf(40, "10", "101", "102"),
	}}
	tracker := NewTracker(Config{BlockCount: 3, SafeTags: []string{"commercial"}}, queue)
	ctx := context.Background()

	first := episodeSession(t, episodeItem("101", "10", "alice"), 40)
	tracker.Update(ctx, first)

	// The engine drops and recreates sessions, for example after a
	// timeout. The fresh session object must pick the filter back up
	// without advancing the count.
	rebuilt := episodeSession(t, episodeItem("101", "10", "alice"), 40)
	tracker.Update(ctx, rebuilt)

	bs := tracker.sessions["client-1"]
	if bs == nil || bs.count != 1 {
		t.Fatalf("count after rebuild = %+v, want 1", bs)
	}
	if bs.current != rebuilt {
		t.Fatal("binge record still tracks the stale session object")
	}
	if tags := rebuilt.Tags(); len(tags) != 1 || tags[0] != "commercial" {
		t.Fatalf("rebuilt session tags = %v, want filtered", tags)
	}
}

func TestBingeAdmission(t *testing.T) {
	movie := episodeItem("900", "", "alice")
	movie.Type = models.TypeMovie
	movie.GrandparentRatingKey = ""
	movie.ParentRatingKey = ""

	tests := []struct {
		name         string
		item         *models.Metadata
		playQueueID  int64
		containers   map[int64]*models.PlayQueueContainer
		queueErr     error
		sameShowOnly bool
		wantErr      error
	}{
		{
			name:        "episode with queue remaining",
			item:        episodeItem("101", "10", "alice"),
			playQueueID: 40,
			containers:  map[int64]*models.PlayQueueContainer{40: queueOf(40, "10", "101", "102")},
			wantErr:     nil,
		},
		{
			name:        "movie",
			item:        movie,
			playQueueID: 40,
			containers:  map[int64]*models.PlayQueueContainer{40: queueOf(40, "", "900", "901")},
			wantErr:     ErrWrongType,
		},
		{
			name:        "no play queue id",
			item:        episodeItem("101", "10", "alice"),
			playQueueID: 0,
			wantErr:     ErrNoPlayQueue,
		},
		{
			name:        "queue fetch fails",
			item:        episodeItem("101", "10", "alice"),
			playQueueID: 40,
			queueErr:    errors.New("server unavailable"),
			wantErr:     ErrNoPlayQueue,
		},
		{
			name:        "empty queue",
			item:        episodeItem("101", "10", "alice"),
			playQueueID: 40,
			containers:  map[int64]*models.PlayQueueContainer{40: queueOf(40, "10")},
			wantErr:     ErrNoPlayQueue,
		},
		{
			name:        "last in queue",
			item:        episodeItem("102", "10", "alice"),
			playQueueID: 40,
			containers:  map[int64]*models.PlayQueueContainer{40: queueOf(40, "10", "101", "102")},
			wantErr:     ErrLastInQueue,
		},
		{
			name:        "mixed shows with same show only",
			item:        episodeItem("101", "10", "alice"),
			playQueueID: 40,
			containers: map[int64]*models.PlayQueueContainer{40: {
				PlayQueueID: 40,
				Metadata: []models.Metadata{
					{RatingKey: "101", GrandparentRatingKey: "10", Type: models.TypeEpisode},
					{RatingKey: "501", GrandparentRatingKey: "20", Type: models.TypeEpisode},
				},
			}},
			sameShowOnly: true,
			wantErr:      ErrMixedContent,
		},
		{
			name:        "mixed shows allowed by default",
			item:        episodeItem("101", "10", "alice"),
			playQueueID: 40,
			containers: map[int64]*models.PlayQueueContainer{40: {
				PlayQueueID: 40,
				Metadata: []models.Metadata{
					{RatingKey: "101", GrandparentRatingKey: "10", Type: models.TypeEpisode},
					{RatingKey: "501", GrandparentRatingKey: "20", Type: models.TypeEpisode},
				},
			}},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &fakeQueue{containers: tt.containers, err: tt.queueErr}
			tracker := NewTracker(Config{
				BlockCount:   2,
				SafeTags:     []string{"commercial"},
				SameShowOnly: tt.sameShowOnly,
			}, queue)

			s := episodeSession(t, tt.item, tt.playQueueID)
			err := tracker.admissible(context.Background(), s)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("admissible() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBingeIgnoresRejectedQueues(t *testing.T) {
	queue := &fakeQueue{containers: map[int64]*models.PlayQueueContainer{
		60: queueOf(60, "10", "100", "101"),
	}}
	tracker := NewTracker(Config{BlockCount: 2, SafeTags: []string{"commercial"}}, queue)
	ctx := context.Background()

	// Last item in the queue fails admission and the queue goes on the
	// ignore list.
	last := episodeSession(t, episodeItem("101", "10", "alice"), 60)
	tracker.Update(ctx, last)
	if len(tracker.sessions) != 0 {
		t.Fatal("rejected session created a binge record")
	}
	if queue.calls != 1 {
		t.Fatalf("play queue fetched %d times, want 1", queue.calls)
	}

	// Further updates for the same play queue skip admission entirely.
	tracker.Update(ctx, episodeSession(t, episodeItem("101", "10", "alice"), 60))
	if queue.calls != 1 {
		t.Fatalf("ignored queue fetched again, calls = %d", queue.calls)
	}
}

func TestBingeIgnoredListBounded(t *testing.T) {
	tracker := NewTracker(Config{BlockCount: 1, SafeTags: []string{"commercial"}}, &fakeQueue{})
	ctx := context.Background()

	for i := 1; i <= ignoredCap+5; i++ {
		item := episodeItem(fmt.Sprintf("%d", i), "", "alice")
		item.Type = models.TypeMovie
		tracker.Update(ctx, episodeSession(t, item, int64(i)))
	}

	if len(tracker.ignored) != ignoredCap {
		t.Fatalf("ignored list length = %d, want %d", len(tracker.ignored), ignoredCap)
	}
	if tracker.ignoredLocked(1) {
		t.Fatal("oldest ignored queue still present after cap")
	}
	if !tracker.ignoredLocked(int64(ignoredCap + 5)) {
		t.Fatal("newest ignored queue missing")
	}
}

func TestBingeAlternativeContent(t *testing.T) {
	queue := &fakeQueue{containers: map[int64]*models.PlayQueueContainer{
		40: queueOf(40, "10", "101", "102"),
		41: queueOf(41, "20", "501", "502"),
	}}
	tracker := NewTracker(Config{
		BlockCount:   3,
		SafeTags:     []string{"commercial"},
		SameShowOnly: true,
	}, queue)
	ctx := context.Background()

	first := episodeSession(t, episodeItem("101", "10", "alice"), 40)
	tracker.Update(ctx, first)
	first.UpdateOffset(1500000, media.StatePaused)

	t.Run("different show restarts the count", func(t *testing.T) {
		other := episodeSession(t, episodeItem("501", "20", "alice"), 41)
		tracker.Update(ctx, other)

		bs := tracker.sessions["client-1"]
		if bs == nil {
			t.Fatal("no binge record after show switch")
		}
		if bs.count != 1 {
			t.Fatalf("count = %d after show switch, want fresh record", bs.count)
		}
		if bs.current != other {
			t.Fatal("binge record does not track the new show's session")
		}
	})

	t.Run("different user restarts the count", func(t *testing.T) {
		bob := episodeSession(t, episodeItem("501", "20", "bob"), 41)
		tracker.Update(ctx, bob)

		bs := tracker.sessions["client-1"]
		if bs == nil || bs.count != 1 || bs.current != bob {
			t.Fatalf("binge record = %+v, want fresh record for new user", bs)
		}
	})
}

func TestBingeClean(t *testing.T) {
	queue := &fakeQueue{containers: map[int64]*models.PlayQueueContainer{
		40: queueOf(40, "10", "101", "102"),
	}}
	tracker := NewTracker(Config{BlockCount: 2, SafeTags: []string{"commercial"}}, queue)
	ctx := context.Background()

	tracker.Update(ctx, episodeSession(t, episodeItem("101", "10", "alice"), 40))

	tracker.Clean()
	if len(tracker.sessions) != 1 {
		t.Fatal("fresh binge record evicted")
	}

	tracker.mu.Lock()
	tracker.sessions["client-1"].lastUpdate = time.Now().Add(-sessionTimeout - time.Second)
	tracker.mu.Unlock()

	tracker.Clean()
	if len(tracker.sessions) != 0 {
		t.Fatal("idle binge record survived Clean")
	}
}

func TestBingeSkipNextBudget(t *testing.T) {
	queue := &fakeQueue{containers: map[int64]*models.PlayQueueContainer{
		40: queueOf(40, "10", "101", "102", "103"),
	}}
	tracker := NewTracker(Config{SkipNextMax: 2}, queue)
	ctx := context.Background()

	s := episodeSession(t, episodeItem("101", "10", "alice"), 40)
	tracker.Update(ctx, s)

	// No tag filtering without a block count.
	if tags := s.Tags(); len(tags) != 2 {
		t.Fatalf("tags = %v, want untouched without block count", tags)
	}

	if tracker.BlockSkipNext("client-1") {
		t.Fatal("advance budget exhausted before any advances")
	}
	tracker.RegisterAdvance("client-1")
	if tracker.BlockSkipNext("client-1") {
		t.Fatal("advance budget exhausted after one advance, want two allowed")
	}
	tracker.RegisterAdvance("client-1")
	if !tracker.BlockSkipNext("client-1") {
		t.Fatal("advance budget not exhausted after max advances")
	}
	if tracker.BlockSkipNext("other-client") {
		t.Fatal("unknown client reported as exhausted")
	}
}

func TestBingeDisabled(t *testing.T) {
	queue := &fakeQueue{containers: map[int64]*models.PlayQueueContainer{
		40: queueOf(40, "10", "101", "102"),
	}}
	tracker := NewTracker(Config{}, queue)
	ctx := context.Background()

	tracker.Update(ctx, episodeSession(t, episodeItem("101", "10", "alice"), 40))
	if queue.calls != 0 || len(tracker.sessions) != 0 {
		t.Fatal("disabled tracker still admitted a session")
	}

	enabled := NewTracker(Config{BlockCount: 1, SafeTags: []string{"commercial"}}, queue)
	ended := episodeSession(t, episodeItem("101", "10", "alice"), 40)
	ended.MarkEnded()
	enabled.Update(ctx, ended)
	if queue.calls != 0 || len(enabled.sessions) != 0 {
		t.Fatal("ended session still admitted")
	}
}
