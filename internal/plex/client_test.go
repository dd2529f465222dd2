// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/transilio/internal/models"
)

func newTestClient(server *httptest.Server) *Client {
	return New(server.URL, "test-token", Options{Identifier: "transilio-test"})
}

func encodeMetadata(w http.ResponseWriter, items ...models.Metadata) {
	json.NewEncoder(w).Encode(models.MetadataResponse{
		MediaContainer: models.MetadataContainer{Size: len(items), Metadata: items},
	})
}

func TestSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/sessions" {
			t.Errorf("path = %s, want /status/sessions", r.URL.Path)
		}
		if got := r.Header.Get("X-Plex-Token"); got != "test-token" {
			t.Errorf("X-Plex-Token = %q, want test-token", got)
		}
		if got := r.Header.Get("X-Plex-Client-Identifier"); got != "transilio-test" {
			t.Errorf("X-Plex-Client-Identifier = %q, want transilio-test", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		encodeMetadata(w,
			models.Metadata{SessionKey: "1", Title: "Pilot"},
			models.Metadata{SessionKey: "2", Title: "Heat"},
		)
	}))
	defer server.Close()

	sessions, err := newTestClient(server).Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	if sessions[0].Title != "Pilot" {
		t.Errorf("sessions[0].Title = %q, want Pilot", sessions[0].Title)
	}
}

func TestFindSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encodeMetadata(w,
			models.Metadata{
				SessionKey: "8", Title: "On A",
				Player: &models.SessionPlayer{MachineIdentifier: "client-a"},
			},
			models.Metadata{
				SessionKey: "8", Title: "On B",
				Player: &models.SessionPlayer{MachineIdentifier: "client-b"},
			},
		)
	}))
	defer server.Close()

	client := newTestClient(server)

	found, err := client.FindSession(context.Background(), "8", "client-b")
	if err != nil {
		t.Fatalf("FindSession() error = %v", err)
	}
	if found.Title != "On B" {
		t.Errorf("Title = %q, want On B (player must match, not just the session key)", found.Title)
	}

	if _, err := client.FindSession(context.Background(), "9", "client-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindSession(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMetadataIncludesMarkers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library/metadata/42" {
			t.Errorf("path = %s, want /library/metadata/42", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("includeMarkers") != "1" {
			t.Error("includeMarkers=1 missing from metadata request")
		}
		if query.Get("includeChapters") != "1" {
			t.Error("includeChapters=1 missing from metadata request")
		}
		encodeMetadata(w, models.Metadata{
			RatingKey: "42",
			Type:      models.TypeEpisode,
			Markers:   []models.Marker{{Type: "intro", StartTimeOffset: 5000, EndTimeOffset: 35000}},
		})
	}))
	defer server.Close()

	item, err := newTestClient(server).Metadata(context.Background(), "42")
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if len(item.Markers) != 1 || item.Markers[0].Type != "intro" {
		t.Errorf("Markers = %+v, want one intro marker", item.Markers)
	}
}

func TestMetadataEmptyContainer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encodeMetadata(w)
	}))
	defer server.Close()

	if _, err := newTestClient(server).Metadata(context.Background(), "42"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Metadata() error = %v, want ErrNotFound for empty container", err)
	}
}

func TestRateLimitRetry(t *testing.T) {
	attemptCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attemptCount++
		if attemptCount < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		encodeMetadata(w)
	}))
	defer server.Close()

	sessions, err := newTestClient(server).Sessions(context.Background())
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if sessions != nil {
		t.Errorf("sessions = %v, want empty", sessions)
	}
	if attemptCount != 3 {
		t.Errorf("attemptCount = %d, want 3", attemptCount)
	}
}

func TestCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request issued on a canceled context")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestClient(server).Sessions(ctx); err == nil {
		t.Fatal("Sessions() with canceled context should fail")
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"bad request", http.StatusBadRequest, ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient(server).Sessions(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("Sessions() error = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("unexpected status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := newTestClient(server).Sessions(context.Background())
		if err == nil {
			t.Fatal("Sessions() should fail on HTTP 500")
		}
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadRequest) {
			t.Errorf("HTTP 500 must not map to a known error class, got %v", err)
		}
	})
}

func TestSectionItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library/sections/3/all" {
			t.Errorf("path = %s, want /library/sections/3/all", r.URL.Path)
		}
		if got := r.URL.Query().Get("type"); got != "2" {
			t.Errorf("type = %q, want 2 for shows", got)
		}
		encodeMetadata(w,
			models.Metadata{RatingKey: "100", Type: models.TypeShow, Title: "Show A"},
			models.Metadata{RatingKey: "200", Type: models.TypeShow, Title: "Show B"},
		)
	}))
	defer server.Close()

	client := newTestClient(server)

	items, err := client.SectionItems(context.Background(), "3", models.TypeShow)
	if err != nil {
		t.Fatalf("SectionItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}

	if _, err := client.SectionItems(context.Background(), "3", "album"); err == nil {
		t.Error("SectionItems() should reject unknown media types")
	}
}

func TestLibraryWalks(t *testing.T) {
	t.Run("sections", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/library/sections" {
				t.Errorf("path = %s, want /library/sections", r.URL.Path)
			}
			json.NewEncoder(w).Encode(models.DirectoryResponse{
				MediaContainer: models.DirectoryContainer{
					Size: 2,
					Directory: []models.Directory{
						{Key: "1", Type: "movie", Title: "Movies"},
						{Key: "2", Type: "show", Title: "TV Shows"},
					},
				},
			})
		}))
		defer server.Close()

		sections, err := newTestClient(server).Sections(context.Background())
		if err != nil {
			t.Fatalf("Sections() error = %v", err)
		}
		if len(sections) != 2 || sections[1].Title != "TV Shows" {
			t.Errorf("sections = %+v, want Movies and TV Shows", sections)
		}
	})

	t.Run("episodes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/library/metadata/300/allLeaves" {
				t.Errorf("path = %s, want /library/metadata/300/allLeaves", r.URL.Path)
			}
			encodeMetadata(w,
				models.Metadata{RatingKey: "301", Type: models.TypeEpisode},
				models.Metadata{RatingKey: "302", Type: models.TypeEpisode},
			)
		}))
		defer server.Close()

		episodes, err := newTestClient(server).Episodes(context.Background(), "300")
		if err != nil {
			t.Fatalf("Episodes() error = %v", err)
		}
		if len(episodes) != 2 {
			t.Errorf("len(episodes) = %d, want 2", len(episodes))
		}
	})

	t.Run("on deck", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/library/onDeck" {
				t.Errorf("path = %s, want /library/onDeck", r.URL.Path)
			}
			encodeMetadata(w, models.Metadata{RatingKey: "400", Type: models.TypeEpisode})
		}))
		defer server.Close()

		items, err := newTestClient(server).OnDeck(context.Background())
		if err != nil {
			t.Fatalf("OnDeck() error = %v", err)
		}
		if len(items) != 1 {
			t.Errorf("len(items) = %d, want 1", len(items))
		}
	})
}

func TestPlayQueueFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playQueues/77" {
			t.Errorf("path = %s, want /playQueues/77", r.URL.Path)
		}
		if r.URL.Query().Get("own") != "1" {
			t.Error("own=1 missing from play queue request")
		}
		json.NewEncoder(w).Encode(models.PlayQueueResponse{
			MediaContainer: models.PlayQueueContainer{
				PlayQueueID: 77,
				Size:        2,
				Metadata: []models.Metadata{
					{RatingKey: "101"},
					{RatingKey: "102"},
				},
			},
		})
	}))
	defer server.Close()

	queue, err := newTestClient(server).PlayQueue(context.Background(), 77)
	if err != nil {
		t.Fatalf("PlayQueue() error = %v", err)
	}
	if queue.PlayQueueID != 77 {
		t.Errorf("PlayQueueID = %d, want 77", queue.PlayQueueID)
	}
	if !queue.IsLast("102") || queue.IsLast("101") {
		t.Error("IsLast() must identify only the final queue item")
	}
}

func TestCreatePlayQueue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/playQueues" {
			t.Errorf("path = %s, want /playQueues", r.URL.Path)
		}
		query := r.URL.Query()
		if got := query.Get("uri"); got != "library:///directory/%2Flibrary%2Fmetadata%2F101%2C102" {
			t.Errorf("uri = %q, want the escaped metadata key list", got)
		}
		if got := query.Get("key"); got != "/library/metadata/101" {
			t.Errorf("key = %q, want /library/metadata/101", got)
		}
		if query.Get("type") != "video" || query.Get("own") != "1" {
			t.Error("type=video and own=1 required on play queue creation")
		}
		if query.Get("includeChapters") != "1" {
			t.Error("includeChapters=1 missing from play queue creation")
		}
		json.NewEncoder(w).Encode(models.PlayQueueResponse{
			MediaContainer: models.PlayQueueContainer{PlayQueueID: 90, Size: 2},
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	items := []models.Metadata{{RatingKey: "101"}, {RatingKey: "102"}}

	queue, err := client.CreatePlayQueue(context.Background(), items, "101")
	if err != nil {
		t.Fatalf("CreatePlayQueue() error = %v", err)
	}
	if queue.PlayQueueID != 90 {
		t.Errorf("PlayQueueID = %d, want 90", queue.PlayQueueID)
	}

	if _, err := client.CreatePlayQueue(context.Background(), nil, ""); err == nil {
		t.Error("CreatePlayQueue() should reject an empty item list")
	}
}

func TestMachineIdentifierCached(t *testing.T) {
	identityCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/identity" {
			t.Errorf("path = %s, want /identity", r.URL.Path)
		}
		identityCalls++
		json.NewEncoder(w).Encode(models.IdentityResponse{
			MediaContainer: models.IdentityContainer{MachineIdentifier: "server-abc", Version: "1.41.0"},
		})
	}))
	defer server.Close()

	client := newTestClient(server)

	for i := 0; i < 2; i++ {
		id, err := client.MachineIdentifier(context.Background())
		if err != nil {
			t.Fatalf("MachineIdentifier() error = %v", err)
		}
		if id != "server-abc" {
			t.Errorf("MachineIdentifier() = %q, want server-abc", id)
		}
	}

	if identityCalls != 1 {
		t.Errorf("identityCalls = %d, want 1 (second lookup must hit the cache)", identityCalls)
	}
}
