// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package models

// Media item types as reported by the metadata "type" field.
const (
	TypeMovie   = "movie"
	TypeShow    = "show"
	TypeSeason  = "season"
	TypeEpisode = "episode"
)

// Plex numeric type codes for library /all?type= filters.
const (
	TypeCodeMovie   = 1
	TypeCodeShow    = 2
	TypeCodeSeason  = 3
	TypeCodeEpisode = 4
)

// MetadataContainer is the MediaContainer envelope carrying metadata items,
// shared by /status/sessions, /library/metadata/{key} and library walks.
type MetadataContainer struct {
	Size     int        `json:"size"`
	Metadata []Metadata `json:"Metadata"`
}

// MetadataResponse is the top-level JSON document for metadata endpoints.
type MetadataResponse struct {
	MediaContainer MetadataContainer `json:"MediaContainer"`
}

// Metadata is one media item. The same shape serves /status/sessions entries
// (which add User, Player and Session) and plain library items.
type Metadata struct {
	// Identity
	RatingKey            string `json:"ratingKey"`                      // Server-local item key
	Key                  string `json:"key"`                            // Metadata key path
	ParentRatingKey      string `json:"parentRatingKey,omitempty"`      // Season key for episodes
	GrandparentRatingKey string `json:"grandparentRatingKey,omitempty"` // Show key for episodes
	Guid                 string `json:"guid,omitempty"`                 // Primary GUID (plex://...)
	Guids                []Guid `json:"Guid,omitempty"`                 // External GUIDs (imdb/tmdb/tvdb)

	// Classification
	Type                string `json:"type"` // movie, show, season, episode
	Title               string `json:"title"`
	ParentTitle         string `json:"parentTitle,omitempty"`      // Season title
	GrandparentTitle    string `json:"grandparentTitle,omitempty"` // Show title
	LibrarySectionTitle string `json:"librarySectionTitle,omitempty"`
	LibrarySectionID    int64  `json:"librarySectionID,omitempty"`

	// Ordering (episodes and seasons)
	Index       int64 `json:"index,omitempty"`       // Episode number, or season number on seasons
	ParentIndex int64 `json:"parentIndex,omitempty"` // Season number on episodes

	// Playback
	Duration        int64 `json:"duration,omitempty"`   // Total duration in milliseconds
	ViewOffset      int64 `json:"viewOffset,omitempty"` // Current position in milliseconds
	ViewCount       int64 `json:"viewCount,omitempty"`  // Completed play count
	LastViewedAt    int64 `json:"lastViewedAt,omitempty"`
	PlayQueueItemID int64 `json:"playQueueItemID,omitempty"`

	// Intervals
	Markers  []Marker  `json:"Marker,omitempty"`  // Typed half-open ranges (intro, credits, commercial)
	Chapters []Chapter `json:"Chapter,omitempty"` // Titled half-open ranges

	// Session-only fields (/status/sessions)
	SessionKey string         `json:"sessionKey,omitempty"`
	User       *SessionUser   `json:"User,omitempty"`
	Player     *SessionPlayer `json:"Player,omitempty"`
	Session    *SessionInfo   `json:"Session,omitempty"`
}

// Guid is one external identifier tag, e.g. {"id": "imdb://tt0944947"}.
type Guid struct {
	ID string `json:"id"`
}

// Marker is a typed half-open range [StartTimeOffset, EndTimeOffset) in ms.
type Marker struct {
	ID              int64  `json:"id,omitempty"`
	Type            string `json:"type"` // "intro", "credits", "commercial"
	StartTimeOffset int64  `json:"startTimeOffset"`
	EndTimeOffset   int64  `json:"endTimeOffset"`
	Final           bool   `json:"final,omitempty"` // Set on the last credits marker
}

// Chapter is a titled half-open range. Plex reports the chapter title in the
// "tag" field.
type Chapter struct {
	ID              int64  `json:"id,omitempty"`
	Tag             string `json:"tag"` // Chapter title
	Index           int64  `json:"index,omitempty"`
	StartTimeOffset int64  `json:"startTimeOffset"`
	EndTimeOffset   int64  `json:"endTimeOffset"`
}

// Title returns the chapter title.
func (c *Chapter) Title() string { return c.Tag }

// SessionUser identifies the account driving a playback session.
type SessionUser struct {
	ID    string `json:"id"`
	Title string `json:"title"` // Username or friendly name
	Thumb string `json:"thumb,omitempty"`
}

// SessionPlayer describes the player device of a session.
type SessionPlayer struct {
	Address           string `json:"address,omitempty"` // Player LAN address
	Device            string `json:"device,omitempty"`
	MachineIdentifier string `json:"machineIdentifier"` // Stable client identifier
	Model             string `json:"model,omitempty"`
	Platform          string `json:"platform,omitempty"`
	PlatformVersion   string `json:"platformVersion,omitempty"`
	Product           string `json:"product,omitempty"` // "Plex for Roku", "Plex Web", ...
	Profile           string `json:"profile,omitempty"`
	State             string `json:"state,omitempty"` // playing, paused, buffering
	Title             string `json:"title,omitempty"` // Device name
	Version           string `json:"version,omitempty"`
	Local             bool   `json:"local,omitempty"`
	Port              int    `json:"port,omitempty"`
}

// SessionInfo carries the session-level connection attributes.
type SessionInfo struct {
	ID        string `json:"id"`
	Bandwidth int64  `json:"bandwidth,omitempty"`
	Location  string `json:"location"` // "lan" or "wan"
}

// IsEpisode reports whether the item is a TV episode.
func (m *Metadata) IsEpisode() bool { return m.Type == TypeEpisode }

// HasParent reports whether the item has a parent (season) key.
func (m *Metadata) HasParent() bool { return m.ParentRatingKey != "" }

// HasGrandparent reports whether the item has a grandparent (show) key.
func (m *Metadata) HasGrandparent() bool { return m.GrandparentRatingKey != "" }

// EpisodeNumber returns the episode's index within its season, 0 if unknown.
func (m *Metadata) EpisodeNumber() int64 {
	if m.IsEpisode() {
		return m.Index
	}
	return 0
}

// SeasonNumber returns the episode's season number, 0 if unknown.
func (m *Metadata) SeasonNumber() int64 {
	if m.IsEpisode() {
		return m.ParentIndex
	}
	if m.Type == TypeSeason {
		return m.Index
	}
	return 0
}

// Watched reports whether the server considers the item watched.
func (m *Metadata) Watched() bool { return m.ViewCount > 0 }

// LastChapter returns the final chapter, or nil when the item has none.
func (m *Metadata) LastChapter() *Chapter {
	if len(m.Chapters) == 0 {
		return nil
	}
	return &m.Chapters[len(m.Chapters)-1]
}

// OnLAN reports whether the session's connection location is the local
// network. Sessions without connection data are treated as remote.
func (m *Metadata) OnLAN() bool {
	return m.Session != nil && m.Session.Location == "lan"
}

// DirectoryContainer is the MediaContainer envelope for /library/sections.
type DirectoryContainer struct {
	Size      int         `json:"size"`
	Directory []Directory `json:"Directory"`
}

// DirectoryResponse is the top-level JSON document for section listings.
type DirectoryResponse struct {
	MediaContainer DirectoryContainer `json:"MediaContainer"`
}

// Directory is one library section.
type Directory struct {
	Key   string `json:"key"` // Section id used in /library/sections/{key}/all
	Type  string `json:"type"`
	Title string `json:"title"`
}

// IdentityResponse is the /identity document.
type IdentityResponse struct {
	MediaContainer IdentityContainer `json:"MediaContainer"`
}

// IdentityContainer carries server identity information.
type IdentityContainer struct {
	MachineIdentifier string `json:"machineIdentifier"`
	FriendlyName      string `json:"friendlyName,omitempty"`
	Version           string `json:"version"`
}
