// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package models

import (
	"fmt"
	"strings"
)

// Plex WebSocket notification models.
// Endpoint: ws://{plex_url}/:/websockets/notifications
// Documentation: https://forums.plex.tv/t/about-websocket-notifications/79679

// Playback states reported by PlaySessionStateNotification and by the Player
// element of /status/sessions metadata.
const (
	StatePlaying   = "playing"
	StatePaused    = "paused"
	StateStopped   = "stopped"
	StateBuffering = "buffering"
)

// NotificationWrapper wraps the top-level notification container.
type NotificationWrapper struct {
	NotificationContainer NotificationContainer `json:"NotificationContainer"`
}

// NotificationContainer wraps one websocket message. Only "playing"
// containers carry PlaySessionStateNotification entries; other types
// (timeline, activity, status, reachability) are counted and dropped.
type NotificationContainer struct {
	Type                         string                         `json:"type"`           // "playing", "timeline", "activity", "status", ...
	Size                         int                            `json:"size,omitempty"` // Number of notifications in this message
	PlaySessionStateNotification []PlaySessionStateNotification `json:"PlaySessionStateNotification,omitempty"`
}

// IsPlaying reports whether this container carries playback state changes.
func (c *NotificationContainer) IsPlaying() bool {
	return c.Type == "playing" && len(c.PlaySessionStateNotification) > 0
}

// PlaySessionStateNotification is a real-time playback state change for one
// session. Plex emits these on state transitions and roughly every ten
// seconds during playback.
type PlaySessionStateNotification struct {
	SessionKey       string `json:"sessionKey"`       // Server-local session key (string on the wire)
	ClientIdentifier string `json:"clientIdentifier"` // Player machine identifier
	Guid             string `json:"guid,omitempty"`
	Key              string `json:"key,omitempty"`       // Metadata key path
	RatingKey        string `json:"ratingKey,omitempty"` // Playing item identifier
	URL              string `json:"url,omitempty"`
	State            string `json:"state"`                     // playing, paused, stopped, buffering
	ViewOffset       int64  `json:"viewOffset"`                // Current position in milliseconds
	PlayQueueID      int64  `json:"playQueueID,omitempty"`     // Owning play queue, 0 when absent
	PlayQueueItemID  int64  `json:"playQueueItemID,omitempty"` // Item within the play queue
	TranscodeSession string `json:"transcodeSession,omitempty"`
}

// SessionIdentifier returns the engine's composite session identity. A
// sessionKey alone is not unique across player reconnects, so the pair is
// always used.
func (n *PlaySessionStateNotification) SessionIdentifier() string {
	return SessionIdentifier(n.SessionKey, n.ClientIdentifier)
}

// SessionIdentifier builds the composite (sessionKey, clientIdentifier) key
// used for the session table and the ignore list.
func SessionIdentifier(sessionKey, clientIdentifier string) string {
	return fmt.Sprintf("%s-%s", sessionKey, clientIdentifier)
}

// IsPlayingState reports whether the notification state is "playing".
func (n *PlaySessionStateNotification) IsPlayingState() bool {
	return strings.EqualFold(n.State, StatePlaying)
}

// IsHalted reports whether the notification state is paused or stopped.
func (n *PlaySessionStateNotification) IsHalted() bool {
	return strings.EqualFold(n.State, StatePaused) || strings.EqualFold(n.State, StateStopped)
}
