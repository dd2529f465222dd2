// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package models

import "encoding/xml"

// Player timeline models. Unlike the server REST endpoints, the player
// command protocol (/player/...) answers in XML only, so these carry
// encoding/xml tags.

// TimelineContainer is the /player/timeline/poll response.
type TimelineContainer struct {
	XMLName   xml.Name         `xml:"MediaContainer"`
	CommandID string           `xml:"commandID,attr"`
	Location  string           `xml:"location,attr"`
	Timelines []PlayerTimeline `xml:"Timeline"`
}

// PlayerTimeline is one timeline entry. Players report one entry per media
// class (video, music, photo); only the active one carries playback state.
type PlayerTimeline struct {
	Type         string `xml:"type,attr"`  // video, music, photo
	State        string `xml:"state,attr"` // playing, paused, stopped, buffering
	Time         int64  `xml:"time,attr"`
	Duration     int64  `xml:"duration,attr"`
	RatingKey    string `xml:"ratingKey,attr"`
	Key          string `xml:"key,attr"`
	PlayQueueID  int64  `xml:"playQueueID,attr"`
	Volume       *int64 `xml:"volume,attr"` // nil when the player does not expose volume
	Controllable string `xml:"controllable,attr"`
}

// VideoTimeline returns the video-class timeline entry, or nil.
func (t *TimelineContainer) VideoTimeline() *PlayerTimeline {
	for i := range t.Timelines {
		if t.Timelines[i].Type == "video" {
			return &t.Timelines[i]
		}
	}
	return nil
}
