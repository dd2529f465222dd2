// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package models

// PlayQueueResponse is the top-level JSON document for /playQueues requests.
type PlayQueueResponse struct {
	MediaContainer PlayQueueContainer `json:"MediaContainer"`
}

// PlayQueueContainer is the play queue envelope returned by GET and POST
// /playQueues endpoints.
type PlayQueueContainer struct {
	PlayQueueID                     int64      `json:"playQueueID"`
	PlayQueueSelectedItemID         int64      `json:"playQueueSelectedItemID,omitempty"`
	PlayQueueSelectedItemOffset     int64      `json:"playQueueSelectedItemOffset,omitempty"`
	PlayQueueSelectedMetadataItemID string     `json:"playQueueSelectedMetadataItemID,omitempty"`
	PlayQueueSourceURI              string     `json:"playQueueSourceURI,omitempty"`
	PlayQueueVersion                int64      `json:"playQueueVersion,omitempty"`
	PlayQueueShuffled               bool       `json:"playQueueShuffled,omitempty"`
	PlayQueueTotalCount             int64      `json:"playQueueTotalCount,omitempty"`
	Size                            int        `json:"size"`
	Metadata                        []Metadata `json:"Metadata"`
}

// Items returns the queue's media items in play order.
func (q *PlayQueueContainer) Items() []Metadata { return q.Metadata }

// IsLast reports whether ratingKey identifies the final item of the queue.
// An empty queue reports false.
func (q *PlayQueueContainer) IsLast(ratingKey string) bool {
	if len(q.Metadata) == 0 {
		return false
	}
	return q.Metadata[len(q.Metadata)-1].RatingKey == ratingKey
}

// Selected returns the queue's currently selected item, or nil.
func (q *PlayQueueContainer) Selected() *Metadata {
	for i := range q.Metadata {
		if q.Metadata[i].PlayQueueItemID == q.PlayQueueSelectedItemID {
			return &q.Metadata[i]
		}
	}
	return nil
}

// NextAfter returns the item that follows ratingKey in the queue, or nil
// when ratingKey is absent or last.
func (q *PlayQueueContainer) NextAfter(ratingKey string) *Metadata {
	for i := range q.Metadata {
		if q.Metadata[i].RatingKey == ratingKey && i+1 < len(q.Metadata) {
			return &q.Metadata[i+1]
		}
	}
	return nil
}
