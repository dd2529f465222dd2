// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tomtom215/transilio/internal/models"
)

// Sessions returns the server's active playback sessions. Session entries
// carry User, Player and Session fields alongside the media metadata.
func (c *Client) Sessions(ctx context.Context) ([]models.Metadata, error) {
	var resp models.MetadataResponse
	if err := c.doRequest(ctx, requestConfig{
		method: http.MethodGet,
		path:   "/status/sessions",
		metric: "/status/sessions",
	}, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// FindSession returns the active session with the given session key and
// player, or ErrNotFound when the server no longer reports it.
func (c *Client) FindSession(ctx context.Context, sessionKey, clientIdentifier string) (*models.Metadata, error) {
	sessions, err := c.Sessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		s := &sessions[i]
		if s.SessionKey != sessionKey {
			continue
		}
		if s.Player != nil && s.Player.MachineIdentifier != clientIdentifier {
			continue
		}
		return s, nil
	}
	return nil, ErrNotFound
}

// Metadata fetches one library item with markers and chapters included.
func (c *Client) Metadata(ctx context.Context, ratingKey string) (*models.Metadata, error) {
	query := url.Values{}
	query.Set("includeMarkers", "1")
	query.Set("includeChapters", "1")

	var resp models.MetadataResponse
	if err := c.doRequest(ctx, requestConfig{
		method: http.MethodGet,
		path:   "/library/metadata/" + url.PathEscape(ratingKey),
		query:  query,
		metric: "/library/metadata",
	}, &resp); err != nil {
		return nil, err
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return nil, ErrNotFound
	}
	return &resp.MediaContainer.Metadata[0], nil
}
