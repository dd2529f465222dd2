// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tomtom215/transilio/internal/models"
)

// PlayQueue fetches an existing play queue with its items. The binge
// tracker uses it to decide whether more episodes follow the current one.
func (c *Client) PlayQueue(ctx context.Context, id int64) (*models.PlayQueueContainer, error) {
	query := url.Values{}
	query.Set("own", "1")

	var resp models.PlayQueueResponse
	if err := c.doRequest(ctx, requestConfig{
		method: http.MethodGet,
		path:   fmt.Sprintf("/playQueues/%d", id),
		query:  query,
		metric: "/playQueues",
	}, &resp); err != nil {
		return nil, err
	}
	return &resp.MediaContainer, nil
}

// CreatePlayQueue starts a new video play queue over the given items.
// startKey selects the first item to play; empty starts at the head.
func (c *Client) CreatePlayQueue(ctx context.Context, items []models.Metadata, startKey string) (*models.PlayQueueContainer, error) {
	if len(items) == 0 {
		return nil, errors.New("create play queue: no items")
	}

	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.RatingKey)
	}

	query := url.Values{}
	query.Set("uri", "library:///directory/"+url.QueryEscape("/library/metadata/"+strings.Join(keys, ",")))
	query.Set("type", "video")
	query.Set("shuffle", "0")
	query.Set("repeat", "0")
	query.Set("continuous", "0")
	query.Set("own", "1")
	query.Set("includeChapters", "1")
	if startKey != "" {
		query.Set("key", "/library/metadata/"+startKey)
	}

	var resp models.PlayQueueResponse
	if err := c.doRequest(ctx, requestConfig{
		method: http.MethodPost,
		path:   "/playQueues",
		query:  query,
		metric: "/playQueues",
	}, &resp); err != nil {
		return nil, err
	}
	return &resp.MediaContainer, nil
}
