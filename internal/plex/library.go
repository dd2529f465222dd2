// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tomtom215/transilio/internal/models"
)

// Plex's numeric search types for /library/sections/{key}/all.
var searchTypes = map[string]string{
	models.TypeMovie:   "1",
	models.TypeShow:    "2",
	models.TypeSeason:  "3",
	models.TypeEpisode: "4",
}

// Sections lists the server's library sections. Together with SectionItems
// this satisfies the library walk interface of the entries resolver.
func (c *Client) Sections(ctx context.Context) ([]models.Directory, error) {
	var resp models.DirectoryResponse
	if err := c.doRequest(ctx, requestConfig{
		method: http.MethodGet,
		path:   "/library/sections",
		metric: "/library/sections",
	}, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Directory, nil
}

// SectionItems lists the items of one media type ("movie", "show",
// "season", "episode") in a section.
func (c *Client) SectionItems(ctx context.Context, sectionKey, mediaType string) ([]models.Metadata, error) {
	searchType, ok := searchTypes[mediaType]
	if !ok {
		return nil, fmt.Errorf("unknown media type %q", mediaType)
	}

	query := url.Values{}
	query.Set("type", searchType)

	var resp models.MetadataResponse
	if err := c.doRequest(ctx, requestConfig{
		method: http.MethodGet,
		path:   fmt.Sprintf("/library/sections/%s/all", url.PathEscape(sectionKey)),
		query:  query,
		metric: "/library/sections/all",
	}, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// Episodes lists a show's episodes in play order, used to rebuild a play
// queue when the original queue has run out.
func (c *Client) Episodes(ctx context.Context, showRatingKey string) ([]models.Metadata, error) {
	var resp models.MetadataResponse
	if err := c.doRequest(ctx, requestConfig{
		method: http.MethodGet,
		path:   fmt.Sprintf("/library/metadata/%s/allLeaves", url.PathEscape(showRatingKey)),
		metric: "/library/metadata/allLeaves",
	}, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// OnDeck returns the server's on-deck items, the last play-queue rebuild
// fallback.
func (c *Client) OnDeck(ctx context.Context) ([]models.Metadata, error) {
	var resp models.MetadataResponse
	if err := c.doRequest(ctx, requestConfig{
		method: http.MethodGet,
		path:   "/library/onDeck",
		metric: "/library/onDeck",
	}, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}
