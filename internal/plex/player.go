// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tomtom215/transilio/internal/models"
)

// PlayerTarget addresses one player for commands. A non-empty BaseURL sends
// commands straight to the player (custom-entries clients section); empty
// proxies them through the server with the target header set.
type PlayerTarget struct {
	Title             string
	MachineIdentifier string
	BaseURL           string
}

func (p PlayerTarget) name() string {
	if p.Title != "" {
		return p.Title
	}
	return p.MachineIdentifier
}

// SeekTo positions the player at offset milliseconds.
func (c *Client) SeekTo(ctx context.Context, target PlayerTarget, offset int64) error {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("type", "video")
	_, err := c.sendCommand(ctx, target, "playback/seekTo", params)
	return err
}

// SetVolume sets the player volume, 0-100.
func (c *Client) SetVolume(ctx context.Context, target PlayerTarget, volume int) error {
	params := url.Values{}
	params.Set("volume", strconv.Itoa(volume))
	params.Set("type", "video")
	_, err := c.sendCommand(ctx, target, "playback/setParameters", params)
	return err
}

// Stop stops video playback on the player.
func (c *Client) Stop(ctx context.Context, target PlayerTarget) error {
	params := url.Values{}
	params.Set("type", "video")
	_, err := c.sendCommand(ctx, target, "playback/stop", params)
	return err
}

// PlayMedia starts the player on a play queue. key selects the item to
// play; empty falls back to the queue's selected item.
func (c *Client) PlayMedia(ctx context.Context, target PlayerTarget, queue *models.PlayQueueContainer, key string, offset int64) error {
	machineID, err := c.MachineIdentifier(ctx)
	if err != nil {
		return fmt.Errorf("resolve server identity: %w", err)
	}

	serverURL, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	port := serverURL.Port()
	if port == "" {
		port = "32400"
	}

	if key == "" {
		if sel := queue.Selected(); sel != nil {
			key = sel.Key
		}
	}

	params := url.Values{}
	params.Set("providerIdentifier", "com.plexapp.plugins.library")
	params.Set("machineIdentifier", machineID)
	params.Set("protocol", serverURL.Scheme)
	params.Set("address", serverURL.Hostname())
	params.Set("port", port)
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("key", key)
	params.Set("containerKey", fmt.Sprintf("/playQueues/%d?window=100&own=1", queue.PlayQueueID))

	_, err = c.sendCommand(ctx, target, "playback/playMedia", params)
	return err
}

// Timeline polls the player's current timeline. The volume attribute is
// only present on players that expose volume control.
func (c *Client) Timeline(ctx context.Context, target PlayerTarget) (*models.TimelineContainer, error) {
	params := url.Values{}
	params.Set("wait", "0")

	body, err := c.sendCommand(ctx, target, "timeline/poll", params)
	if err != nil {
		return nil, err
	}

	var container models.TimelineContainer
	if err := xml.Unmarshal(body, &container); err != nil {
		return nil, &CommandError{
			Command: "timeline/poll",
			Player:  target.name(),
			Err:     fmt.Errorf("%w: %v", ErrUnparseableResponse, err),
		}
	}
	return &container, nil
}

// sendCommand issues one player command and returns the raw response body.
// Failures come back as *CommandError; a 2xx reply with a syntactically
// broken body wraps ErrUnparseableResponse so callers can treat it as
// delivered.
func (c *Client) sendCommand(ctx context.Context, target PlayerTarget, command string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("commandID", c.nextCommandID())

	base := target.BaseURL
	if base == "" {
		base = c.baseURL
	}
	reqURL := fmt.Sprintf("%s/player/%s?%s", base, command, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, &CommandError{Command: command, Player: target.name(), Err: err}
	}

	c.setHeaders(req)
	req.Header.Set("X-Plex-Target-Client-Identifier", target.MachineIdentifier)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &CommandError{Command: command, Player: target.name(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &CommandError{Command: command, Player: target.name(), Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return nil, &CommandError{
			Command:    command,
			Player:     target.name(),
			StatusCode: resp.StatusCode,
			Err:        commandStatusErr(resp.StatusCode),
		}
	}

	if len(bytes.TrimSpace(body)) > 0 {
		var probe struct {
			XMLName xml.Name
		}
		if err := xml.Unmarshal(body, &probe); err != nil {
			return body, &CommandError{
				Command: command,
				Player:  target.name(),
				Err:     fmt.Errorf("%w: %v", ErrUnparseableResponse, err),
			}
		}
	}

	return body, nil
}
