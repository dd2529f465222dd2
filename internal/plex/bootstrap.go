// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/transilio/internal/config"
	"github.com/tomtom215/transilio/internal/logging"
)

// Bootstrap resolves the configuration to a connected server client. The
// plex.tv account path runs first when a server name is configured: token
// auth, then username/password sign-in, then the named resource lookup.
// The direct [Server] address is the fallback. An error means no path
// produced a working connection, which is fatal at startup.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Client, error) {
	if cfg.PlexTV.Username == "" && cfg.PlexTV.Token == "" && cfg.Server.Address == "" {
		return nil, errors.New("no plex server settings specified, update the configuration file")
	}

	opts := Options{IgnoreCerts: cfg.Security.IgnoreCerts}

	if cfg.PlexTV.ServerName != "" && (cfg.PlexTV.Token != "" || cfg.PlexTV.Username != "") {
		if client := bootstrapAccount(ctx, cfg.PlexTV, opts); client != nil {
			if cfg.Server.Address != "" {
				logging.Debug().Msg("Connected through plex.tv account, ignoring manual server settings")
			}
			return client, nil
		}
	}

	if cfg.Server.Address != "" && cfg.PlexTV.Token != "" {
		client := New(cfg.Server.URI(), cfg.PlexTV.Token, opts)
		identity, err := client.Identity(ctx)
		if err != nil {
			return nil, fmt.Errorf("connect to plex server at %s: %w", cfg.Server.URI(), err)
		}
		logging.Info().
			Str("address", cfg.Server.URI()).
			Str("version", identity.Version).
			Msg("Connected to Plex server using server settings")
		return client, nil
	}

	return nil, errors.New("unable to establish a plex server connection")
}

// bootstrapAccount connects through the plex.tv account. Failures are
// logged and reported as nil so Bootstrap can fall back to the direct
// address.
func bootstrapAccount(ctx context.Context, cfg config.PlexTVConfig, opts Options) *Client {
	var account *Account

	if cfg.Token != "" {
		candidate := NewAccount(cfg.Token, opts)
		if _, err := candidate.User(ctx); err != nil {
			logging.Debug().Err(err).Msg("Unable to connect using token, falling back to password")
		} else {
			account = candidate
		}
	}

	if account == nil && cfg.Username != "" && cfg.Password != "" {
		signed, err := SignIn(ctx, cfg.Username, cfg.Password, opts)
		if err != nil {
			logging.Debug().Err(err).Msg("Unable to connect using username/password")
		} else {
			account = signed
		}
	}

	if account == nil {
		return nil
	}

	baseURL, accessToken, err := account.ServerConnection(ctx, cfg.ServerName)
	if err != nil {
		logging.Error().Err(err).Str("server", cfg.ServerName).Msg("Error resolving plex.tv server resource")
		return nil
	}

	client := New(baseURL, accessToken, opts)
	identity, err := client.Identity(ctx)
	if err != nil {
		logging.Error().Err(err).Str("address", baseURL).Msg("Error connecting to plex.tv server resource")
		return nil
	}

	logging.Info().
		Str("server", cfg.ServerName).
		Str("version", identity.Version).
		Msg("Connected to Plex server using plex.tv account")
	return client
}
