// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package models

// plex.tv account API models (api/v2).

// PlexTVUser is the account document returned by /api/v2/user and by
// /api/v2/users/signin.
type PlexTVUser struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AuthToken string `json:"authToken"`
}

// PlexTVFriend is one shared user from /api/v2/friends.
type PlexTVFriend struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid,omitempty"`
	Username string `json:"username"`
	Title    string `json:"title,omitempty"`
}

// PlexTVResource is one shared or owned device from /api/v2/resources.
type PlexTVResource struct {
	Name             string             `json:"name"`
	Product          string             `json:"product,omitempty"`
	Provides         string             `json:"provides"` // csv, e.g. "server"
	ClientIdentifier string             `json:"clientIdentifier"`
	AccessToken      string             `json:"accessToken,omitempty"`
	Owned            bool               `json:"owned,omitempty"`
	Connections      []PlexTVConnection `json:"connections"`
}

// ProvidesServer reports whether the resource is a media server.
func (r *PlexTVResource) ProvidesServer() bool {
	for _, p := range splitCSV(r.Provides) {
		if p == "server" {
			return true
		}
	}
	return false
}

// PlexTVConnection is one address a resource can be reached at.
type PlexTVConnection struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	URI      string `json:"uri"`
	Local    bool   `json:"local"`
	Relay    bool   `json:"relay,omitempty"`
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
