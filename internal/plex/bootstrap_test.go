// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/transilio/internal/config"
	"github.com/tomtom215/transilio/internal/models"
)

func TestBootstrapDirectAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/identity" {
			t.Errorf("path = %s, want /identity", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.IdentityResponse{
			MediaContainer: models.IdentityContainer{MachineIdentifier: "server-abc", Version: "1.41.0"},
		})
	}))
	defer server.Close()

	serverURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, err := strconv.Atoi(serverURL.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}

	cfg := &config.Config{}
	cfg.PlexTV.Token = "test-token"
	cfg.Server.Address = serverURL.Hostname()
	cfg.Server.Port = port

	client, err := Bootstrap(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if client.BaseURL() != server.URL {
		t.Errorf("BaseURL() = %q, want %q", client.BaseURL(), server.URL)
	}
	if client.Token() != "test-token" {
		t.Errorf("Token() = %q, want test-token", client.Token())
	}
}

func TestBootstrapDirectAddressUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	serverURL, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(serverURL.Port())

	cfg := &config.Config{}
	cfg.PlexTV.Token = "bad-token"
	cfg.Server.Address = serverURL.Hostname()
	cfg.Server.Port = port

	if _, err := Bootstrap(context.Background(), cfg); err == nil {
		t.Fatal("Bootstrap() should fail when the identity check fails")
	}
}

func TestBootstrapNoSettings(t *testing.T) {
	if _, err := Bootstrap(context.Background(), &config.Config{}); err == nil {
		t.Fatal("Bootstrap() without any server settings should fail")
	}
}
