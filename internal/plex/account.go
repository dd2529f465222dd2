// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/transilio/internal/models"
)

const (
	plexTVURL        = "https://plex.tv"
	notificationsURL = "https://notifications.plex.tv/api/v1/notifications"
)

// Account is a thin plex.tv API client. The controller uses it at startup
// to locate the configured server and from the notify command to push
// messages to the account's devices.
type Account struct {
	token      string
	identifier string
	product    string
	version    string
	baseURL    string
	notifyURL  string
	httpClient *http.Client
}

// NewAccount returns an account client bound to an existing token.
func NewAccount(token string, opts Options) *Account {
	opts = opts.withDefaults()
	return &Account{
		token:      token,
		identifier: opts.Identifier,
		product:    opts.Product,
		version:    opts.Version,
		baseURL:    plexTVURL,
		notifyURL:  notificationsURL,
		httpClient: opts.newHTTPClient(),
	}
}

// SignIn authenticates with username and password and returns an account
// bound to the resulting token.
func SignIn(ctx context.Context, username, password string, opts Options) (*Account, error) {
	return signIn(ctx, username, password, opts, plexTVURL)
}

func signIn(ctx context.Context, username, password string, opts Options, baseURL string) (*Account, error) {
	account := NewAccount("", opts)
	account.baseURL = baseURL

	form := url.Values{}
	form.Set("login", username)
	form.Set("password", password)
	form.Set("rememberMe", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		account.baseURL+"/api/v2/users/signin", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create signin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	account.setHeaders(req)

	resp, err := account.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("plex.tv signin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("plex.tv signin: %w", ErrUnauthorized)
		}
		return nil, fmt.Errorf("plex.tv signin: unexpected status %d", resp.StatusCode)
	}

	var user models.PlexTVUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode signin response: %w", err)
	}
	if user.AuthToken == "" {
		return nil, errors.New("plex.tv signin: no token in response")
	}

	account.token = user.AuthToken
	return account, nil
}

// Token returns the account token.
func (a *Account) Token() string { return a.token }

// User fetches the signed-in account document, validating the token.
func (a *Account) User(ctx context.Context) (*models.PlexTVUser, error) {
	var user models.PlexTVUser
	if err := a.get(ctx, "/api/v2/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Resources lists the account's devices, servers included.
func (a *Account) Resources(ctx context.Context) ([]models.PlexTVResource, error) {
	query := url.Values{}
	query.Set("includeHttps", "1")
	query.Set("includeRelay", "1")

	var resources []models.PlexTVResource
	if err := a.get(ctx, "/api/v2/resources", query, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// Friends lists the users the account shares servers with.
func (a *Account) Friends(ctx context.Context) ([]models.PlexTVFriend, error) {
	var friends []models.PlexTVFriend
	if err := a.get(ctx, "/api/v2/friends", nil, &friends); err != nil {
		return nil, err
	}
	return friends, nil
}

// ServerConnection resolves the named server resource to a base URL and
// access token. Local non-relay connections are preferred, then any
// non-relay connection, then whatever is left.
func (a *Account) ServerConnection(ctx context.Context, name string) (string, string, error) {
	resources, err := a.Resources(ctx)
	if err != nil {
		return "", "", err
	}

	for i := range resources {
		r := &resources[i]
		if !r.ProvidesServer() || !strings.EqualFold(r.Name, name) {
			continue
		}
		conn := pickConnection(r.Connections)
		if conn == nil {
			return "", "", fmt.Errorf("server %q has no usable connection", name)
		}
		token := r.AccessToken
		if token == "" {
			token = a.token
		}
		return conn.URI, token, nil
	}

	return "", "", fmt.Errorf("server %q: %w", name, ErrNotFound)
}

func pickConnection(conns []models.PlexTVConnection) *models.PlexTVConnection {
	for i := range conns {
		if conns[i].Local && !conns[i].Relay {
			return &conns[i]
		}
	}
	for i := range conns {
		if !conns[i].Relay {
			return &conns[i]
		}
	}
	if len(conns) > 0 {
		return &conns[0]
	}
	return nil
}

// Notification is one plex.tv push message. To lists the receiving account
// IDs; the provider fields tell the mobile apps which server the message is
// about.
type Notification struct {
	MachineIdentifier string
	ServerName        string
	Message           string
	To                []int64
}

// Notify pushes a notification to the account's mobile devices.
func (a *Account) Notify(ctx context.Context, n Notification) error {
	if n.Message == "" {
		return errors.New("notify: empty message")
	}
	if len(n.To) == 0 {
		return errors.New("notify: no recipients")
	}

	payload := map[string]interface{}{
		"group":      "media",
		"identifier": "tv.plex.notification.library.new",
		"to":         n.To,
		"play":       false,
		"data": map[string]interface{}{
			"provider": map[string]interface{}{
				"identifier": n.MachineIdentifier,
				"title":      n.ServerName,
			},
		},
		"metadata": map[string]interface{}{
			"type":  "movie",
			"title": n.Message,
		},
		"uri": "https://github.com/tomtom215/transilio",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.notifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.setHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("send notification: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// get executes one plex.tv API request.
func (a *Account) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	a.setHeaders(req)
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("plex.tv request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, path)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// setHeaders applies the standard plex.tv headers. The api/v2 endpoints
// reject requests without a client identifier.
func (a *Account) setHeaders(req *http.Request) {
	if a.token != "" {
		req.Header.Set("X-Plex-Token", a.token)
	}
	req.Header.Set("X-Plex-Client-Identifier", a.identifier)
	req.Header.Set("X-Plex-Product", a.product)
	req.Header.Set("X-Plex-Version", a.version)
	req.Header.Set("Accept", "application/json")
}
