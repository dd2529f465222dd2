// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/metrics"
	"github.com/tomtom215/transilio/internal/models"
)

// AlertHandler receives one playback state notification. Handlers run on
// the listener goroutine and must hand work off quickly.
type AlertHandler func(models.PlaySessionStateNotification)

// AlertListener consumes the server's notification WebSocket and forwards
// playing-state alerts. Non-playing containers (timeline, activity, status)
// are counted and dropped.
//
// The listener reconnects on its own with exponential backoff (1s doubling
// to 32s) and keeps the connection alive with a 30-second ping loop and a
// 60-second read deadline.
type AlertListener struct {
	baseURL     string
	token       string
	ignoreCerts bool

	conn     *websocket.Conn
	started  bool
	connMu   sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	handlerMu sync.RWMutex
	onAlert   AlertHandler
	onError   func(error)
}

// NewAlertListener creates a listener for the server at baseURL. Call
// SetHandlers before Connect.
func NewAlertListener(baseURL, token string, ignoreCerts bool) *AlertListener {
	return &AlertListener{
		baseURL:     baseURL,
		token:       token,
		ignoreCerts: ignoreCerts,
		stopChan:    make(chan struct{}),
	}
}

// SetHandlers registers the alert and error callbacks. onError is invoked
// on read failures before the listener reconnects; both may be nil.
func (l *AlertListener) SetHandlers(onAlert AlertHandler, onError func(error)) {
	l.handlerMu.Lock()
	defer l.handlerMu.Unlock()
	l.onAlert = onAlert
	l.onError = onError
}

// Connect establishes the WebSocket connection and starts the listener and
// keepalive goroutines. The goroutines are started once; reconnection after
// a dropped connection happens inside the listen loop.
func (l *AlertListener) Connect(ctx context.Context) error {
	if err := l.dial(ctx); err != nil {
		return err
	}

	l.connMu.Lock()
	if !l.started {
		l.started = true
		l.wg.Add(2)
		go l.listen(ctx)
		go l.pingLoop(ctx)
	}
	l.connMu.Unlock()

	return nil
}

// dial opens the WebSocket connection if it is not already up.
func (l *AlertListener) dial(ctx context.Context) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		return nil
	}

	wsURL, err := l.websocketURL()
	if err != nil {
		return fmt.Errorf("build websocket url: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}
	if l.ignoreCerts {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // config option for self-signed servers
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	l.conn = conn
	metrics.SetWebsocketConnected(true)
	logging.Info().Msg("Notification listener connected")

	return nil
}

// websocketURL converts the server base URL into the notifications
// WebSocket URL with the token attached.
func (l *AlertListener) websocketURL() (string, error) {
	parsed, err := url.Parse(l.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	scheme := "ws"
	if parsed.Scheme == "https" {
		scheme = "wss"
	}

	ws := url.URL{
		Scheme:   scheme,
		Host:     parsed.Host,
		Path:     "/:/websockets/notifications",
		RawQuery: url.Values{"X-Plex-Token": {l.token}}.Encode(),
	}
	return ws.String(), nil
}

// listen reads messages until the context is canceled or Close is called,
// reconnecting with exponential backoff when the connection drops.
func (l *AlertListener) listen(ctx context.Context) {
	defer l.wg.Done()

	reconnectDelay := 1 * time.Second
	maxReconnectDelay := 32 * time.Second

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Notification listener stopping (context canceled)")
			return
		case <-l.stopChan:
			logging.Info().Msg("Notification listener stopping")
			return
		default:
			l.connMu.RLock()
			conn := l.conn
			l.connMu.RUnlock()

			if conn == nil {
				logging.Info().
					Dur("delay", reconnectDelay).
					Msg("Notification connection lost, reconnecting")
				select {
				case <-time.After(reconnectDelay):
				case <-ctx.Done():
					return
				case <-l.stopChan:
					return
				}

				reconnectDelay *= 2
				if reconnectDelay > maxReconnectDelay {
					reconnectDelay = maxReconnectDelay
				}

				metrics.WebsocketReconnects.Inc()
				if err := l.dial(ctx); err != nil {
					logging.Error().Err(err).Msg("Notification reconnect failed")
					continue
				}

				reconnectDelay = 1 * time.Second
				continue
			}

			if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
				logging.Debug().Err(err).Msg("Failed to set read deadline")
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Info().Msg("Notification socket closed by server")
					l.closeConnection()
					continue
				}
				if ctx.Err() != nil {
					return
				}

				l.handlerMu.RLock()
				onError := l.onError
				l.handlerMu.RUnlock()
				if onError != nil {
					onError(err)
				}

				logging.Warn().Err(err).Msg("Notification read error")
				l.closeConnection()
				continue
			}

			reconnectDelay = 1 * time.Second
			l.handleMessage(message)
		}
	}
}

// handleMessage parses one notification and forwards playing alerts.
func (l *AlertListener) handleMessage(data []byte) {
	var wrapper models.NotificationWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		logging.Error().Err(err).Msg("Failed to parse notification")
		return
	}

	container := wrapper.NotificationContainer
	metrics.RecordAlert(container.Type)

	if !container.IsPlaying() {
		logging.Trace().
			Str("type", container.Type).
			Int("size", container.Size).
			Msg("Dropping non-playing notification")
		return
	}

	logging.Trace().RawJSON("alert", data).Msg("Playing notification")

	l.handlerMu.RLock()
	onAlert := l.onAlert
	l.handlerMu.RUnlock()
	if onAlert == nil {
		return
	}

	for i := range container.PlaySessionStateNotification {
		onAlert(container.PlaySessionStateNotification[i])
	}
}

// pingLoop keeps the connection alive; Plex drops sockets that go quiet.
func (l *AlertListener) pingLoop(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.connMu.RLock()
			conn := l.conn
			l.connMu.RUnlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				logging.Warn().Err(err).Msg("Notification ping failed")
				l.closeConnection()
			}
		}
	}
}

// closeConnection tears down the current connection; the listen loop will
// reconnect unless the listener is stopping.
func (l *AlertListener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return
	}

	if err := l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(1*time.Second),
	); err != nil {
		logging.Debug().Err(err).Msg("Failed to send close message")
	}
	if err := l.conn.Close(); err != nil {
		logging.Debug().Err(err).Msg("Failed to close notification socket")
	}
	l.conn = nil
	metrics.SetWebsocketConnected(false)
}

// IsConnected reports whether the WebSocket is currently up.
func (l *AlertListener) IsConnected() bool {
	l.connMu.RLock()
	defer l.connMu.RUnlock()
	return l.conn != nil
}

// Close stops the listener and waits for its goroutines to exit.
func (l *AlertListener) Close() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.closeConnection()
	l.wg.Wait()
}
