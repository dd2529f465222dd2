// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/metrics"
	"github.com/tomtom215/transilio/internal/models"
)

// Sink consumes decoded playback notifications. Satisfied by *engine.Engine.
type Sink interface {
	OnAlert(ctx context.Context, n models.PlaySessionStateNotification) error
}

// RouterConfig tunes the alert router's retry and shutdown behavior.
type RouterConfig struct {
	// CloseTimeout is how long Close waits for the in-flight handler.
	CloseTimeout time.Duration

	// Retry backoff for handler errors. A failed alert is superseded by the
	// next one for the same session within seconds, so retries stay short;
	// a long backoff here would stall every session behind one bad message.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	// PoisonTopic receives messages that exhaust their retries. Empty
	// disables parking; exhausted messages are then redelivered.
	PoisonTopic string
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      3,
		RetryInitialInterval: 500 * time.Millisecond,
		RetryMaxInterval:     5 * time.Second,
		RetryMultiplier:      2.0,
		PoisonTopic:          "plex.playing.poison",
	}
}

// Router drives bus messages into the sink. One handler on one
// subscription: notifications reach the engine in arrival order.
//
// Middleware runs poison queue outermost, then recoverer, then retry:
// transient handler errors retry with backoff, and only messages that
// exhaust their retries (or panic) are parked on the poison topic.
type Router struct {
	router *message.Router
}

// NewRouter wires the bus to the sink.
func NewRouter(cfg RouterConfig, bus *Bus, sink Sink) (*Router, error) {
	logger := logging.NewWatermillAdapter()

	wmRouter, err := message.NewRouter(message.RouterConfig{
		CloseTimeout: cfg.CloseTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create alert router: %w", err)
	}

	if cfg.PoisonTopic != "" {
		poison, err := middleware.PoisonQueue(bus.pubsub, cfg.PoisonTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}
		wmRouter.AddMiddleware(poison)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	wmRouter.AddNoPublisherHandler(
		"engine-alerts",
		Topic,
		bus.pubsub,
		func(msg *message.Message) error {
			var n models.PlaySessionStateNotification
			if err := json.Unmarshal(msg.Payload, &n); err != nil {
				// The listener encoded this payload; retrying cannot fix it.
				logging.Error().
					Err(err).
					Str("message", msg.UUID).
					Msg("Discarding undecodable notification")
				return nil
			}
			return sink.OnAlert(msg.Context(), n)
		},
	)

	if cfg.PoisonTopic != "" {
		wmRouter.AddNoPublisherHandler(
			"poisoned-alerts",
			cfg.PoisonTopic,
			bus.pubsub,
			logPoisoned,
		)
	}

	return &Router{router: wmRouter}, nil
}

// logPoisoned records a parked notification and acknowledges it. The next
// alert for the same session carries fresher state than any replay would.
func logPoisoned(msg *message.Message) error {
	metrics.RecordAlertPoisoned()

	var n models.PlaySessionStateNotification
	event := logging.Error().
		Str("message", msg.UUID).
		Str("reason", msg.Metadata.Get(middleware.ReasonForPoisonedKey))
	if err := json.Unmarshal(msg.Payload, &n); err == nil {
		event = event.
			Str("session", n.SessionKey).
			Str("player", n.ClientIdentifier).
			Str("state", n.State)
	}
	event.Msg("Notification abandoned after retries")
	return nil
}

// Run starts the router and blocks until ctx is canceled or Close is
// called.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running returns a channel that closes once all handlers are subscribed.
// Connecting the listener before this point would race message delivery.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// IsRunning reports whether the handlers are subscribed, for readiness
// probes that want a point-in-time answer instead of a channel.
func (r *Router) IsRunning() bool {
	select {
	case <-r.router.Running():
		return true
	default:
		return false
	}
}

// Close stops the router, waiting up to CloseTimeout for the handler.
func (r *Router) Close() error {
	return r.router.Close()
}
