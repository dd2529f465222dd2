// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Package alerts carries playback notifications from the websocket listener
// to the engine over an in-process Pub/Sub. The listener publishes each
// notification as a message; a single router handler decodes and feeds the
// engine, so arrival order is preserved end to end.
package alerts

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/models"
)

// Topic carries playback state notifications.
const Topic = "plex.playing"

// outputBuffer decouples the listener's read loop from handler latency. An
// alert storm beyond this backs pressure onto the websocket reader.
const outputBuffer = 256

// Bus is the in-process Pub/Sub between the listener and the router.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: outputBuffer,
		}, logging.NewWatermillAdapter()),
	}
}

// Publish serializes one notification onto the bus.
func (b *Bus) Publish(n models.PlaySessionStateNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return b.pubsub.Publish(Topic, message.NewMessage(watermill.NewUUID(), payload))
}

// Accept adapts Publish to the listener's callback signature. Publishing
// only fails once the bus is closed, during shutdown.
func (b *Bus) Accept(n models.PlaySessionStateNotification) {
	if err := b.Publish(n); err != nil {
		logging.Warn().
			Err(err).
			Str("session", n.SessionKey).
			Msg("Dropping notification")
	}
}

// Close stops delivery. In-flight messages are discarded.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
