// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session removal reasons for SessionsRemoved.
const (
	RemoveEnded    = "ended"
	RemoveTimeout  = "timeout"
	RemoveStopped  = "stopped"
	RemoveTakeover = "takeover"
	RemoveAdvance  = "advance"
	RemoveError    = "error"
)

// Command outcomes for PlayerCommands.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
)

var (
	// Listener metrics
	AlertsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_alerts_received_total",
			Help: "Total WebSocket notifications received, by container type",
		},
		[]string{"type"},
	)

	WebsocketConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plex_websocket_connected",
			Help: "Whether the notification WebSocket is connected (0 or 1)",
		},
	)

	WebsocketReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plex_websocket_reconnects_total",
			Help: "Total WebSocket reconnection attempts",
		},
	)

	AlertsPoisoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_poisoned_total",
			Help: "Notifications parked after exhausting handler retries",
		},
	)

	// Engine metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Playback sessions currently tracked",
		},
	)

	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_started_total",
			Help: "Total playback sessions admitted to the table",
		},
	)

	SessionsRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_removed_total",
			Help: "Total playback sessions removed, by reason",
		},
		[]string{"reason"},
	)

	SessionsIgnored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_ignored",
			Help: "Current size of the ignored-session list",
		},
	)

	Skips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skips_total",
			Help: "Skip interventions dispatched, by trigger source",
		},
		[]string{"source"},
	)

	VolumeAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volume_adjustments_total",
			Help: "Volume interventions dispatched, by direction",
		},
		[]string{"direction"},
	)

	BingeBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "binge_blocks_total",
			Help: "Session updates filtered to safe tags by the binge inhibitor",
		},
	)

	// Commander metrics
	PlayerCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "player_commands_total",
			Help: "Player RPCs issued, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	PlayerCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "player_command_duration_seconds",
			Help:    "Player RPC latency in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"command"},
	)

	CommandPoolInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "command_pool_in_flight",
			Help: "Player commands currently executing",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Per-player circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"player"},
	)

	// Server client metrics
	PlexAPIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plex_api_requests_total",
			Help: "Plex REST API calls, by endpoint and HTTP status",
		},
		[]string{"endpoint", "status"},
	)
)

// RecordAlert counts one received notification container.
func RecordAlert(containerType string) {
	AlertsReceived.WithLabelValues(containerType).Inc()
}

// RecordAlertPoisoned counts one notification parked on the poison topic.
func RecordAlertPoisoned() {
	AlertsPoisoned.Inc()
}

// RecordAPIRequest counts one Plex REST call.
func RecordAPIRequest(endpoint string, status int) {
	PlexAPIRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// RecordCommand counts one player RPC and its latency.
func RecordCommand(command, outcome string, duration time.Duration) {
	PlayerCommands.WithLabelValues(command, outcome).Inc()
	PlayerCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordCommandDropped counts a command that never ran because the pool was
// saturated.
func RecordCommandDropped(command string) {
	PlayerCommands.WithLabelValues(command, OutcomeDropped).Inc()
}

// SetWebsocketConnected records the listener connection state.
func SetWebsocketConnected(connected bool) {
	if connected {
		WebsocketConnected.Set(1)
		return
	}
	WebsocketConnected.Set(0)
}

// RecordSessionRemoved counts one session removal.
func RecordSessionRemoved(reason string) {
	SessionsRemoved.WithLabelValues(reason).Inc()
}
