// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

/*
Package metrics provides Prometheus collectors for the controller.

Metrics are exposed at the ops server's /metrics endpoint in Prometheus
text format.

# Available Metrics

Listener and alert pipeline:
  - plex_alerts_received_total: WebSocket notifications received (counter)
    Labels: type (playing, timeline, activity, status, other)
  - plex_websocket_connected: Connection state, 0 or 1 (gauge)
  - plex_websocket_reconnects_total: Reconnection attempts (counter)
  - alerts_poisoned_total: Notifications parked after exhausting handler
    retries (counter)

Engine:
  - sessions_active: Sessions currently tracked (gauge)
  - sessions_started_total: Sessions admitted to the table (counter)
  - sessions_removed_total: Sessions removed (counter)
    Labels: reason (ended, timeout, stopped, takeover, advance, error)
  - sessions_ignored: Size of the ignore list (gauge)
  - skips_total: Skip interventions dispatched (counter)
    Labels: source (custom, lastchapter, chapter, marker, ended)
  - volume_adjustments_total: Volume interventions dispatched (counter)
    Labels: direction (lower, restore)
  - binge_blocks_total: Session updates filtered by the binge inhibitor
    (counter)

Commander:
  - player_commands_total: Player RPCs issued (counter)
    Labels: command (seek, stop, playMedia, setVolume, timeline),
    outcome (ok, error, dropped)
  - player_command_duration_seconds: Player RPC latency (histogram)
    Labels: command
  - command_pool_in_flight: Commands currently executing (gauge)
  - circuit_breaker_state: Per-player breaker state (gauge)
    Labels: player
    Values: 0=closed, 1=half-open, 2=open

Server client:
  - plex_api_requests_total: Plex REST calls (counter)
    Labels: endpoint, status

All collectors are package-level and registered with the default registry
via promauto, so recording a metric is a plain function call with no setup.
Recording functions are safe for concurrent use.
*/
package metrics
