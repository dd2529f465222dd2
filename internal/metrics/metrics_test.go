// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAlert(t *testing.T) {
	before := testutil.ToFloat64(AlertsReceived.WithLabelValues("playing"))
	RecordAlert("playing")
	RecordAlert("playing")
	RecordAlert("timeline")

	after := testutil.ToFloat64(AlertsReceived.WithLabelValues("playing"))
	if after-before != 2 {
		t.Fatalf("playing alerts delta = %v, want 2", after-before)
	}
}

func TestRecordCommand(t *testing.T) {
	before := testutil.ToFloat64(PlayerCommands.WithLabelValues("seek", OutcomeOK))
	RecordCommand("seek", OutcomeOK, 50*time.Millisecond)

	after := testutil.ToFloat64(PlayerCommands.WithLabelValues("seek", OutcomeOK))
	if after-before != 1 {
		t.Fatalf("seek ok delta = %v, want 1", after-before)
	}

	beforeDropped := testutil.ToFloat64(PlayerCommands.WithLabelValues("stop", OutcomeDropped))
	RecordCommandDropped("stop")
	afterDropped := testutil.ToFloat64(PlayerCommands.WithLabelValues("stop", OutcomeDropped))
	if afterDropped-beforeDropped != 1 {
		t.Fatalf("stop dropped delta = %v, want 1", afterDropped-beforeDropped)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(PlexAPIRequests.WithLabelValues("/status/sessions", "200"))
	RecordAPIRequest("/status/sessions", 200)

	after := testutil.ToFloat64(PlexAPIRequests.WithLabelValues("/status/sessions", "200"))
	if after-before != 1 {
		t.Fatalf("api request delta = %v, want 1", after-before)
	}
}

func TestSetWebsocketConnected(t *testing.T) {
	SetWebsocketConnected(true)
	if got := testutil.ToFloat64(WebsocketConnected); got != 1 {
		t.Fatalf("connected gauge = %v, want 1", got)
	}
	SetWebsocketConnected(false)
	if got := testutil.ToFloat64(WebsocketConnected); got != 0 {
		t.Fatalf("connected gauge = %v, want 0", got)
	}
}

func TestSessionGauges(t *testing.T) {
	SessionsActive.Set(3)
	if got := testutil.ToFloat64(SessionsActive); got != 3 {
		t.Fatalf("sessions_active = %v, want 3", got)
	}

	before := testutil.ToFloat64(SessionsRemoved.WithLabelValues(RemoveTimeout))
	RecordSessionRemoved(RemoveTimeout)
	after := testutil.ToFloat64(SessionsRemoved.WithLabelValues(RemoveTimeout))
	if after-before != 1 {
		t.Fatalf("timeout removals delta = %v, want 1", after-before)
	}
}
