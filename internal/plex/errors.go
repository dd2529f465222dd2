// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package plex

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// TroubleshootURL points at the wiki page covering common player-command
// failures.
const TroubleshootURL = "https://github.com/tomtom215/transilio/wiki/Troubleshooting"

// REST error classes. doRequest wraps these so callers can branch with
// errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
)

// ErrUnparseableResponse marks a syntactically broken player reply. Some
// clients acknowledge a command and then answer with invalid XML; the
// commander treats the command as delivered.
var ErrUnparseableResponse = errors.New("unparseable player response")

// CommandError is a failed player command. StatusCode is zero for transport
// errors.
type CommandError struct {
	Command    string
	Player     string
	StatusCode int
	Err        error
}

func (e *CommandError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("player command %s to %s: status %d", e.Command, e.Player, e.StatusCode)
	}
	return fmt.Sprintf("player command %s to %s: %v", e.Command, e.Player, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// commandStatusErr maps a player command status to the matching error
// class so callers can branch with errors.Is. Unmapped statuses yield nil;
// CommandError.Error prints the code either way.
func commandStatusErr(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return ErrBadRequest
	}
	return nil
}

// Hint returns a human-actionable pointer for known failure classes, or ""
// when the failure does not match one.
func (e *CommandError) Hint() string {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return "player rejected the command, see " + TroubleshootURL + "#badrequest-error"
	case http.StatusForbidden:
		return "player refused the command, see " + TroubleshootURL + "#forbidden-error"
	case http.StatusNotFound:
		return "player not reachable at this address, check that Advertise as Player is enabled, see " + TroubleshootURL + "#badrequest-error"
	}
	return ""
}

// IsTimeout reports whether err is a network timeout or a context deadline.
// The engine removes a session on timeouts so the next alert rebuilds it.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
