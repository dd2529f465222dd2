// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

/*
Package supervisor provides process supervision for Transilio using suture v4.

It implements a hierarchical supervisor tree that manages the lifecycle of
the daemon's long-running services, with Erlang/OTP-style automatic restart,
failure isolation, and graceful shutdown.

# Overview

The tree organizes services into three layers:

	RootSupervisor ("transilio")
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── ListenerService (websocket notification listener)
	│   └── RouterService (alert bus router)
	├── EngineSupervisor ("engine-layer")
	│   └── EngineService (session inspection loop)
	└── OpsSupervisor ("ops-layer")
	    └── OpsService (health and metrics HTTP server)

This hierarchy ensures that:
  - A listener crash redials without touching the engine's session table
  - Router failures don't take the websocket connection down with them
  - The ops server can restart without affecting playback handling

# Failure Handling

The supervisor uses a failure counter with exponential decay: each service
failure increments the counter, the counter decays over FailureDecay
seconds, and when it exceeds FailureThreshold the supervisor waits
FailureBackoff before the next restart. Defaults match suture's own
(5 failures, 30 s decay, 15 s backoff, 10 s shutdown timeout).

# Service Interface

All services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: service stopped cleanly, will not be restarted
  - Return error: service crashed, will be restarted
  - Context canceled: shutdown requested, return promptly

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("Service didn't stop: %v", svc)
	}

# What Is NOT Supervised

The commander's worker pool is not a service: workers are short-lived
goroutines bounded by a semaphore, and the serve command waits for them
directly during shutdown. The Plex REST client is a library, not a process;
its failures surface through the circuit breaker and session removal.
*/
package supervisor
