// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// This file contains service wrappers that adapt the daemon's components to
// the suture.Service interface.
//
// Each wrapper:
//   - Implements the Serve(context.Context) error method
//   - Returns startup errors so the supervisor retries with backoff
//   - Handles graceful shutdown on context cancellation

package supervisor

import (
	"context"
	"fmt"

	"github.com/tomtom215/transilio/internal/logging"
)

// Listener is the websocket notification listener side of the pipeline.
// Satisfied by *plex.AlertListener.
type Listener interface {
	Connect(ctx context.Context) error
	Close()
}

// ListenerService supervises the websocket connection to the Plex server.
type ListenerService struct {
	listener Listener
}

// NewListenerService creates a listener service wrapper.
func NewListenerService(l Listener) *ListenerService {
	return &ListenerService{listener: l}
}

// Serve implements suture.Service. A failed dial returns the error so the
// supervisor redials with backoff. Once connected, reconnection after a
// dropped socket happens inside the listener; this service only waits for
// shutdown.
func (s *ListenerService) Serve(ctx context.Context) error {
	logging.Info().Msg("Starting notification listener")

	if err := s.listener.Connect(ctx); err != nil {
		return fmt.Errorf("connect notification listener: %w", err)
	}

	<-ctx.Done()

	s.listener.Close()
	logging.Info().Msg("Notification listener stopped")

	return nil
}

// String identifies the service in supervisor logs.
func (s *ListenerService) String() string { return "notification-listener" }

// AlertRouter drives bus messages into the engine. Satisfied by
// *alerts.Router.
type AlertRouter interface {
	Run(ctx context.Context) error
}

// RouterService supervises the alert router.
type RouterService struct {
	router AlertRouter
}

// NewRouterService creates a router service wrapper.
func NewRouterService(r AlertRouter) *RouterService {
	return &RouterService{router: r}
}

// Serve implements suture.Service. Run blocks until the context is
// canceled; a router error is returned for restart.
func (s *RouterService) Serve(ctx context.Context) error {
	logging.Info().Msg("Starting alert router")

	if err := s.router.Run(ctx); err != nil {
		return fmt.Errorf("alert router: %w", err)
	}

	logging.Info().Msg("Alert router stopped")
	return nil
}

// String identifies the service in supervisor logs.
func (s *RouterService) String() string { return "alert-router" }

// Engine is the periodic session inspection loop. Satisfied by
// *engine.Engine.
type Engine interface {
	Run(ctx context.Context) error
}

// EngineService supervises the playback engine.
type EngineService struct {
	engine Engine
}

// NewEngineService creates an engine service wrapper.
func NewEngineService(e Engine) *EngineService {
	return &EngineService{engine: e}
}

// Serve implements suture.Service. The engine returns the context error on
// shutdown, which the supervisor treats as normal termination.
func (s *EngineService) Serve(ctx context.Context) error {
	logging.Info().Msg("Starting playback engine")

	err := s.engine.Run(ctx)

	logging.Info().Msg("Playback engine stopped")
	return err
}

// String identifies the service in supervisor logs.
func (s *EngineService) String() string { return "playback-engine" }

// OpsServer is the health and metrics HTTP server. Satisfied by
// *ops.Server.
type OpsServer interface {
	Run(ctx context.Context) error
}

// OpsService supervises the ops HTTP server.
type OpsService struct {
	server OpsServer
}

// NewOpsService creates an ops service wrapper.
func NewOpsService(srv OpsServer) *OpsService {
	return &OpsService{server: srv}
}

// Serve implements suture.Service.
func (s *OpsService) Serve(ctx context.Context) error {
	logging.Info().Msg("Starting ops server")

	if err := s.server.Run(ctx); err != nil {
		return fmt.Errorf("ops server: %w", err)
	}

	logging.Info().Msg("Ops server stopped")
	return nil
}

// String identifies the service in supervisor logs.
func (s *OpsService) String() string { return "ops-server" }
