// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/transilio/internal/alerts"
	"github.com/tomtom215/transilio/internal/binge"
	"github.com/tomtom215/transilio/internal/commander"
	"github.com/tomtom215/transilio/internal/engine"
	"github.com/tomtom215/transilio/internal/entries"
	"github.com/tomtom215/transilio/internal/logging"
	"github.com/tomtom215/transilio/internal/ops"
	"github.com/tomtom215/transilio/internal/plex"
	"github.com/tomtom215/transilio/internal/supervisor"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the auto-skip daemon",
	Long: `Connect to the configured Plex server, subscribe to playback
notifications and control players until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// gatedListener delays the websocket dial until the alert router is
// consuming, so the first notifications are not published into a bus
// with no subscriber.
type gatedListener struct {
	*plex.AlertListener
	ready <-chan struct{}
}

func (g *gatedListener) Connect(ctx context.Context) error {
	select {
	case <-g.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.AlertListener.Connect(ctx)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	logging.Info().Str("config", cfgPath).Msg("Transilio starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	client, err := plex.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to plex: %w", err)
	}

	entriesPath := entries.DefaultPath(cfgPath)
	if err := entries.Materialize(entriesPath); err != nil {
		logging.Warn().Err(err).Str("path", entriesPath).Msg("Could not materialize custom entries")
	}
	doc := entries.LoadOrDefault(entriesPath)

	tracker := binge.NewTracker(binge.Config{
		BlockCount:   cfg.Skip.Binge,
		SafeTags:     cfg.Skip.BingeSafeTags,
		SameShowOnly: cfg.Skip.BingeSameShowOnly,
		SkipNextMax:  cfg.Skip.SkipNextMax,
	}, client)

	commands := commander.New(client, tracker, cfg)
	eng := engine.New(client, doc, tracker, commands, cfg)
	commands.BindTable(eng)

	bus := alerts.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing alert bus")
		}
	}()

	router, err := alerts.NewRouter(alerts.DefaultRouterConfig(), bus, eng)
	if err != nil {
		return fmt.Errorf("build alert router: %w", err)
	}

	listener := plex.NewAlertListener(client.BaseURL(), client.Token(), cfg.Security.IgnoreCerts)
	listener.SetHandlers(bus.Accept, nil)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("build supervisor tree: %w", err)
	}

	tree.AddPipelineService(supervisor.NewRouterService(router))
	tree.AddPipelineService(supervisor.NewListenerService(&gatedListener{
		AlertListener: listener,
		ready:         router.Running(),
	}))
	tree.AddEngineService(supervisor.NewEngineService(eng))

	if cfg.Ops.Enabled {
		opsServer := ops.New(cfg.Ops,
			ops.Probe{Name: "websocket_connected", Ready: listener.IsConnected},
			ops.Probe{Name: "alert_router_running", Ready: router.IsRunning},
		)
		tree.AddOpsService(supervisor.NewOpsService(opsServer))
	}

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	// Wait for the channel to close, which means the tree has finished.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Player commands already dispatched finish on their own workers.
	commands.Wait()

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Transilio stopped")
	return nil
}
