// Transilio - Plex Auto-Skip Controller
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transilio

// Package ops serves the operational HTTP endpoints: Kubernetes-style
// liveness and readiness probes plus the Prometheus scrape target.
// Playback control never goes over HTTP.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/transilio/internal/config"
	"github.com/tomtom215/transilio/internal/logging"
)

// Server timeouts. The endpoints serve small generated payloads, so
// anything slower than this is a stuck client.
const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Probe reports whether one upstream dependency is ready. Readiness is
// the AND of all probes; the name keys the per-dependency flag in the
// /readyz payload.
type Probe struct {
	Name  string
	Ready func() bool
}

// Server is the ops endpoint. Run serves until its context is canceled,
// which is the shape the supervisor wraps.
type Server struct {
	listen    string
	probes    []Probe
	handler   http.Handler
	startTime time.Time
	boundAddr atomic.Value // string, set once listening
}

// New builds the ops server from the [Ops] configuration. Probes gate
// /readyz; with none, the server reports ready as soon as it listens.
func New(cfg config.OpsConfig, probes ...Probe) *Server {
	s := &Server{
		listen:    cfg.Listen,
		probes:    probes,
		startTime: time.Now(),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the bound listen address, or "" before Run has bound one.
// With a ":0" listen option this is the only way to learn the port.
func (s *Server) Addr() string {
	if addr, ok := s.boundAddr.Load().(string); ok {
		return addr
	}
	return ""
}

// Run listens and serves until ctx is canceled, then shuts down
// gracefully. Bind failures are returned so the supervisor can retry
// with backoff.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.listen, err)
	}
	s.boundAddr.Store(ln.Addr().String())
	logging.Info().Str("addr", ln.Addr().String()).Msg("Ops server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// Shutdown needs a fresh context; the serving one is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logging.Info().Msg("Ops server stopped")
	return nil
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type readyResponse struct {
	Status        string          `json:"status"`
	Checks        map[string]bool `json:"checks"`
	UptimeSeconds float64         `json:"uptime_seconds"`
}

// handleHealthz answers liveness: the process is up, regardless of
// whether the websocket or alert router are.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	})
}

// handleReadyz answers readiness: 200 only when every probe reports
// ready, 503 otherwise, with per-dependency flags in the payload.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]bool, len(s.probes))
	ready := true
	for _, p := range s.probes {
		ok := p.Ready()
		checks[p.Name] = ok
		ready = ready && ok
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, readyResponse{
		Status:        status,
		Checks:        checks,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	})
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal ops response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write ops response")
	}
}
