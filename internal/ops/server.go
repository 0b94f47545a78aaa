// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package ops serves the per-process operational endpoint: health,
// status, and Prometheus metrics. Every process in the pipeline carries
// its own when given an address: the supervisor serves the aggregated
// child view, and each child exposes the collectors it actually
// updates, since collectors never cross a process boundary.
package ops

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skysonde/skysonde/internal/logging"
)

// StatusFunc supplies the /status body. The value is marshaled as JSON.
type StatusFunc func() any

// Server is the ops HTTP listener, runnable as a suture service.
type Server struct {
	addr   string
	status StatusFunc
}

// NewServer creates an ops server on addr. status may be nil; /status
// then returns an empty object.
func NewServer(addr string, status StatusFunc) *Server {
	return &Server{addr: addr, status: status}
}

// String names the service in supervision events.
func (s *Server) String() string { return "ops:" + s.addr }

// Serve implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.Info().Str("addr", s.addr).Msg("ops endpoint listening")

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var body any = struct{}{}
	if s.status != nil {
		body = s.status()
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn().Err(err).Msg("status encode failed")
	}
}
