// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package supervisor runs the pipeline as a tree of OS processes: one
// per enabled instrument plus the two fan-in consumers, all re-execs of
// this binary with a subcommand. Children share nothing but the
// filesystem, so any of them can die and restart without corrupting the
// others.
//
// Recovery is crash-only: an exited child is restarted unconditionally
// at the next monitor poll, with no backoff beyond the poll interval
// and no restart cap. A field instrument that flaps all flight is still
// more useful than one that was given up on.
package supervisor

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/skysonde/skysonde/internal/config"
	"github.com/skysonde/skysonde/internal/logging"
)

// Supervisor owns the child process set.
type Supervisor struct {
	cfg        *config.Config
	configPath string
	runID      string

	children []*child
	factory  CommandFactory

	poll        time.Duration
	statusEvery time.Duration
	grace       time.Duration
	fanInGrace  time.Duration
}

// New builds a supervisor over the enabled instruments and fan-in
// consumers. configPath is handed to every child so the whole pipeline
// reads the same document.
func New(cfg *config.Config, configPath string) (*Supervisor, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		cfg:        cfg,
		configPath: configPath,
		runID:      uuid.NewString(),
		factory: func(_ string, args []string) *exec.Cmd {
			return exec.Command(exe, args...)
		},
		poll:        cfg.Supervisor.MonitorPoll(),
		statusEvery: cfg.Supervisor.StatusReport(),
		grace:       cfg.Supervisor.GracePeriod(),
		fanInGrace:  cfg.Supervisor.FanInGrace(),
	}
	s.applyDefaults()

	for _, name := range cfg.EnabledInstruments() {
		s.children = append(s.children, &child{
			name: name,
			args: []string{"instrument", name, "-config", configPath},
		})
	}
	if cfg.Merger.Enabled {
		s.children = append(s.children, &child{
			name:  "merge",
			args:  []string{"merge", "-config", configPath},
			fanIn: true,
		})
	}
	if cfg.Vitals.Enabled {
		s.children = append(s.children, &child{
			name:  "vitals",
			args:  []string{"vitals", "-config", configPath},
			fanIn: true,
		})
	}
	return s, nil
}

func (s *Supervisor) applyDefaults() {
	if s.poll <= 0 {
		s.poll = 5 * time.Second
	}
	if s.statusEvery <= 0 {
		s.statusEvery = time.Minute
	}
	if s.grace <= 0 {
		s.grace = 5 * time.Second
	}
	if s.fanInGrace <= 0 {
		s.fanInGrace = s.grace
	}
}

// SetCommandFactory substitutes the child command builder, for tests.
func (s *Supervisor) SetCommandFactory(f CommandFactory) { s.factory = f }

// StartAll brings the pipeline up: instruments in configured order,
// each followed by its startup delay (serialized bring-up keeps
// identical USB adapters from racing enumeration), then the merger's
// delay, then the fan-in consumers.
func (s *Supervisor) StartAll(ctx context.Context) error {
	for _, c := range s.children {
		if c.fanIn {
			continue
		}
		if err := c.start(s.factory); err != nil {
			return err
		}
		if !sleepCtx(ctx, s.cfg.Instruments[c.name].StartupDelay()) {
			return ctx.Err()
		}
	}

	if !sleepCtx(ctx, s.cfg.Merger.StartupDelay()) {
		return ctx.Err()
	}
	for _, c := range s.children {
		if !c.fanIn {
			continue
		}
		if err := c.start(s.factory); err != nil {
			return err
		}
	}
	logging.Info().Str("run_id", s.runID).Int("children", len(s.children)).
		Msg("pipeline started")
	return nil
}

// Monitor polls the children until the context is canceled, restarting
// any that exited and logging the periodic status summary.
func (s *Supervisor) Monitor(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	status := time.NewTicker(s.statusEvery)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.restartExited()
		case <-status.C:
			s.logStatus()
		}
	}
}

// restartExited restarts every child that died since the last poll.
func (s *Supervisor) restartExited() {
	for _, c := range s.children {
		if c.alive() {
			continue
		}
		st := c.status()
		c.noteRestart()
		logging.Warn().Str("child", c.name).
			Int("exit_code", st.LastExit).
			Int("restarts", st.Restarts+1).
			Msg("restarting exited child")
		if err := c.start(s.factory); err != nil {
			// Leave it down; the next poll tries again.
			logging.Error().Str("child", c.name).Err(err).Msg("restart failed")
		}
	}
}

// StopAll tears the pipeline down, fan-in consumers first so no reader
// outlives its sources.
func (s *Supervisor) StopAll() {
	for _, c := range s.children {
		if c.fanIn {
			c.stop(s.fanInGrace)
		}
	}
	for _, c := range s.children {
		if !c.fanIn {
			c.stop(s.grace)
		}
	}
	logging.Info().Msg("pipeline stopped")
}

// Run starts everything, monitors until ctx is canceled, then stops
// everything.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.StartAll(ctx); err != nil {
		s.StopAll()
		return err
	}
	s.Monitor(ctx)
	s.StopAll()
	return ctx.Err()
}

// sleepCtx sleeps d unless the context ends first, reporting whether
// the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
