// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/skysonde/skysonde/internal/logging"
	"github.com/skysonde/skysonde/internal/metrics"
)

// CommandFactory builds the exec.Cmd for one child process. The
// production factory re-execs this binary with a subcommand; tests
// substitute stub commands.
type CommandFactory func(name string, args []string) *exec.Cmd

// child is one supervised OS process.
type child struct {
	name  string
	args  []string
	fanIn bool

	mu       sync.Mutex
	cmd      *exec.Cmd
	running  bool
	pid      int
	lastExit int
	restarts int
	started  time.Time
}

// ChildStatus is a point-in-time snapshot for status reports.
type ChildStatus struct {
	Name     string    `json:"name"`
	Running  bool      `json:"running"`
	PID      int       `json:"pid,omitempty"`
	LastExit int       `json:"last_exit_code"`
	Restarts int       `json:"restarts"`
	Started  time.Time `json:"started,omitempty"`
}

// start launches the child and reaps it in the background.
func (c *child) start(factory CommandFactory) error {
	cmd := factory(c.name, c.args)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.running = true
	c.pid = cmd.Process.Pid
	c.started = time.Now()
	c.mu.Unlock()

	metrics.ChildRunning.WithLabelValues(c.name).Set(1)
	logging.Info().Str("child", c.name).Int("pid", cmd.Process.Pid).Msg("child started")

	go func() {
		err := cmd.Wait()
		code := 0
		if err != nil {
			code = -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			}
		}
		c.mu.Lock()
		c.running = false
		c.lastExit = code
		c.mu.Unlock()
		metrics.ChildRunning.WithLabelValues(c.name).Set(0)
		logging.Warn().Str("child", c.name).Int("exit_code", code).Msg("child exited")
	}()
	return nil
}

// alive reports whether the process is still running.
func (c *child) alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// status snapshots the child for reports.
func (c *child) status() ChildStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := ChildStatus{
		Name:     c.name,
		Running:  c.running,
		LastExit: c.lastExit,
		Restarts: c.restarts,
	}
	if c.running {
		s.PID = c.pid
		s.Started = c.started
	}
	return s
}

// noteRestart bumps the visible restart counter.
func (c *child) noteRestart() {
	c.mu.Lock()
	c.restarts++
	c.mu.Unlock()
	metrics.ChildRestarts.WithLabelValues(c.name).Inc()
}

// stop terminates the child: SIGTERM, a grace period, then SIGKILL.
func (c *child) stop(grace time.Duration) {
	c.mu.Lock()
	cmd := c.cmd
	running := c.running
	c.mu.Unlock()
	if !running || cmd == nil || cmd.Process == nil {
		return
	}

	logging.Info().Str("child", c.name).Dur("grace", grace).Msg("stopping child")
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return // already gone
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !c.alive() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	logging.Warn().Str("child", c.name).Msg("grace period expired, killing")
	cmd.Process.Kill()
	for c.alive() {
		time.Sleep(10 * time.Millisecond)
	}
}
