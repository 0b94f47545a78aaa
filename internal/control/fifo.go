// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package control injects out-of-band commands into an instrument's
// transport through a named FIFO next to its sink.
//
// Any process on the host can write newline-terminated commands to
// output/<name>/<name>.ctl. Lines are forwarded verbatim to the device;
// a bare integer is expanded through the instrument's power command
// template first. The pump runs as a suture service inside the
// instrument process, beside the acquisition loop.
package control

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/skysonde/skysonde/internal/logging"
)

// SendFunc delivers one command to the instrument transport. It returns
// an error when the transport is down; the pump logs and drops the
// command rather than queueing it.
type SendFunc func(cmd []byte) error

// pollInterval bounds how long a shutdown waits on a quiet FIFO.
const pollInterval = 250 * time.Millisecond

// Pump reads the control FIFO and forwards commands.
type Pump struct {
	name     string
	path     string
	template string
	send     SendFunc
}

// NewPump creates a control pump for the named instrument. template may
// be empty when the instrument has no power-style command mapping.
func NewPump(name, path, template string, send SendFunc) *Pump {
	return &Pump{name: name, path: path, template: template, send: send}
}

// String names the service in supervision events.
func (p *Pump) String() string { return "control:" + p.name }

// Serve implements suture.Service: it creates the FIFO if needed and
// pumps lines until the context is canceled.
func (p *Pump) Serve(ctx context.Context) error {
	f, err := p.open()
	if err != nil {
		return err
	}
	defer f.Close()
	logging.Info().Str("instrument", p.name).Str("path", p.path).Msg("control channel open")

	buf := make([]byte, 4096)
	var pending bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := f.SetReadDeadline(time.Now().Add(pollInterval)); err != nil {
			return fmt.Errorf("control channel deadline: %w", err)
		}
		n, err := f.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
			p.dispatch(&pending)
		}
		if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("control channel read: %w", err)
		}
	}
}

// open ensures the FIFO exists and opens it read/write so the read end
// never sees EOF between external writers.
func (p *Pump) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return nil, fmt.Errorf("create control directory: %w", err)
	}

	if info, err := os.Lstat(p.path); err == nil && info.Mode()&fs.ModeNamedPipe == 0 {
		// Something else squatting on the path; replace it.
		if err := os.Remove(p.path); err != nil {
			return nil, fmt.Errorf("replace control path %s: %w", p.path, err)
		}
	}
	if err := unix.Mkfifo(p.path, 0o666); err != nil && !errors.Is(err, unix.EEXIST) {
		return nil, fmt.Errorf("mkfifo %s: %w", p.path, err)
	}

	fd, err := unix.Open(p.path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open control fifo %s: %w", p.path, err)
	}
	return os.NewFile(uintptr(fd), p.path), nil
}

// dispatch forwards every complete line buffered so far.
func (p *Pump) dispatch(pending *bytes.Buffer) {
	for {
		line, err := pending.ReadString('\n')
		if err != nil {
			// Partial line; push it back for the next read.
			pending.WriteString(line)
			return
		}
		p.handle(strings.TrimSpace(line))
	}
}

// handle translates and sends one control line.
func (p *Pump) handle(line string) {
	if line == "" {
		return
	}

	cmd := line
	if p.template != "" {
		if n, err := strconv.Atoi(line); err == nil {
			cmd = fmt.Sprintf(p.template, n)
		}
	}
	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\r\n"
	}

	if err := p.send([]byte(cmd)); err != nil {
		logging.Warn().Str("instrument", p.name).Str("command", line).Err(err).
			Msg("control command dropped")
		return
	}
	logging.Info().Str("instrument", p.name).Str("command", line).Msg("control command sent")
}
