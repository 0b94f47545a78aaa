// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package decode

import (
	"time"

	"github.com/skysonde/skysonde/internal/transport"
)

// stubConn records writes and serves scripted lines for decoder
// connect-hook and poll tests.
type stubConn struct {
	lines  []string
	writes []string
}

func (c *stubConn) ReadLine(_ time.Duration) (string, error) {
	if len(c.lines) == 0 {
		return "", transport.ErrTimeout
	}
	line := c.lines[0]
	c.lines = c.lines[1:]
	return line, nil
}

func (c *stubConn) Write(p []byte) error {
	c.writes = append(c.writes, string(p))
	return nil
}

func (c *stubConn) Close() error { return nil }
