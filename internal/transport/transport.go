// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package transport owns the physical connection to one instrument: the
// line-oriented Conn abstraction over serial and UDP, and the
// ConnectionManager state machine that drives connect, disconnect, and
// fixed-cooldown reconnect around it.
package transport

import (
	"errors"
	"time"
)

// ErrTimeout reports an empty read window. It is not a transport fault:
// instruments emit at their own cadence and silence is expected.
var ErrTimeout = errors.New("read timeout")

// ErrNotConnected is returned when an operation needs a live connection.
var ErrNotConnected = errors.New("not connected")

// Conn is one live, exclusively-owned transport handle. At most one Conn
// exists per acquisition loop at any time.
type Conn interface {
	// ReadLine returns the next newline-terminated frame with the
	// trailing newline stripped. A non-positive timeout performs a
	// drain read that only returns data already buffered; otherwise
	// the call blocks up to the timeout. Empty windows return
	// ErrTimeout.
	ReadLine(timeout time.Duration) (string, error)

	// Write sends raw bytes to the instrument.
	Write(p []byte) error

	Close() error
}
