// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package transport

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.bug.st/serial"
)

// serialConn adapts a go.bug.st serial port to the Conn interface.
// Frames are newline-terminated; bytes that are not valid UTF-8 are
// dropped rather than failing the read, matching instrument firmware
// that occasionally emits garbage during warm-up.
type serialConn struct {
	port    serial.Port
	timeout time.Duration

	pending []string     // complete lines not yet handed out
	partial bytes.Buffer // trailing bytes of an incomplete line
}

// OpenSerial opens port at the given baud rate, 8N1, with the given
// per-read timeout.
func OpenSerial(port string, baudrate int, timeout time.Duration) (Conn, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", port, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", port, err)
	}
	return &serialConn{port: p, timeout: timeout}, nil
}

func (c *serialConn) ReadLine(timeout time.Duration) (string, error) {
	if line, ok := c.popLine(); ok {
		return line, nil
	}
	if timeout <= 0 {
		// Drain read: hand out only what the OS already buffered.
		if _, err := c.fillNonBlocking(); err != nil {
			return "", err
		}
		if line, ok := c.popLine(); ok {
			return line, nil
		}
		return "", ErrTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		n, err := c.fill()
		if err != nil {
			return "", err
		}
		if line, ok := c.popLine(); ok {
			return line, nil
		}
		if n == 0 {
			// The port's own read timeout elapsed with no bytes.
			return "", ErrTimeout
		}
		if time.Now().After(deadline) {
			return "", ErrTimeout
		}
	}
}

func (c *serialConn) Write(p []byte) error {
	if _, err := c.port.Write(p); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (c *serialConn) Close() error {
	return c.port.Close()
}

// fillNonBlocking reads whatever the OS already holds without waiting,
// then restores the configured read timeout. A zero read timeout makes
// the port's Read return immediately, with or without data.
func (c *serialConn) fillNonBlocking() (int, error) {
	if err := c.port.SetReadTimeout(0); err != nil {
		return 0, fmt.Errorf("set drain timeout: %w", err)
	}
	n, err := c.fill()
	if rerr := c.port.SetReadTimeout(c.timeout); rerr != nil && err == nil {
		return n, fmt.Errorf("restore read timeout: %w", rerr)
	}
	return n, err
}

// fill reads one chunk from the port and splits out complete lines.
// Returns the number of bytes read; zero means the read window elapsed.
func (c *serialConn) fill() (int, error) {
	chunk := make([]byte, 1024)
	n, err := c.port.Read(chunk)
	if err != nil {
		return 0, fmt.Errorf("serial read: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	c.partial.Write(chunk[:n])

	for {
		raw := c.partial.Bytes()
		i := bytes.IndexByte(raw, '\n')
		if i < 0 {
			break
		}
		line := sanitizeLine(raw[:i])
		c.partial.Next(i + 1)
		if line != "" {
			c.pending = append(c.pending, line)
		}
	}
	return n, nil
}

func (c *serialConn) popLine() (string, bool) {
	if len(c.pending) == 0 {
		return "", false
	}
	line := c.pending[0]
	c.pending = c.pending[1:]
	return line, true
}

// sanitizeLine trims framing whitespace and strips invalid UTF-8.
func sanitizeLine(raw []byte) string {
	s := strings.TrimRight(string(raw), "\r\n")
	s = strings.TrimSpace(s)
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
