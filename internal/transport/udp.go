// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// udpConn adapts a bound UDP socket to the Conn interface. One datagram
// is one frame; framing newlines inside a datagram are stripped.
type udpConn struct {
	conn    *net.UDPConn
	timeout time.Duration
	buf     []byte
}

// BindUDP binds the given local address for a datagram instrument.
func BindUDP(bind string, timeout time.Duration) (Conn, error) {
	addr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("resolve udp bind %s: %w", bind, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind udp %s: %w", bind, err)
	}
	return &udpConn{conn: conn, timeout: timeout, buf: make([]byte, 64*1024)}, nil
}

// drainWindow stands in for a true non-blocking read: the runtime
// poller fails a read whose deadline has already passed, even with
// datagrams queued, so drain reads get a short real deadline instead.
const drainWindow = 5 * time.Millisecond

func (c *udpConn) ReadLine(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = drainWindow
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", fmt.Errorf("set udp deadline: %w", err)
	}

	n, _, err := c.conn.ReadFromUDP(c.buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", ErrTimeout
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("udp read: %w", err)
	}

	line := sanitizeLine(c.buf[:n])
	if line == "" {
		return "", ErrTimeout
	}
	return line, nil
}

func (c *udpConn) Write(p []byte) error {
	// Datagram instruments are receive-only; there is no peer address
	// to send to until one is learned, and no decoder needs to send.
	return fmt.Errorf("udp transport is receive-only")
}

func (c *udpConn) Close() error {
	return c.conn.Close()
}
