// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package transport

import (
	"context"
	"time"

	"github.com/skysonde/skysonde/internal/logging"
)

// State is the connection lifecycle state.
type State int

const (
	// Disconnected means no live transport and the loop is waiting out
	// the reconnect cooldown.
	Disconnected State = iota
	// Connecting means a resolution/open attempt is in flight.
	Connecting
	// Connected means a live transport handle exists.
	Connected
	// Failed is the transient state after an attempt or read error;
	// the manager moves back to Disconnected immediately.
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// DialFunc resolves and opens a transport. For serial instruments it
// runs the device locator and opens the resolved port; for UDP it binds
// the configured address.
type DialFunc func(ctx context.Context) (Conn, error)

// HandshakeFunc runs protocol-specific init commands after a successful
// open. It runs exactly once per successful connection.
type HandshakeFunc func(conn Conn) error

// ManagerConfig tunes one connection manager.
type ManagerConfig struct {
	// ReconnectDelay is the fixed cooldown between attempts. There is
	// deliberately no exponential backoff: field instruments come back
	// when someone reseats a cable, not on a schedule.
	ReconnectDelay time.Duration

	// SettleDelay is the pause after a successful open before the
	// handshake runs; many instruments drop bytes while their UART
	// settles.
	SettleDelay time.Duration

	// MaxFailures is the consecutive-failure count that forces a hard
	// close and reconnect.
	MaxFailures int
}

// Manager owns at most one live transport for one acquisition loop and
// drives the Disconnected/Connecting/Connected/Failed state machine.
// It is not safe for concurrent use; the acquisition loop is its only
// caller.
type Manager struct {
	name      string
	dial      DialFunc
	handshake HandshakeFunc
	cfg       ManagerConfig

	conn        Conn
	state       State
	failures    int
	lastAttempt time.Time

	// test seams
	now   func() time.Time
	sleep func(time.Duration)
}

// NewManager creates a manager for the named instrument. handshake may
// be nil when the protocol needs no post-connect commands.
func NewManager(name string, dial DialFunc, handshake HandshakeFunc, cfg ManagerConfig) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	return &Manager{
		name:      name,
		dial:      dial,
		handshake: handshake,
		cfg:       cfg,
		state:     Disconnected,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State { return m.state }

// Connected reports whether a live transport exists.
func (m *Manager) Connected() bool { return m.state == Connected && m.conn != nil }

// Conn returns the live transport, or nil when disconnected.
func (m *Manager) Conn() Conn {
	if !m.Connected() {
		return nil
	}
	return m.conn
}

// ConsecutiveFailures returns the current failure streak.
func (m *Manager) ConsecutiveFailures() int { return m.failures }

// MaybeConnect attempts a connection if the manager is disconnected and
// the reconnect cooldown has elapsed. It returns true when a new
// connection was established this call.
func (m *Manager) MaybeConnect(ctx context.Context) bool {
	if m.Connected() {
		return false
	}
	if since := m.now().Sub(m.lastAttempt); since < m.cfg.ReconnectDelay && !m.lastAttempt.IsZero() {
		return false
	}
	m.lastAttempt = m.now()
	m.state = Connecting

	conn, err := m.dial(ctx)
	if err != nil {
		// Resolution and open errors are routine: the device may be
		// unplugged. Log and retry on schedule.
		logging.Warn().Str("instrument", m.name).Err(err).Msg("connection attempt failed")
		m.failures++
		// Failed -> Disconnected is immediate; Failed never persists.
		m.state = Disconnected
		return false
	}

	if m.cfg.SettleDelay > 0 {
		m.sleep(m.cfg.SettleDelay)
	}

	if m.handshake != nil {
		if err := m.handshake(conn); err != nil {
			logging.Warn().Str("instrument", m.name).Err(err).Msg("post-connect handshake failed")
			conn.Close()
			m.failures++
			m.state = Disconnected
			return false
		}
	}

	m.conn = conn
	m.failures = 0
	m.state = Connected
	logging.Info().Str("instrument", m.name).Msg("connected")
	return true
}

// RecordFailure notes a transport read/write error. When the streak
// reaches MaxFailures the transport is force-closed, the counter resets,
// and no reconnect happens before ReconnectDelay. Returns true when the
// threshold tripped this call.
func (m *Manager) RecordFailure() bool {
	m.failures++
	if m.failures < m.cfg.MaxFailures {
		return false
	}
	logging.Warn().
		Str("instrument", m.name).
		Int("failures", m.failures).
		Dur("reconnect_in", m.cfg.ReconnectDelay).
		Msg("failure threshold reached, forcing reconnect")
	m.forceClose()
	return true
}

// RecordSuccess resets the failure streak after a good read.
func (m *Manager) RecordSuccess() { m.failures = 0 }

// Close shuts the transport down for good (process shutdown).
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = Disconnected
}

func (m *Manager) forceClose() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.failures = 0
	m.lastAttempt = m.now()
	m.state = Disconnected
}
