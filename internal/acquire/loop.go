// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package acquire drives the per-instrument read/decode/append cycle.
//
// One Loop owns one connection manager, one decoder, and one sink, and
// runs as a suture service inside the instrument process. The cycle is
// strictly sequential: reconnect, drain buffered frames keeping the
// newest valid one, probe a silent connection, append, sleep.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/skysonde/skysonde/internal/decode"
	"github.com/skysonde/skysonde/internal/logging"
	"github.com/skysonde/skysonde/internal/metrics"
	"github.com/skysonde/skysonde/internal/sink"
	"github.com/skysonde/skysonde/internal/transport"
)

// maxDrainFrames bounds how many frames one cycle will consume.
const maxDrainFrames = 1000

// LoopConfig tunes one acquisition loop.
type LoopConfig struct {
	// IdleSleep bounds CPU between cycles. Default 100ms.
	IdleSleep time.Duration

	// StaleProbe is how long the loop tolerates a connected-but-silent
	// transport before forcing one blocking read. Default 5s.
	StaleProbe time.Duration

	// ProbeTimeout bounds the blocking liveness read. Default 2s.
	ProbeTimeout time.Duration
}

func (c *LoopConfig) applyDefaults() {
	if c.IdleSleep <= 0 {
		c.IdleSleep = 100 * time.Millisecond
	}
	if c.StaleProbe <= 0 {
		c.StaleProbe = 5 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 2 * time.Second
	}
}

// Loop is the acquisition state machine for one instrument. It is the
// sole writer of its sink and the sole caller of its manager.
type Loop struct {
	name string
	mgr  *transport.Manager
	dec  decode.Decoder
	out  *sink.Sink
	cfg  LoopConfig

	lastData time.Time

	// cmds carries injected control commands; the loop drains it each
	// cycle so transport access stays single-threaded.
	cmds chan []byte

	now func() time.Time
}

// NewLoop assembles an acquisition loop from its already-built parts.
func NewLoop(name string, mgr *transport.Manager, dec decode.Decoder, out *sink.Sink, cfg LoopConfig) *Loop {
	cfg.applyDefaults()
	return &Loop{
		name: name,
		mgr:  mgr,
		dec:  dec,
		out:  out,
		cfg:  cfg,
		cmds: make(chan []byte, 16),
		now:  time.Now,
	}
}

// Send queues a control command for the next cycle. It never blocks;
// a full queue rejects the command.
func (l *Loop) Send(cmd []byte) error {
	select {
	case l.cmds <- cmd:
		return nil
	default:
		return errors.New("control command queue full")
	}
}

// String names the service in supervision events.
func (l *Loop) String() string { return "acquire:" + l.name }

// Serve implements suture.Service. A sink I/O error terminates the
// whole tree: the process exits and the process supervisor restarts it
// with a fresh sink file.
func (l *Loop) Serve(ctx context.Context) error {
	logging.Info().Str("instrument", l.name).Msg("acquisition loop starting")
	l.lastData = l.now()

	for {
		if l.mgr.MaybeConnect(ctx) {
			metrics.Reconnects.WithLabelValues(l.name).Inc()
			l.lastData = l.now()
		}
		l.pumpCommands()
		if l.mgr.Connected() {
			metrics.Connected.WithLabelValues(l.name).Set(1)
			if err := l.cycle(); err != nil {
				l.shutdown()
				return errors.Join(suture.ErrTerminateSupervisorTree, err)
			}
		} else {
			metrics.Connected.WithLabelValues(l.name).Set(0)
		}

		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		case <-time.After(l.cfg.IdleSleep):
		}
	}
}

// cycle runs one connected pass. Its only error is a fatal sink error;
// transport trouble is absorbed into failure accounting.
func (l *Loop) cycle() error {
	conn := l.mgr.Conn()
	now := l.now()

	if p, ok := l.dec.(decode.Poller); ok {
		if err := p.Poll(conn, now); err != nil {
			l.fail(err, "poll")
			return nil
		}
	}

	// Drain everything already waiting, keeping only the newest valid
	// record. High-rate sources must not build a backlog; the cap stops
	// a flooding device from starving the rest of the cycle.
	var latest decode.Record
	read := 0
	for read < maxDrainFrames {
		line, err := conn.ReadLine(0)
		if err != nil {
			if !errors.Is(err, transport.ErrTimeout) {
				l.fail(err, "drain read")
			}
			break
		}
		read++
		if rec, ok := l.decodeLine(line, now); ok {
			latest = rec
		}
	}

	// A connected instrument that says nothing for too long gets one
	// blocking read. An empty window is not a fault: slow pollers emit
	// at their own cadence, and the probe exists to pull data from a
	// quiet-but-healthy device, not to punish one.
	if read == 0 && now.Sub(l.lastData) > l.cfg.StaleProbe {
		line, err := conn.ReadLine(l.cfg.ProbeTimeout)
		switch {
		case errors.Is(err, transport.ErrTimeout):
			logging.Debug().Str("instrument", l.name).Msg("liveness probe came back empty")
		case err != nil:
			l.fail(err, "liveness probe")
			return nil
		default:
			if rec, ok := l.decodeLine(line, now); ok {
				latest = rec
			}
		}
	}

	if latest == nil {
		return nil
	}
	if err := l.out.Append(latest); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	metrics.RecordsAppended.WithLabelValues(l.name).Inc()
	l.mgr.RecordSuccess()
	l.lastData = now
	return nil
}

// decodeLine decodes and validates one frame. Rejections and invalid
// records are dropped without touching failure accounting.
func (l *Loop) decodeLine(line string, now time.Time) (decode.Record, bool) {
	rec, err := l.dec.Decode(line, now)
	if err != nil {
		if errors.Is(err, decode.ErrReject) {
			metrics.FramesRejected.WithLabelValues(l.name).Inc()
			logging.Debug().Str("instrument", l.name).Err(err).Msg("frame rejected")
			return nil, false
		}
		l.fail(err, "decode")
		return nil, false
	}
	if !l.dec.Validate(rec) {
		metrics.FramesRejected.WithLabelValues(l.name).Inc()
		logging.Debug().Str("instrument", l.name).Int("fields", len(rec)).Msg("record failed validation")
		return nil, false
	}
	return rec, true
}

// pumpCommands forwards queued control commands to the transport.
// Commands that arrive while disconnected are dropped, not queued for a
// reconnect: a stale power command is worse than a lost one.
func (l *Loop) pumpCommands() {
	for {
		select {
		case cmd := <-l.cmds:
			conn := l.mgr.Conn()
			if conn == nil {
				logging.Warn().Str("instrument", l.name).
					Msg("control command dropped, transport down")
				continue
			}
			if err := conn.Write(cmd); err != nil {
				l.fail(err, "control write")
			}
		default:
			return
		}
	}
}

// fail feeds the failure accounting; the manager force-closes the
// transport when the streak hits its threshold.
func (l *Loop) fail(err error, op string) {
	metrics.ReadFailures.WithLabelValues(l.name).Inc()
	logging.Warn().Str("instrument", l.name).Str("op", op).Err(err).Msg("acquisition error")
	if l.mgr.RecordFailure() {
		metrics.Connected.WithLabelValues(l.name).Set(0)
	}
}

func (l *Loop) shutdown() {
	l.mgr.Close()
	if err := l.out.Close(); err != nil {
		logging.Warn().Str("instrument", l.name).Err(err).Msg("sink close failed")
	}
	logging.Info().Str("instrument", l.name).Msg("acquisition loop stopped")
}
