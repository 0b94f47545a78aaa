// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package decode

import (
	"fmt"
	"strings"
	"time"

	"github.com/skysonde/skysonde/internal/config"
	"github.com/skysonde/skysonde/internal/transport"
)

// Partector decodes the particle counter's tab-separated stream. The
// device streams only after receiving a mode command, which OnConnect
// sends once per connection; its command echoes share the data channel
// and are rejected by their reserved prefix.
type Partector struct {
	mode int
}

// partectorEchoPrefix marks command echoes on the data channel.
const partectorEchoPrefix = "X"

// NewPartector builds the particle counter decoder. mode selects the
// streaming rate/format (1 = standard 1 Hz, 6 = size distribution).
func NewPartector(cfg config.InstrumentConfig) *Partector {
	mode := cfg.Mode
	if mode == 0 {
		mode = 1
	}
	return &Partector{mode: mode}
}

// OnConnect sends the streaming-start command and drains whatever the
// device buffered before the mode took effect.
func (d *Partector) OnConnect(conn transport.Conn) error {
	cmd := fmt.Sprintf("X000%d!\r\n", d.mode)
	if err := conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("send start command: %w", err)
	}
	// Discard pre-command stream remnants.
	for {
		if _, err := conn.ReadLine(0); err != nil {
			return nil
		}
	}
}

// Decode rejects echoes and blanks, splits on tabs, drops empty cells,
// and numerically coerces each field.
func (d *Partector) Decode(line string, now time.Time) (Record, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, reject("blank line")
	}
	if strings.HasPrefix(s, partectorEchoPrefix) {
		return nil, reject("command echo")
	}

	raw := strings.Split(s, "\t")
	rec := make(Record, 0, len(raw)+1)
	rec = append(rec, Timestamp(now))
	for _, f := range raw {
		if f == "" {
			continue
		}
		rec = append(rec, coerceFloat(f))
	}
	return rec, nil
}

// Validate applies the default policy: the two streaming modes have
// different widths, so exact-width validation would reject mode changes.
func (d *Partector) Validate(rec Record) bool { return defaultValid(rec) }
