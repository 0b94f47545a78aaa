// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package decode

import (
	"strings"
	"time"

	"github.com/skysonde/skysonde/internal/config"
)

// POPSUDP decodes particle counter datagrams received over UDP. Each
// datagram carries one comma-separated frame; a configurable number of
// leading fields (device preamble) is discarded, and the remainder is
// normalized to the configured column width so a short or chatty
// firmware revision still lines up with the sink header.
type POPSUDP struct {
	width int
	skip  int
}

// NewPOPSUDP builds the particle counter decoder from configuration.
func NewPOPSUDP(cfg config.InstrumentConfig) *POPSUDP {
	return &POPSUDP{
		width: len(cfg.Columns) - 1,
		skip:  cfg.SkipFields,
	}
}

// Decode splits the datagram, drops the leading skip fields, and pads
// or truncates to the configured width.
func (d *POPSUDP) Decode(line string, now time.Time) (Record, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, reject("blank datagram")
	}

	fields := strings.Split(s, ",")
	if len(fields) <= d.skip {
		return nil, reject("datagram too short: %d fields, %d skipped", len(fields), d.skip)
	}
	fields = fields[d.skip:]

	rec := make(Record, 0, d.width+1)
	rec = append(rec, Timestamp(now))
	for i := 0; i < d.width; i++ {
		if i < len(fields) {
			rec = append(rec, strings.TrimSpace(fields[i]))
		} else {
			rec = append(rec, "")
		}
	}
	return rec, nil
}

// Validate requires the exact configured width.
func (d *POPSUDP) Validate(rec Record) bool { return len(rec) == d.width+1 }
