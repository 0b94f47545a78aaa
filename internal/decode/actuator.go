// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package decode

import (
	"strconv"
	"strings"
	"time"

	"github.com/skysonde/skysonde/internal/config"
)

// Actuator decodes pipe-delimited status frames from the inlet
// actuator controller. The controller interleaves its telemetry with
// banner text, command acknowledgements, and error notices on the same
// line discipline; only frames keyed with the configured frame tag are
// data.
type Actuator struct {
	width    int
	frameKey string
}

// actuatorNoisePrefixes mark controller chatter that is never data.
var actuatorNoisePrefixes = []string{"*", "!", "OK", "ERR"}

const actuatorEmptyField = "----"

// NewActuator builds the actuator decoder from configuration.
func NewActuator(cfg config.InstrumentConfig) *Actuator {
	key := cfg.FrameKey
	if key == "" {
		key = "ACT"
	}
	return &Actuator{
		width:    len(cfg.Columns) - 1,
		frameKey: key,
	}
}

// Decode accepts keyed pipe-delimited frames and rejects everything
// else the controller prints.
func (d *Actuator) Decode(line string, now time.Time) (Record, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, reject("blank line")
	}
	for _, p := range actuatorNoisePrefixes {
		if strings.HasPrefix(s, p) {
			return nil, reject("controller chatter: %q", firstN(s, 24))
		}
	}

	fields := strings.Split(s, "|")
	if strings.TrimSpace(fields[0]) != d.frameKey {
		return nil, reject("unkeyed frame: %q", firstN(s, 24))
	}
	fields = fields[1:]
	if len(fields) != d.width {
		return nil, reject("frame width %d, want %d", len(fields), d.width)
	}

	rec := make(Record, 0, d.width+1)
	rec = append(rec, Timestamp(now))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == actuatorEmptyField {
			rec = append(rec, "")
			continue
		}
		if _, err := strconv.ParseFloat(f, 64); err != nil {
			return nil, reject("non-numeric field %q", firstN(f, 16))
		}
		rec = append(rec, coerceFloat(f))
	}
	return rec, nil
}

// Validate requires the exact configured width.
func (d *Actuator) Validate(rec Record) bool { return len(rec) == d.width+1 }

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
