// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package decode

import (
	"strings"
	"time"

	"github.com/skysonde/skysonde/internal/config"
	"github.com/skysonde/skysonde/internal/logging"
	"github.com/skysonde/skysonde/internal/transport"
)

// POM decodes the ozone monitor. The device prints a banner and numeric
// header lines after power-up, emits one garbage row immediately after a
// connection (warm-up artifact), and speaks two wire variants: the
// realtime format is one field narrower than the logged format.
type POM struct {
	width int // data fields per record, excluding the timestamp

	headerSkips int
	skipFirst   bool
}

// pomBanner identifies the power-up banner line.
const pomBanner = "Personal Ozone Monitor"

// pomPlaceholderIdx is where realtime frames get the placeholder that
// aligns them with the wider logged format.
const pomPlaceholderIdx = 6

// maxHeaderLogged bounds how many skipped header lines are logged.
const maxHeaderLogged = 3

// NewPOM builds the ozone monitor decoder.
func NewPOM(cfg config.InstrumentConfig) *POM {
	return &POM{width: len(cfg.Columns) - 1, skipFirst: true}
}

// OnConnect arms the first-row discard for the new connection. The
// device needs no init commands.
func (d *POM) OnConnect(_ transport.Conn) error {
	d.skipFirst = true
	d.headerSkips = 0
	return nil
}

// Decode drops banner/header lines and the first post-connect data row,
// normalizes both wire variants to the logged width, and prepends the
// timestamp. Over-wide frames are rejected.
func (d *POM) Decode(line string, now time.Time) (Record, error) {
	s := strings.TrimSpace(line)

	if strings.Contains(s, pomBanner) || isAllDigits(s) {
		d.headerSkips++
		if d.headerSkips <= maxHeaderLogged {
			logging.Debug().Str("line", s).Msg("skipping ozone monitor header")
		}
		return nil, reject("header line")
	}

	fields := strings.Split(s, ",")
	if len(fields) > d.width {
		return nil, reject("over-wide frame (%d fields, max %d)", len(fields), d.width)
	}

	if d.skipFirst {
		// First row after connect carries warm-up garbage.
		d.skipFirst = false
		return nil, reject("first post-connect row")
	}

	// Realtime frames lack one field of the logged format; insert a
	// placeholder so both variants share the sink schema.
	if len(fields) == d.width-1 {
		idx := pomPlaceholderIdx
		if idx > len(fields) {
			idx = len(fields)
		}
		fields = append(fields[:idx], append([]string{""}, fields[idx:]...)...)
	}

	rec := make(Record, 0, len(fields)+1)
	rec = append(rec, Timestamp(now))
	rec = append(rec, fields...)
	return rec, nil
}

// Validate requires the exact logged-format width.
func (d *POM) Validate(rec Record) bool { return len(rec) == d.width+1 }

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
