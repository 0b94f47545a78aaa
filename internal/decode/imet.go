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

// IMet decodes the meteorological probe's comma-separated frames.
//
// The probe emits centidegrees/centihectopascals in two fields and an
// embedded GPS clock two hours behind local time; both are normalized
// here so the sink holds display-ready values.
type IMet struct {
	width int // data fields per record, excluding the timestamp
}

// NewIMet builds the probe decoder from the configured schema width.
func NewIMet(cfg config.InstrumentConfig) *IMet {
	return &IMet{width: len(cfg.Columns) - 1}
}

const (
	imetScaleDiv    = 100
	imetClockShift  = 2 * time.Hour
	imetClockFormat = "15:04:05"
)

// Decode strips the frame's leading separator, rescales the two
// temperature fields, shifts the embedded clock, slices to the
// configured width, and prepends a fresh timestamp.
func (d *IMet) Decode(line string, now time.Time) (Record, error) {
	s := strings.TrimPrefix(strings.TrimSpace(line), ",")
	fields := strings.Split(s, ",")
	if len(fields) < d.width {
		return nil, reject("short frame (%d fields, need %d)", len(fields), d.width)
	}

	for _, i := range []int{0, 2} {
		if i >= len(fields) {
			break
		}
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, reject("non-numeric field %d: %q", i, fields[i])
		}
		fields[i] = strconv.FormatFloat(f/imetScaleDiv, 'g', -1, 64)
	}

	if len(fields) > 4 && strings.Contains(fields[4], ":") {
		if clock, err := time.Parse(imetClockFormat, fields[4]); err == nil {
			fields[4] = clock.Add(imetClockShift).Format(imetClockFormat)
		}
	}

	rec := make(Record, 0, d.width+1)
	rec = append(rec, Timestamp(now))
	rec = append(rec, fields[:d.width]...)
	return rec, nil
}

// Validate requires the exact configured width.
func (d *IMet) Validate(rec Record) bool { return len(rec) == d.width+1 }
