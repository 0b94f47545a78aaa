// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package decode

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/skysonde/skysonde/internal/config"
	"github.com/skysonde/skysonde/internal/transport"
)

// MA200 decodes the carbon analyzer. The device only answers when
// polled, so the decoder implements Poller and issues its data-request
// command at its own throttled cadence, independent of how often the
// acquisition loop spins.
type MA200 struct {
	limiter *rate.Limiter
}

const (
	ma200PollCmd    = "dr\r"
	ma200LinePrefix = "MA200-"
)

// NewMA200 builds the carbon analyzer decoder with the configured poll
// interval as the request throttle.
func NewMA200(cfg config.InstrumentConfig) *MA200 {
	interval := cfg.PollInterval()
	if interval <= 0 {
		interval = time.Second
	}
	return &MA200{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Poll sends the data-request command when the throttle allows.
func (d *MA200) Poll(conn transport.Conn, now time.Time) error {
	if !d.limiter.AllowN(now, 1) {
		return nil
	}
	if err := conn.Write([]byte(ma200PollCmd)); err != nil {
		return fmt.Errorf("send poll command: %w", err)
	}
	return nil
}

// Decode drops blanks and command echoes and accepts only prefixed,
// comma-separated answer lines.
func (d *MA200) Decode(line string, now time.Time) (Record, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, reject("blank line")
	}
	if strings.EqualFold(s, strings.TrimSpace(ma200PollCmd)) {
		return nil, reject("command echo")
	}
	if !strings.HasPrefix(s, ma200LinePrefix) || !strings.Contains(s, ",") {
		return nil, reject("not a data line")
	}

	raw := strings.Split(s, ",")
	rec := make(Record, 0, len(raw)+1)
	rec = append(rec, Timestamp(now))
	for _, f := range raw {
		rec = append(rec, strings.TrimSpace(f))
	}
	return rec, nil
}

// Validate applies the default policy.
func (d *MA200) Validate(rec Record) bool { return defaultValid(rec) }
