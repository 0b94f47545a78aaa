// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package decode turns raw instrument frames into schema-shaped records.
//
// Each instrument type registers a Decoder strategy in the type-tag
// lookup table. Decoders are pure line-to-record functions; the two
// optional capabilities (ConnectHook, Poller) cover protocols that need
// post-connect commands or decoder-initiated polling.
//
// Rejection is not failure: banner lines, command echoes, and warm-up
// garbage are expected protocol noise. Decoders reject them with
// ErrReject and the acquisition loop drops them without touching the
// connection-failure accounting.
package decode

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skysonde/skysonde/internal/config"
	"github.com/skysonde/skysonde/internal/transport"
)

// TimeFormat is the canonical timestamp written as every record's first
// field and expected in every sink's first column.
const TimeFormat = "2006-01-02 15:04:05"

// ErrReject marks a frame as protocol noise to drop silently.
var ErrReject = errors.New("frame rejected")

// Record is an ordered field sequence matching the instrument schema.
// Record[0] is always the canonical timestamp.
type Record []string

// Decoder converts one raw frame into a record, or rejects it.
type Decoder interface {
	// Decode parses line. now supplies the wall clock so decoders stay
	// deterministic under test. Rejections wrap ErrReject.
	Decode(line string, now time.Time) (Record, error)

	// Validate reports whether a decoded record is acceptable for the
	// sink. The default policy is non-empty with more than one field;
	// fixed-width protocols require their exact width.
	Validate(rec Record) bool
}

// ConnectHook is implemented by decoders that need init commands (or a
// state reset) after each successful connection. It runs exactly once
// per connection.
type ConnectHook interface {
	OnConnect(conn transport.Conn) error
}

// Poller is implemented by decoders that must solicit data. Poll runs
// every acquisition cycle and throttles itself internally; its cadence
// is independent of the outer read loop.
type Poller interface {
	Poll(conn transport.Conn, now time.Time) error
}

// factories is the type-tag lookup table.
var factories = map[string]func(cfg config.InstrumentConfig) Decoder{
	"generic":       func(cfg config.InstrumentConfig) Decoder { return &Generic{} },
	"imet":          func(cfg config.InstrumentConfig) Decoder { return NewIMet(cfg) },
	"pom":           func(cfg config.InstrumentConfig) Decoder { return NewPOM(cfg) },
	"trisonica":     func(cfg config.InstrumentConfig) Decoder { return &TriSonica{} },
	"partector2pro": func(cfg config.InstrumentConfig) Decoder { return NewPartector(cfg) },
	"ma200":         func(cfg config.InstrumentConfig) Decoder { return NewMA200(cfg) },
	"popsudp":       func(cfg config.InstrumentConfig) Decoder { return NewPOPSUDP(cfg) },
	"actuator":      func(cfg config.InstrumentConfig) Decoder { return NewActuator(cfg) },
}

// New builds the decoder for the instrument's type tag.
func New(cfg config.InstrumentConfig) (Decoder, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown instrument type %q (known: %v)", cfg.Type, Types())
	}
	return factory(cfg), nil
}

// Types returns the registered type tags in stable order, for error
// messages.
func Types() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Timestamp formats now in the canonical sink format.
func Timestamp(now time.Time) string { return now.Format(TimeFormat) }

// defaultValid is the base validation policy: at least a timestamp plus
// one data field.
func defaultValid(rec Record) bool { return len(rec) > 1 }

// reject wraps ErrReject with a reason for debug logging.
func reject(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrReject}, args...)...)
}

// coerceFloat reformats s through float parsing when possible, leaving
// non-numeric fields untouched.
func coerceFloat(s string) string {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return s
}

// Generic is the fallback comma-separated decoder.
type Generic struct{}

// Decode splits on commas and prepends the timestamp. Frames with fewer
// than two fields are rejected.
func (Generic) Decode(line string, now time.Time) (Record, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < 2 {
		return nil, reject("short frame (%d fields)", len(fields))
	}
	rec := make(Record, 0, len(fields)+1)
	rec = append(rec, Timestamp(now))
	rec = append(rec, fields...)
	return rec, nil
}

// Validate applies the default policy.
func (Generic) Validate(rec Record) bool { return defaultValid(rec) }
