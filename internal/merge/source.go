// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package merge implements the fan-in consumers: the composite merge
// engine and the vitals projector. Both tail the instrument sinks on a
// fixed cadence and differ only in their staleness policy — merge
// blanks a quiet source, vitals latches its last known values.
package merge

import (
	"github.com/skysonde/skysonde/internal/config"
	"github.com/skysonde/skysonde/internal/logging"
	"github.com/skysonde/skysonde/internal/tail"
)

// Source is one tailed instrument sink.
type Source struct {
	Name    string
	Columns []string

	tailer *tail.Tailer
}

// BuildSources creates a tailer per enabled instrument, in the
// configured bring-up order so composite columns are stable.
func BuildSources(cfg *config.Config, consumer string, store tail.Store) []*Source {
	var sources []*Source
	for _, name := range cfg.EnabledInstruments() {
		ic := cfg.Instruments[name]
		sources = append(sources, &Source{
			Name:    name,
			Columns: ic.Columns,
			tailer:  tail.NewTailer(consumer, name, ic.SinkPattern(name), store),
		})
	}
	return sources
}

// Poll returns the newest row appended since the last cycle and whether
// the source was fresh. Intermediate rows are dropped from the merge;
// they remain in the instrument's own sink.
func (s *Source) Poll() ([]string, bool) {
	rows, err := s.tailer.Poll()
	if err != nil {
		logging.Warn().Str("source", s.Name).Err(err).Msg("tail poll failed")
		return nil, false
	}
	if len(rows) == 0 {
		return nil, false
	}
	return rows[len(rows)-1], true
}

// fitRow pads or truncates row to width so a misbehaving source cannot
// shift every column to its right.
func fitRow(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

// blankRow is the stale source's contribution.
func blankRow(width int) []string { return make([]string, width) }
