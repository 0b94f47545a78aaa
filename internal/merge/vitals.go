// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/skysonde/skysonde/internal/config"
	"github.com/skysonde/skysonde/internal/decode"
	"github.com/skysonde/skysonde/internal/logging"
	"github.com/skysonde/skysonde/internal/metrics"
	"github.com/skysonde/skysonde/internal/sink"
	"github.com/skysonde/skysonde/internal/tail"
)

// vitalsDir holds the vitals history and live snapshot.
const vitalsDir = "output/vitals"

// projection maps one source's raw columns onto display aliases.
type projection struct {
	source  *Source
	indices []int
	aliases []string
}

// Projector publishes the curated flight-vitals view: a small aliased
// column subset per instrument, with stale sources holding their last
// known values until the liveness watcher declares them dead.
type Projector struct {
	interval    time.Duration
	projections []projection
	tracker     *livenessTracker

	hist *sink.Sink
	live *sink.LiveFile

	latch map[string][]string

	now func() time.Time
}

// NewProjector builds the vitals projector from configuration. Columns
// that do not exist in the instrument's schema are logged and omitted,
// never invented.
func NewProjector(cfg *config.Config, store tail.Store) (*Projector, error) {
	var projections []projection
	for _, s := range BuildSources(cfg, "vitals", store) {
		vc, ok := cfg.Vitals.Columns[s.Name]
		if !ok {
			continue
		}
		projections = append(projections, resolve(s, vc))
	}

	header := []string{"Timestamp"}
	for _, p := range projections {
		header = append(header, p.aliases...)
	}

	hist, err := sink.New(vitalsDir, "vitals", header)
	if err != nil {
		return nil, fmt.Errorf("vitals sink: %w", err)
	}
	live, err := sink.NewLiveFile(vitalsDir, "vitals_live.csv", header)
	if err != nil {
		hist.Close()
		return nil, fmt.Errorf("vitals live file: %w", err)
	}

	interval := cfg.Vitals.Interval()
	if interval <= 0 {
		interval = time.Second
	}
	return &Projector{
		interval:    interval,
		projections: projections,
		tracker:     newLivenessTracker(cfg.Vitals.StaleAfter(), cfg.Vitals.DeadAfter()),
		hist:        hist,
		live:        live,
		latch:       make(map[string][]string),
		now:         time.Now,
	}, nil
}

// resolve maps the curated column names to indices in the source's
// schema. Columns[0] is the source's own timestamp and carries no alias.
func resolve(s *Source, vc config.VitalsColumns) projection {
	byName := make(map[string]int, len(s.Columns))
	for i, col := range s.Columns {
		byName[col] = i
	}

	p := projection{source: s}
	for i, col := range vc.Columns[1:] {
		idx, ok := byName[col]
		if !ok {
			logging.Warn().Str("source", s.Name).Str("column", col).
				Msg("vitals column not in instrument schema, omitting")
			continue
		}
		p.indices = append(p.indices, idx)
		p.aliases = append(p.aliases, vc.Aliases[i])
	}
	return p
}

// String names the service in supervision events.
func (p *Projector) String() string { return "vitals" }

// Serve implements suture.Service: it runs the liveness watcher beside
// the fixed-cadence projection loop.
func (p *Projector) Serve(ctx context.Context) error {
	logging.Info().Int("sources", len(p.projections)).Dur("interval", p.interval).
		Msg("vitals projector starting")

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go p.tracker.watch(watchCtx, p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := p.hist.Close(); err != nil {
				logging.Warn().Err(err).Msg("vitals sink close failed")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := p.cycle(p.now()); err != nil {
				p.hist.Close()
				return errors.Join(suture.ErrTerminateSupervisorTree, err)
			}
		}
	}
}

// cycle polls every source, refreshes the latch, and writes both sinks.
// Stale sources contribute their latched values; dead ones blanks.
func (p *Projector) cycle(now time.Time) error {
	row := []string{decode.Timestamp(now)}
	for _, proj := range p.projections {
		name := proj.source.Name
		if latest, fresh := proj.source.Poll(); fresh {
			p.latch[name] = project(latest, proj.indices)
			p.tracker.touch(name, now)
		}
		metrics.SourceFresh.WithLabelValues("vitals", name).Set(boolGauge(p.tracker.state(name, now) == sourceLive))

		if p.tracker.state(name, now) == sourceDead {
			delete(p.latch, name)
		}
		if held, ok := p.latch[name]; ok {
			row = append(row, held...)
		} else {
			row = append(row, blankRow(len(proj.indices))...)
		}
	}

	if err := p.hist.Append(row); err != nil {
		return fmt.Errorf("append vitals row: %w", err)
	}
	if err := p.live.Publish(row); err != nil {
		return fmt.Errorf("publish live vitals: %w", err)
	}
	metrics.MergeCycles.WithLabelValues("vitals").Inc()
	return nil
}

// project extracts the curated fields from a raw row, blank when the
// row is unexpectedly short.
func project(row []string, indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		if idx < len(row) {
			out[i] = row[idx]
		}
	}
	return out
}
