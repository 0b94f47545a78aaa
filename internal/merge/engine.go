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

// mergeDir holds the composite output beside the instrument sinks.
const mergeDir = "output/merge"

// Engine joins every instrument stream into one composite CSV on a
// fixed cadence. A source that produced no rows this cycle contributes
// blanks: the composite row is a strict point-in-time snapshot, never a
// mix of current and remembered values.
type Engine struct {
	interval time.Duration
	sources  []*Source
	out      *sink.Sink

	now func() time.Time
}

// NewEngine builds the merge engine from configuration.
func NewEngine(cfg *config.Config, store tail.Store) (*Engine, error) {
	sources := BuildSources(cfg, "merge", store)
	out, err := sink.New(mergeDir, "merge", compositeHeader(sources))
	if err != nil {
		return nil, fmt.Errorf("merge sink: %w", err)
	}
	return newEngine(cfg.Merger.Interval(), sources, out), nil
}

func newEngine(interval time.Duration, sources []*Source, out *sink.Sink) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{interval: interval, sources: sources, out: out, now: time.Now}
}

// compositeHeader is merge_timestamp plus every source column prefixed
// with its instrument name.
func compositeHeader(sources []*Source) []string {
	header := []string{"merge_timestamp"}
	for _, s := range sources {
		for _, col := range s.Columns {
			header = append(header, s.Name+"_"+col)
		}
	}
	return header
}

// String names the service in supervision events.
func (e *Engine) String() string { return "merge" }

// Serve implements suture.Service: one composite row per tick until the
// context is canceled. A sink error terminates the tree; the process
// supervisor restarts the process with a fresh output file.
func (e *Engine) Serve(ctx context.Context) error {
	logging.Info().Int("sources", len(e.sources)).Dur("interval", e.interval).
		Msg("merge engine starting")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := e.out.Close(); err != nil {
				logging.Warn().Err(err).Msg("merge sink close failed")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := e.cycle(e.now()); err != nil {
				e.out.Close()
				return errors.Join(suture.ErrTerminateSupervisorTree, err)
			}
		}
	}
}

// cycle emits one composite row. It fires even when every source is
// quiet, so consumers get a steady heartbeat.
func (e *Engine) cycle(now time.Time) error {
	row := []string{decode.Timestamp(now)}
	for _, s := range e.sources {
		latest, fresh := s.Poll()
		metrics.SourceFresh.WithLabelValues("merge", s.Name).Set(boolGauge(fresh))
		if fresh {
			row = append(row, fitRow(latest, len(s.Columns))...)
		} else {
			row = append(row, blankRow(len(s.Columns))...)
		}
	}

	if err := e.out.Append(row); err != nil {
		return fmt.Errorf("append composite row: %w", err)
	}
	metrics.MergeCycles.WithLabelValues("merge").Inc()
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
