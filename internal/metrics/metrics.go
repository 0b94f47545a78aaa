// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package metrics defines the Prometheus collectors shared across the
// acquisition, fan-in, and supervisor processes. Collectors register on
// the default registry; the ops endpoint exposes them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "skysonde"

var (
	// RecordsAppended counts validated records written to a sink.
	RecordsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_appended_total",
		Help:      "Validated records appended to the instrument sink.",
	}, []string{"instrument"})

	// FramesRejected counts frames dropped as protocol noise.
	FramesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_rejected_total",
		Help:      "Frames rejected by the decoder as protocol noise.",
	}, []string{"instrument"})

	// ReadFailures counts transport read/write errors.
	ReadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_failures_total",
		Help:      "Transport read and write errors.",
	}, []string{"instrument"})

	// Connected reports whether a live transport exists (1 or 0).
	Connected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connected",
		Help:      "Whether the instrument transport is currently connected.",
	}, []string{"instrument"})

	// Reconnects counts successful connection establishments.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnects_total",
		Help:      "Successful transport connections, including the first.",
	}, []string{"instrument"})

	// MergeCycles counts fan-in output cycles per consumer mode.
	MergeCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merge_cycles_total",
		Help:      "Fan-in output cycles, including heartbeat-only ones.",
	}, []string{"mode"})

	// SourceFresh reports per-source freshness in the latest cycle.
	SourceFresh = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_fresh",
		Help:      "Whether the source produced rows in the latest fan-in cycle.",
	}, []string{"mode", "source"})

	// ChildRestarts counts supervisor restarts per child process.
	ChildRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "child_restarts_total",
		Help:      "Child processes restarted by the supervisor.",
	}, []string{"child"})

	// ChildRunning reports per-child process liveness.
	ChildRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "child_running",
		Help:      "Whether the supervised child process is currently running.",
	}, []string{"child"})
)
