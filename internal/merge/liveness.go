// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package merge

import (
	"context"
	"sync"
	"time"

	"github.com/skysonde/skysonde/internal/logging"
)

// sourceState is the liveness verdict for one source.
type sourceState int

const (
	// sourceLive means rows arrived within the stale threshold.
	sourceLive sourceState = iota
	// sourceStale means the source is silent but its latched values
	// are still trustworthy.
	sourceStale
	// sourceDead means the silence outlasted the dead threshold and
	// the latched values must be dropped.
	sourceDead
)

// livenessTracker watches per-source silence. The projector's cycle
// loop writes arrival times; the watcher goroutine only reads them to
// log transitions, so both sides take the mutex.
type livenessTracker struct {
	staleAfter time.Duration
	deadAfter  time.Duration

	mu     sync.Mutex
	last   map[string]time.Time
	warned map[string]sourceState
}

func newLivenessTracker(staleAfter, deadAfter time.Duration) *livenessTracker {
	return &livenessTracker{
		staleAfter: staleAfter,
		deadAfter:  deadAfter,
		last:       make(map[string]time.Time),
		warned:     make(map[string]sourceState),
	}
}

// touch records a fresh arrival.
func (t *livenessTracker) touch(source string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[source] = now
	t.warned[source] = sourceLive
}

// state classifies the source's current silence. Sources that never
// produced anything are dead: there is nothing to latch.
func (t *livenessTracker) state(source string, now time.Time) sourceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.last[source]
	if !ok {
		return sourceDead
	}
	silence := now.Sub(last)
	switch {
	case silence >= t.deadAfter:
		return sourceDead
	case silence >= t.staleAfter:
		return sourceStale
	default:
		return sourceLive
	}
}

// watch logs stale/dead transitions once per episode. It runs as a
// goroutine beside the projector's cycle loop.
func (t *livenessTracker) watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			t.report(now)
		}
	}
}

func (t *livenessTracker) report(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for source, last := range t.last {
		silence := now.Sub(last)
		var state sourceState
		switch {
		case silence >= t.deadAfter:
			state = sourceDead
		case silence >= t.staleAfter:
			state = sourceStale
		default:
			state = sourceLive
		}
		if state == t.warned[source] {
			continue
		}
		t.warned[source] = state
		switch state {
		case sourceStale:
			logging.Warn().Str("source", source).Dur("silence", silence).
				Msg("source stale, holding last values")
		case sourceDead:
			logging.Warn().Str("source", source).Dur("silence", silence).
				Msg("source dead, dropping last values")
		case sourceLive:
			logging.Info().Str("source", source).Msg("source recovered")
		}
	}
}
