// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package tail reads instrument sink files incrementally by byte
// offset. It is the read side of the filesystem IPC between acquisition
// processes and the fan-in consumers: append-only CSV on one side, a
// per-source cursor on the other.
package tail

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skysonde/skysonde/internal/logging"
)

// Tailer follows one instrument's sink. Each Poll discovers the newest
// file matching the source's pattern and returns every complete row
// appended since the previous Poll.
type Tailer struct {
	consumer string
	source   string
	pattern  string

	cursor Cursor
	store  Store
}

// NewTailer creates a tailer for one source. store persists the cursor;
// use NewMemoryStore for process-lifetime tracking.
func NewTailer(consumer, source, pattern string, store Store) *Tailer {
	t := &Tailer{consumer: consumer, source: source, pattern: pattern, store: store}
	if c, ok := store.Load(consumer, source); ok {
		t.cursor = c
		logging.Info().Str("consumer", consumer).Str("source", source).
			Str("file", c.File).Int64("offset", c.Offset).Msg("resuming from stored cursor")
	}
	return t
}

// Source returns the tailed instrument's name.
func (t *Tailer) Source() string { return t.source }

// Poll returns the rows appended since the last call. A nil slice with
// no error means nothing new this cycle.
func (t *Tailer) Poll() ([][]string, error) {
	path, size, err := t.discover()
	if err != nil || path == "" {
		return nil, err
	}

	// A newer timestamped file silently supersedes the old one;
	// an offset beyond EOF means the file was truncated underneath us.
	if path != t.cursor.File {
		t.cursor = Cursor{File: path}
	}
	if t.cursor.Offset > size {
		logging.Warn().Str("source", t.source).Str("file", path).
			Int64("offset", t.cursor.Offset).Int64("size", size).
			Msg("sink truncated, rewinding")
		t.cursor.Offset = 0
	}
	if t.cursor.Offset == size {
		return nil, nil
	}

	rows, advanced, err := readRows(path, t.cursor.Offset)
	if err != nil {
		return nil, err
	}
	if t.cursor.Offset == 0 && len(rows) > 0 {
		rows = rows[1:] // header row
	}
	t.cursor.Offset += advanced

	if err := t.store.Save(t.consumer, t.source, t.cursor); err != nil {
		logging.Warn().Str("source", t.source).Err(err).Msg("cursor save failed")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows, nil
}

// discover finds the most recently modified file matching the pattern.
func (t *Tailer) discover() (string, int64, error) {
	matches, err := filepath.Glob(t.pattern)
	if err != nil {
		return "", 0, fmt.Errorf("bad sink pattern %q: %w", t.pattern, err)
	}

	var newest string
	var newestMod int64
	var size int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest, newestMod, size = m, mod, info.Size()
		}
	}
	return newest, size, nil
}

// readRows parses the complete CSV rows between offset and EOF,
// returning them and the byte count they occupy. A trailing partial
// line (a row mid-append) is left for the next poll.
func readRows(path string, offset int64) ([][]string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read sink %s: %w", path, err)
	}
	if offset > int64(len(data)) {
		return nil, 0, nil
	}
	data = data[offset:]

	// Only whole lines; the writer flushes row-at-a-time but a read can
	// still race the tail of an append.
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, 0, nil
	}
	chunk := data[:end+1]

	r := csv.NewReader(strings.NewReader(string(chunk)))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, 0, fmt.Errorf("parse sink %s: %w", path, err)
	}
	return rows, int64(len(chunk)), nil
}
