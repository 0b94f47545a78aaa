// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// LiveFile publishes the latest row of a stream as a two-line CSV file
// (header plus one data row), rewritten whole on every update so
// readers always see a consistent snapshot.
type LiveFile struct {
	path   string
	header []string
}

// NewLiveFile prepares a live snapshot file. Nothing is written until
// the first Publish.
func NewLiveFile(dir, filename string, header []string) (*LiveFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create live file directory %s: %w", dir, err)
	}
	return &LiveFile{path: filepath.Join(dir, filename), header: header}, nil
}

// Path returns the snapshot file's location.
func (l *LiveFile) Path() string { return l.path }

// Publish replaces the file's contents with the header and row.
func (l *LiveFile) Publish(row []string) error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open live file %s: %w", l.path, err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(l.header); err == nil {
		err = w.Write(row)
	}
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("publish live file %s: %w", l.path, err)
	}
	return nil
}
