// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package sink writes telemetry records to append-only CSV files.
//
// A sink is opened once per process lifetime with a timestamped
// filename, writes its header exactly once at create, and flushes after
// every row so downstream tailers see complete rows with minimal
// latency. Sinks never rotate; rotation is a process restart.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skysonde/skysonde/internal/logging"
)

// fileStamp names sink files by their creation instant.
const fileStamp = "20060102_150405"

// Sink is an append-only CSV writer for one telemetry stream.
type Sink struct {
	path string
	file *os.File
	csv  *csv.Writer
}

// New creates the sink directory, opens a fresh timestamped CSV file
// under it, and writes the header row.
func New(dir, name string, header []string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sink directory %s: %w", dir, err)
	}
	filename := fmt.Sprintf("%s_data_%s.csv", name, time.Now().Format(fileStamp))
	path := filepath.Join(dir, filename)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}

	s := &Sink{path: path, file: file, csv: csv.NewWriter(file)}
	if err := s.Append(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("write sink header: %w", err)
	}

	logging.Info().Str("path", path).Msg("sink opened")
	return s, nil
}

// Path returns the sink file's location.
func (s *Sink) Path() string { return s.path }

// Append writes one complete row and flushes it to the file.
func (s *Sink) Append(row []string) error {
	if err := s.csv.Write(row); err != nil {
		return fmt.Errorf("write row to %s: %w", s.path, err)
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
