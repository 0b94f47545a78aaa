// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package sink

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestSink(t *testing.T) {
	header := []string{"Timestamp", "a", "b"}

	t.Run("header once then rows", func(t *testing.T) {
		dir := t.TempDir()
		s, err := New(dir, "imet", header)
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()

		if err := s.Append([]string{"t1", "1", "2"}); err != nil {
			t.Fatal(err)
		}
		if err := s.Append([]string{"t2", "3", "4"}); err != nil {
			t.Fatal(err)
		}

		rows := readAll(t, s.Path())
		if len(rows) != 3 {
			t.Fatalf("rows = %d, want header + 2", len(rows))
		}
		if rows[0][0] != "Timestamp" || rows[2][2] != "4" {
			t.Errorf("unexpected contents: %v", rows)
		}
	})

	t.Run("rows visible before close", func(t *testing.T) {
		dir := t.TempDir()
		s, err := New(dir, "pops", header)
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()

		if err := s.Append([]string{"t1", "1", "2"}); err != nil {
			t.Fatal(err)
		}
		// Flushed per row; a tailer must see the row immediately.
		if rows := readAll(t, s.Path()); len(rows) != 2 {
			t.Errorf("rows = %d, want 2 before Close", len(rows))
		}
	})

	t.Run("filename carries instrument and stamp", func(t *testing.T) {
		dir := t.TempDir()
		s, err := New(dir, "imet", header)
		if err != nil {
			t.Fatal(err)
		}
		s.Close()

		base := filepath.Base(s.Path())
		if !strings.HasPrefix(base, "imet_data_") || !strings.HasSuffix(base, ".csv") {
			t.Errorf("filename = %q", base)
		}
	})
}

func TestLiveFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLiveFile(dir, "vitals_live.csv", []string{"Timestamp", "x"})
	if err != nil {
		t.Fatal(err)
	}

	if err := l.Publish([]string{"t1", "1"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Publish([]string{"t2", "2"}); err != nil {
		t.Fatal(err)
	}

	rows := readAll(t, l.Path())
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + latest row only", len(rows))
	}
	if rows[1][0] != "t2" {
		t.Errorf("latest row = %v, want t2", rows[1])
	}
}
