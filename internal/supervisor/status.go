// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package supervisor

import (
	"os"
	"path/filepath"
	"time"

	"github.com/skysonde/skysonde/internal/logging"
)

// Status is the aggregated pipeline report served by the ops endpoint
// and logged periodically.
type Status struct {
	RunID     string              `json:"run_id"`
	Timestamp time.Time           `json:"timestamp"`
	BaseDir   string              `json:"base_dir"`
	Children  []ChildStatus       `json:"children"`
	Liveness  map[string]Liveness `json:"liveness"`
}

// Liveness is the file-age check for one instrument: an instrument
// whose newest sink file was modified recently is producing data,
// whatever its process state claims.
type Liveness struct {
	Fresh   bool    `json:"fresh"`
	AgeS    float64 `json:"age_s"`
	File    string  `json:"file,omitempty"`
	Missing bool    `json:"missing,omitempty"`
}

// Status snapshots every child plus per-instrument sink freshness.
func (s *Supervisor) Status() Status {
	wd, _ := os.Getwd()
	st := Status{
		RunID:     s.runID,
		Timestamp: time.Now(),
		BaseDir:   wd,
		Liveness:  s.fileLiveness(),
	}
	for _, c := range s.children {
		st.Children = append(st.Children, c.status())
	}
	return st
}

// fileLiveness checks each enabled instrument's newest sink file
// against the configured freshness window.
func (s *Supervisor) fileLiveness() map[string]Liveness {
	window := s.cfg.Supervisor.FreshnessAge()
	if window <= 0 {
		window = 30 * time.Second
	}

	out := make(map[string]Liveness)
	for _, name := range s.cfg.EnabledInstruments() {
		ic := s.cfg.Instruments[name]
		newest, mod := newestMatch(ic.SinkPattern(name))
		if newest == "" {
			out[name] = Liveness{Missing: true}
			continue
		}
		age := time.Since(mod)
		out[name] = Liveness{
			Fresh: age <= window,
			AgeS:  age.Seconds(),
			File:  newest,
		}
	}
	return out
}

// newestMatch returns the most recently modified file matching pattern.
func newestMatch(pattern string) (string, time.Time) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", time.Time{}
	}
	var newest string
	var newestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = m, info.ModTime()
		}
	}
	return newest, newestMod
}

// logStatus writes the periodic summary.
func (s *Supervisor) logStatus() {
	st := s.Status()
	running := 0
	for _, c := range st.Children {
		if c.Running {
			running++
		}
	}
	logging.Info().
		Str("base_dir", st.BaseDir).
		Int("running", running).
		Int("children", len(st.Children)).
		Msg("pipeline status")
	for _, c := range st.Children {
		logging.Info().
			Str("child", c.Name).
			Bool("running", c.Running).
			Int("pid", c.PID).
			Int("last_exit_code", c.LastExit).
			Int("restarts", c.Restarts).
			Msg("child status")
	}
}
