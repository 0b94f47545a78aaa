// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/skysonde/skysonde/internal/config"
)

func testConfig() *config.Config {
	inst := func(startup float64) config.InstrumentConfig {
		return config.InstrumentConfig{
			Type:          "generic",
			Enabled:       true,
			StartupDelayS: startup,
			Columns:       []string{"Timestamp", "a"},
		}
	}
	return &config.Config{
		Instruments: map[string]config.InstrumentConfig{
			"one":   inst(0.01),
			"two":   inst(0.01),
			"three": inst(0.01),
		},
		Merger: config.MergerConfig{Enabled: true, IntervalS: 1, StartupDelayS: 0.02},
		Supervisor: config.SupervisorConfig{
			MonitorPollS:    0.05,
			GracePeriodS:    1,
			InstrumentOrder: []string{"one", "two", "three"},
		},
	}
}

// stubFactory runs throwaway shell commands instead of re-execing the
// binary: long sleeps for healthy children, an immediate exit for the
// scripted failure.
type stubFactory struct {
	mu     sync.Mutex
	starts map[string]int
	fail   map[string]int // name -> number of leading starts that exit 1
}

func newStubFactory(fail map[string]int) *stubFactory {
	return &stubFactory{starts: make(map[string]int), fail: fail}
}

func (f *stubFactory) command(name string, _ []string) *exec.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts[name]++
	if f.starts[name] <= f.fail[name] {
		return exec.Command("sh", "-c", "exit 1")
	}
	return exec.Command("sleep", "60")
}

func (f *stubFactory) startCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[name]
}

func find(t *testing.T, s *Supervisor, name string) *child {
	t.Helper()
	for _, c := range s.children {
		if c.name == name {
			return c
		}
	}
	t.Fatalf("no child %q", name)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSupervisorRestartsOnlyExitedChild(t *testing.T) {
	s, err := New(testConfig(), "skysonde.json")
	if err != nil {
		t.Fatal(err)
	}
	factory := newStubFactory(map[string]int{"two": 1})
	s.SetCommandFactory(factory.command)

	if err := s.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.StopAll()

	two := find(t, s, "two")
	waitFor(t, "scripted failure to exit", func() bool { return !two.alive() })

	s.restartExited()
	waitFor(t, "restart of the failed child", two.alive)

	if st := two.status(); st.Restarts != 1 || st.LastExit != 1 {
		t.Errorf("two status = %+v, want 1 restart after exit code 1", st)
	}
	for _, name := range []string{"one", "three", "merge"} {
		c := find(t, s, name)
		if st := c.status(); st.Restarts != 0 || !st.Running {
			t.Errorf("%s status = %+v, want untouched and running", name, st)
		}
		if n := factory.startCount(name); n != 1 {
			t.Errorf("%s started %d times, want 1", name, n)
		}
	}
}

func TestSupervisorStartOrder(t *testing.T) {
	s, err := New(testConfig(), "skysonde.json")
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []string
	s.SetCommandFactory(func(name string, _ []string) *exec.Cmd {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return exec.Command("sleep", "60")
	})

	if err := s.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.StopAll()

	want := []string{"one", "two", "three", "merge"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("started %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("start order %v, want %v", order, want)
		}
	}
}

func TestSupervisorStopAll(t *testing.T) {
	s, err := New(testConfig(), "skysonde.json")
	if err != nil {
		t.Fatal(err)
	}
	s.SetCommandFactory(newStubFactory(nil).command)

	if err := s.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.StopAll()

	for _, c := range s.children {
		waitFor(t, c.name+" to stop", func() bool { return !c.alive() })
	}
}

func TestFileLiveness(t *testing.T) {
	dir := t.TempDir()
	fresh := filepath.Join(dir, "imet_data_1.csv")
	if err := os.WriteFile(fresh, []byte("Timestamp,a\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.Instruments = map[string]config.InstrumentConfig{
		"imet": {
			Type: "imet", Enabled: true,
			Columns:           []string{"Timestamp", "a"},
			OutputFilePattern: filepath.Join(dir, "imet_data_*.csv"),
		},
		"ghost": {
			Type: "generic", Enabled: true,
			Columns:           []string{"Timestamp", "a"},
			OutputFilePattern: filepath.Join(dir, "ghost_data_*.csv"),
		},
	}
	cfg.Supervisor.FreshnessAgeS = 30
	cfg.Supervisor.InstrumentOrder = nil

	s, err := New(cfg, "skysonde.json")
	if err != nil {
		t.Fatal(err)
	}

	live := s.fileLiveness()
	if got := live["imet"]; !got.Fresh || got.Missing {
		t.Errorf("imet liveness = %+v, want fresh", got)
	}
	if got := live["ghost"]; !got.Missing {
		t.Errorf("ghost liveness = %+v, want missing", got)
	}
}
