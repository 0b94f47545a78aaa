// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testDoc = `{
  "path": ".",
  "logging": {"level": "info", "format": "console", "console": true, "file": false},
  "instruments": {
    "imet": {
      "type": "imet",
      "enabled": true,
      "identifiers": {"vendor_id": "10C4", "model_id": "EA60"},
      "baudrate": 57600,
      "ops_addr": "127.0.0.1:9611",
      "columns": ["Timestamp", "temp", "pressure"]
    },
    "pops": {
      "type": "popsudp",
      "enabled": true,
      "udp": {"bind": "0.0.0.0:10080"},
      "skip_fields": 3,
      "columns": ["Timestamp", "conc"]
    },
    "spare": {
      "type": "generic",
      "enabled": false,
      "columns": ["Timestamp", "raw"]
    }
  },
  "merger": {"ops_addr": "127.0.0.1:9620"},
  "vitals": {
    "enabled": true,
    "columns": {
      "imet": {"columns": ["Timestamp", "temp"], "aliases": ["iMet_Temp_C"]}
    }
  },
  "supervisor": {"monitor_poll_s": 5, "instrument_order": ["pops", "imet"]}
}`

func writeDoc(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skysonde.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("document values and instrument defaults", func(t *testing.T) {
		cfg, err := Load(writeDoc(t, testDoc))
		if err != nil {
			t.Fatal(err)
		}

		imet := cfg.Instruments["imet"]
		if imet.Baudrate != 57600 {
			t.Errorf("baudrate = %d, want document value", imet.Baudrate)
		}
		if imet.TimeoutS != 2 || imet.ReconnectDelayS != 5 || imet.MaxFailures != 5 {
			t.Errorf("defaults not applied: %+v", imet)
		}
		if got := imet.Timeout(); got != 2*time.Second {
			t.Errorf("Timeout() = %v", got)
		}

		pops := cfg.Instruments["pops"]
		if pops.Baudrate != 9600 {
			t.Errorf("default baudrate = %d, want 9600", pops.Baudrate)
		}
		if pops.SkipFields != 3 {
			t.Errorf("skip_fields = %d", pops.SkipFields)
		}

		if imet.OpsAddr != "127.0.0.1:9611" {
			t.Errorf("instrument ops_addr = %q", imet.OpsAddr)
		}
		if pops.OpsAddr != "" {
			t.Errorf("ops_addr = %q, want empty (endpoint disabled)", pops.OpsAddr)
		}

		if !cfg.Merger.Enabled || cfg.Merger.Interval() != time.Second {
			t.Errorf("merger defaults: %+v", cfg.Merger)
		}
		if cfg.Merger.OpsAddr != "127.0.0.1:9620" {
			t.Errorf("merger ops_addr = %q", cfg.Merger.OpsAddr)
		}
		if cfg.Vitals.StaleAfter() != 30*time.Second || cfg.Vitals.DeadAfter() != 2*time.Minute {
			t.Errorf("vitals defaults: %+v", cfg.Vitals)
		}
	})

	t.Run("environment overrides the document", func(t *testing.T) {
		t.Setenv("SKYSONDE_LOG_LEVEL", "debug")
		cfg, err := Load(writeDoc(t, testDoc))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("level = %q, want env override", cfg.Logging.Level)
		}
	})

	t.Run("unmapped environment variables are ignored", func(t *testing.T) {
		t.Setenv("SKYSONDE_BOGUS", "whatever")
		if _, err := Load(writeDoc(t, testDoc)); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("missing file path is an error", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeDoc(t, testDoc))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "both transports configured",
			mutate: func(c *Config) {
				ic := c.Instruments["pops"]
				ic.Identifiers = &Identity{VendorID: "a", ModelID: "b"}
				c.Instruments["pops"] = ic
			},
			wantErr: "mutually exclusive",
		},
		{
			name: "no transport configured",
			mutate: func(c *Config) {
				ic := c.Instruments["pops"]
				ic.UDP = nil
				c.Instruments["pops"] = ic
			},
			wantErr: "identifiers or udp",
		},
		{
			name: "bad udp bind",
			mutate: func(c *Config) {
				ic := c.Instruments["pops"]
				ic.UDP = &UDPConfig{Bind: "not-an-address"}
				c.Instruments["pops"] = ic
			},
			wantErr: "invalid udp bind",
		},
		{
			name: "alias count mismatch",
			mutate: func(c *Config) {
				c.Vitals.Columns["imet"] = VitalsColumns{
					Columns: []string{"Timestamp", "temp", "pressure"},
					Aliases: []string{"only-one"},
				}
			},
			wantErr: "aliases",
		},
		{
			name: "vitals names unknown instrument",
			mutate: func(c *Config) {
				c.Vitals.Columns["ghost"] = VitalsColumns{
					Columns: []string{"Timestamp", "x"},
					Aliases: []string{"X"},
				}
			},
			wantErr: "unknown instrument",
		},
		{
			name: "order names unknown instrument",
			mutate: func(c *Config) {
				c.Supervisor.InstrumentOrder = []string{"ghost"}
			},
			wantErr: "unknown instrument",
		},
		{
			name: "power template without control channel",
			mutate: func(c *Config) {
				ic := c.Instruments["imet"]
				ic.PowerCommandTemplate = "PWR|%d\r\n"
				c.Instruments["imet"] = ic
			},
			wantErr: "control_channel",
		},
		{
			name: "power template without verb",
			mutate: func(c *Config) {
				ic := c.Instruments["imet"]
				ic.ControlChannel = true
				ic.PowerCommandTemplate = "PWR\r\n"
				c.Instruments["imet"] = ic
			},
			wantErr: "%d",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}

	t.Run("disabled instruments skip transport checks", func(t *testing.T) {
		cfg := base()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("spare instrument should not trip validation: %v", err)
		}
	})
}

func TestEnabledInstruments(t *testing.T) {
	cfg, err := Load(writeDoc(t, testDoc))
	if err != nil {
		t.Fatal(err)
	}
	got := cfg.EnabledInstruments()
	want := []string{"pops", "imet"}
	if len(got) != len(want) {
		t.Fatalf("enabled = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("enabled = %v, want configured order %v", got, want)
		}
	}
}

func TestInstrumentLookup(t *testing.T) {
	cfg, err := Load(writeDoc(t, testDoc))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.Instrument("imet"); err != nil {
		t.Errorf("known instrument: %v", err)
	}
	if _, err := cfg.Instrument("ghost"); err == nil {
		t.Error("unknown instrument should error")
	}
}
