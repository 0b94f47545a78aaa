// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package config loads and validates the Skysonde configuration document.
//
// The document is a single JSON file shared by every process in the
// pipeline: the supervisor, each instrument acquisition process, and the
// fan-in consumers all load the same file so that column schemas, file
// patterns, and cadences agree without any runtime coordination.
//
// Loading is layered with Koanf v2 (highest priority wins):
//  1. Built-in defaults
//  2. JSON config file
//  3. SKYSONDE_* environment variables
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"
)

// Identity identifies a USB-serial instrument for port resolution.
// Matching is case-insensitive; SerialShort is optional and used to
// disambiguate when several identical adapters are plugged in.
type Identity struct {
	VendorID    string `koanf:"vendor_id" json:"vendor_id" validate:"required"`
	ModelID     string `koanf:"model_id" json:"model_id" validate:"required"`
	SerialShort string `koanf:"serial_short" json:"serial_short"`
}

// UDPConfig holds bind parameters for datagram instruments.
type UDPConfig struct {
	Bind string `koanf:"bind" json:"bind" validate:"required,hostname_port"`
}

// LoggingOverride carries per-instrument logging knobs merged over the
// global logging section. Pointer fields distinguish "unset" from zero.
type LoggingOverride struct {
	Verbosity *int  `koanf:"verbosity" json:"verbosity,omitempty"`
	Console   *bool `koanf:"console" json:"console,omitempty"`
	File      *bool `koanf:"file" json:"file,omitempty"`
}

// InstrumentConfig describes one instrument: how to reach it, how to
// decode it, and how its acquisition loop behaves. Loaded once at
// process start and immutable thereafter.
type InstrumentConfig struct {
	Type    string `koanf:"type" json:"type" validate:"required"`
	Enabled bool   `koanf:"enabled" json:"enabled"`

	Identifiers *Identity  `koanf:"identifiers" json:"identifiers,omitempty"`
	UDP         *UDPConfig `koanf:"udp" json:"udp,omitempty"`

	// Ordered output schema. The first column is always the canonical
	// wall-clock timestamp written by the decoder.
	Columns []string `koanf:"columns" json:"columns" validate:"required,min=2"`

	Baudrate        int     `koanf:"baudrate" json:"baudrate"`
	TimeoutS        float64 `koanf:"timeout_s" json:"timeout_s"`
	ReconnectDelayS float64 `koanf:"reconnect_delay_s" json:"reconnect_delay_s"`
	MaxFailures     int     `koanf:"max_failures" json:"max_failures"`
	PollIntervalS   float64 `koanf:"poll_interval_s" json:"poll_interval_s"`
	StartupDelayS   float64 `koanf:"startup_delay_s" json:"startup_delay_s"`

	// Decoder tunables. Mode selects the particle counter streaming
	// mode; SkipFields drops leading framing fields on UDP frames;
	// FrameKey is the accepted key of the actuator pipe grammar.
	Mode       int    `koanf:"mode" json:"mode"`
	SkipFields int    `koanf:"skip_fields" json:"skip_fields"`
	FrameKey   string `koanf:"frame_key" json:"frame_key"`

	// ControlChannel enables the FIFO command channel for this
	// instrument; PowerCommandTemplate maps bare-number control lines
	// to a device command (fmt template with one %d verb).
	ControlChannel       bool   `koanf:"control_channel" json:"control_channel"`
	PowerCommandTemplate string `koanf:"power_command_template" json:"power_command_template"`

	// OutputFilePattern overrides the default sink glob for consumers.
	OutputFilePattern string `koanf:"output_file_pattern" json:"output_file_pattern"`

	// OpsAddr, when non-empty, exposes this instrument process's ops
	// endpoint (health, status, metrics) on the given address.
	OpsAddr string `koanf:"ops_addr" json:"ops_addr"`

	Logging LoggingOverride `koanf:"logging" json:"logging"`
}

// Timeout returns the per-read transport timeout.
func (c InstrumentConfig) Timeout() time.Duration { return secs(c.TimeoutS) }

// ReconnectDelay returns the fixed reconnect cooldown.
func (c InstrumentConfig) ReconnectDelay() time.Duration { return secs(c.ReconnectDelayS) }

// PollInterval returns the decoder poll throttle interval.
func (c InstrumentConfig) PollInterval() time.Duration { return secs(c.PollIntervalS) }

// StartupDelay returns the supervisor bring-up delay after this instrument.
func (c InstrumentConfig) StartupDelay() time.Duration { return secs(c.StartupDelayS) }

// SinkDir returns the per-instrument output directory for instrument name.
func SinkDir(name string) string { return filepath.Join("output", name) }

// SinkPattern returns the glob consumers use to discover the active sink
// file for the named instrument.
func (c InstrumentConfig) SinkPattern(name string) string {
	if c.OutputFilePattern != "" {
		return c.OutputFilePattern
	}
	return filepath.Join(SinkDir(name), name+"_data_*.csv")
}

// ControlPath returns the FIFO path for the named instrument.
func ControlPath(name string) string {
	return filepath.Join(SinkDir(name), name+".ctl")
}

// MergerConfig drives the composite fan-in process and the supervisor's
// treatment of it.
type MergerConfig struct {
	Enabled       bool    `koanf:"enabled" json:"enabled"`
	IntervalS     float64 `koanf:"interval_s" json:"interval_s"`
	StartupDelayS float64 `koanf:"startup_delay_s" json:"startup_delay_s"`

	// CursorPath, when non-empty, enables the badger-backed cursor
	// store so tail offsets survive a consumer restart. Each consumer
	// process opens its own database under this root.
	CursorPath string `koanf:"cursor_path" json:"cursor_path"`

	// OpsAddr exposes the merge process's ops endpoint when non-empty.
	OpsAddr string `koanf:"ops_addr" json:"ops_addr"`
}

// Interval returns the merge output cadence.
func (c MergerConfig) Interval() time.Duration { return secs(c.IntervalS) }

// StartupDelay returns the pause before the fan-in processes start.
func (c MergerConfig) StartupDelay() time.Duration { return secs(c.StartupDelayS) }

// VitalsColumns selects and renames the curated field subset for one
// instrument. Columns[0] must be Timestamp; Aliases covers Columns[1:].
type VitalsColumns struct {
	Columns []string `koanf:"columns" json:"columns" validate:"required,min=2"`
	Aliases []string `koanf:"aliases" json:"aliases" validate:"required,min=1"`
}

// VitalsConfig drives the vitals projector process.
type VitalsConfig struct {
	Enabled     bool                     `koanf:"enabled" json:"enabled"`
	IntervalS   float64                  `koanf:"interval_s" json:"interval_s"`
	StaleAfterS float64                  `koanf:"stale_after_s" json:"stale_after_s"`
	DeadAfterS  float64                  `koanf:"dead_after_s" json:"dead_after_s"`
	Columns     map[string]VitalsColumns `koanf:"columns" json:"columns"`

	// OpsAddr exposes the vitals process's ops endpoint when non-empty.
	OpsAddr string `koanf:"ops_addr" json:"ops_addr"`
}

// Interval returns the vitals output cadence.
func (c VitalsConfig) Interval() time.Duration { return secs(c.IntervalS) }

// StaleAfter returns the silence threshold for flagging a source stale.
func (c VitalsConfig) StaleAfter() time.Duration { return secs(c.StaleAfterS) }

// DeadAfter returns the silence threshold for dropping a latched value.
func (c VitalsConfig) DeadAfter() time.Duration { return secs(c.DeadAfterS) }

// SupervisorConfig tunes the process supervisor.
type SupervisorConfig struct {
	MonitorPollS    float64  `koanf:"monitor_poll_s" json:"monitor_poll_s"`
	StatusReportS   float64  `koanf:"status_report_s" json:"status_report_s"`
	GracePeriodS    float64  `koanf:"grace_period_s" json:"grace_period_s"`
	FanInGraceS     float64  `koanf:"fanin_grace_s" json:"fanin_grace_s"`
	FreshnessAgeS   float64  `koanf:"freshness_age_s" json:"freshness_age_s"`
	InstrumentOrder []string `koanf:"instrument_order" json:"instrument_order"`
}

// MonitorPoll returns the child-poll interval.
func (c SupervisorConfig) MonitorPoll() time.Duration { return secs(c.MonitorPollS) }

// StatusReport returns the periodic status summary interval.
func (c SupervisorConfig) StatusReport() time.Duration { return secs(c.StatusReportS) }

// GracePeriod returns how long a child gets to exit before SIGKILL.
func (c SupervisorConfig) GracePeriod() time.Duration { return secs(c.GracePeriodS) }

// FanInGrace returns the grace period for the fan-in processes.
func (c SupervisorConfig) FanInGrace() time.Duration { return secs(c.FanInGraceS) }

// FreshnessAge returns the sink-file age below which an instrument is
// reported alive in the supervisor status (vx-style check).
func (c SupervisorConfig) FreshnessAge() time.Duration { return secs(c.FreshnessAgeS) }

// LoggingConfig is the global logging section.
type LoggingConfig struct {
	Level   string `koanf:"level" json:"level" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Format  string `koanf:"format" json:"format" validate:"omitempty,oneof=json console"`
	Console bool   `koanf:"console" json:"console"`
	File    bool   `koanf:"file" json:"file"`
}

// Config is the full configuration document.
type Config struct {
	// Path is the working directory every process chdirs into before
	// creating any output. All sink paths are relative to it.
	Path string `koanf:"path" json:"path"`

	// OpsAddr, when non-empty, is the supervisor's ops endpoint listen
	// address. Empty disables the endpoint.
	OpsAddr string `koanf:"ops_addr" json:"ops_addr"`

	Logging     LoggingConfig               `koanf:"logging" json:"logging"`
	Instruments map[string]InstrumentConfig `koanf:"instruments" json:"instruments" validate:"required"`
	Merger      MergerConfig                `koanf:"merger" json:"merger"`
	Vitals      VitalsConfig                `koanf:"vitals" json:"vitals"`
	Supervisor  SupervisorConfig            `koanf:"supervisor" json:"supervisor"`
}

// Instrument returns the named instrument section or an error naming the
// available instruments, mirroring the CLI's unknown-instrument report.
func (c *Config) Instrument(name string) (InstrumentConfig, error) {
	ic, ok := c.Instruments[name]
	if !ok {
		names := make([]string, 0, len(c.Instruments))
		for n := range c.Instruments {
			names = append(names, n)
		}
		return InstrumentConfig{}, fmt.Errorf("unknown instrument %q (available: %v)", name, names)
	}
	return ic, nil
}

// EnabledInstruments returns the enabled instrument names in start order:
// supervisor.instrument_order first (when present), remaining names in
// lexical order after it.
func (c *Config) EnabledInstruments() []string {
	seen := make(map[string]bool, len(c.Instruments))
	var names []string
	for _, n := range c.Supervisor.InstrumentOrder {
		if ic, ok := c.Instruments[n]; ok && ic.Enabled && !seen[n] {
			names = append(names, n)
			seen[n] = true
		}
	}
	rest := make([]string, 0, len(c.Instruments))
	for n, ic := range c.Instruments {
		if ic.Enabled && !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
