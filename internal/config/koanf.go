// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where the config file is searched, in order.
var DefaultConfigPaths = []string{
	"skysonde.json",
	"sensor_config.json",
	"/etc/skysonde/skysonde.json",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "SKYSONDE_CONFIG"

// defaultConfig returns the built-in defaults. These are applied first,
// then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Path:    ".",
		OpsAddr: "",
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "console",
			Console: true,
			File:    true,
		},
		Merger: MergerConfig{
			Enabled:       true,
			IntervalS:     1.0,
			StartupDelayS: 10,
		},
		Vitals: VitalsConfig{
			Enabled:     true,
			IntervalS:   1.0,
			StaleAfterS: 30,
			DeadAfterS:  120,
		},
		Supervisor: SupervisorConfig{
			MonitorPollS:  5,
			StatusReportS: 60,
			GracePeriodS:  5,
			FanInGraceS:   10,
			FreshnessAgeS: 6,
		},
	}
}

// instrumentDefaults are applied to each instrument section after
// unmarshaling, for fields the document left at zero.
func applyInstrumentDefaults(c *Config) {
	for name, ic := range c.Instruments {
		if ic.Baudrate == 0 {
			ic.Baudrate = 9600
		}
		if ic.TimeoutS == 0 {
			ic.TimeoutS = 2
		}
		if ic.ReconnectDelayS == 0 {
			ic.ReconnectDelayS = 5
		}
		if ic.MaxFailures == 0 {
			ic.MaxFailures = 5
		}
		if ic.PollIntervalS == 0 {
			ic.PollIntervalS = 1
		}
		if ic.StartupDelayS == 0 {
			ic.StartupDelayS = 2
		}
		if ic.Mode == 0 {
			ic.Mode = 1
		}
		c.Instruments[name] = ic
	}
}

// Load reads the configuration with layered sources: defaults, then the
// JSON config file (explicit path, SKYSONDE_CONFIG, or the default search
// list), then SKYSONDE_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	configPath := path
	if configPath == "" {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), json.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	applyInstrumentDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc maps SKYSONDE_* environment variables to config paths.
// Only top-level operational knobs are exposed; per-instrument schema
// lives in the document alone.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"skysonde_path":            "path",
		"skysonde_ops_addr":        "ops_addr",
		"skysonde_log_level":       "logging.level",
		"skysonde_log_format":      "logging.format",
		"skysonde_merge_interval":  "merger.interval_s",
		"skysonde_vitals_interval": "vitals.interval_s",
		"skysonde_monitor_poll":    "supervisor.monitor_poll_s",
		"skysonde_cursor_path":     "merger.cursor_path",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so stray environment variables cannot
	// pollute the configuration.
	return ""
}
