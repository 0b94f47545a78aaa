// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Struct tags cover shape
// checks; the methods below cover cross-field semantics the tags cannot
// express.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, ic := range c.Instruments {
		if err := validateInstrument(name, ic); err != nil {
			return err
		}
	}

	if err := c.validateVitals(); err != nil {
		return err
	}

	return c.validateSupervisor()
}

func validateInstrument(name string, ic InstrumentConfig) error {
	if strings.ContainsAny(name, "/\\ ") {
		return fmt.Errorf("instrument %q: name must be usable as a directory name", name)
	}

	if !ic.Enabled {
		return nil
	}

	isUDP := ic.UDP != nil
	hasIdent := ic.Identifiers != nil
	switch {
	case isUDP && hasIdent:
		return fmt.Errorf("instrument %q: identifiers and udp are mutually exclusive", name)
	case !isUDP && !hasIdent:
		return fmt.Errorf("instrument %q: enabled instruments need identifiers or udp", name)
	}

	if isUDP {
		if err := validate.Var(ic.UDP.Bind, "required,hostname_port"); err != nil {
			return fmt.Errorf("instrument %q: invalid udp bind %q", name, ic.UDP.Bind)
		}
	}
	if hasIdent && (ic.Identifiers.VendorID == "" || ic.Identifiers.ModelID == "") {
		return fmt.Errorf("instrument %q: identifiers must include vendor_id and model_id", name)
	}

	if len(ic.Columns) < 2 {
		return fmt.Errorf("instrument %q: columns must list the timestamp plus at least one field", name)
	}

	if ic.MaxFailures < 1 {
		return fmt.Errorf("instrument %q: max_failures must be at least 1", name)
	}

	if ic.PowerCommandTemplate != "" && strings.Count(ic.PowerCommandTemplate, "%d") != 1 {
		return fmt.Errorf("instrument %q: power_command_template needs exactly one %%d verb", name)
	}
	if ic.PowerCommandTemplate != "" && !ic.ControlChannel {
		return fmt.Errorf("instrument %q: power_command_template requires control_channel", name)
	}

	return nil
}

// validateVitals checks that every vitals section refers to a configured
// instrument and that its alias list covers its non-timestamp columns.
func (c *Config) validateVitals() error {
	if !c.Vitals.Enabled {
		return nil
	}
	for name, vc := range c.Vitals.Columns {
		if _, ok := c.Instruments[name]; !ok {
			return fmt.Errorf("vitals: unknown instrument %q", name)
		}
		if len(vc.Aliases) != len(vc.Columns)-1 {
			return fmt.Errorf("vitals %q: %d aliases for %d data columns", name, len(vc.Aliases), len(vc.Columns)-1)
		}
	}
	return nil
}

func (c *Config) validateSupervisor() error {
	for _, n := range c.Supervisor.InstrumentOrder {
		if _, ok := c.Instruments[n]; !ok {
			return fmt.Errorf("supervisor: instrument_order names unknown instrument %q", n)
		}
	}
	if c.Supervisor.MonitorPollS <= 0 {
		return fmt.Errorf("supervisor: monitor_poll_s must be positive")
	}
	return nil
}
