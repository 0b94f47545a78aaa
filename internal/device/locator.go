// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Package device resolves instrument identities to serial port paths.
//
// USB-serial adapters move between /dev/ttyUSB* nodes across replugs and
// reboots, so instruments are configured by USB vendor/product ID (plus
// an optional serial-short when two identical adapters coexist) and the
// locator enumerates the system's ports on every connection attempt.
package device

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/skysonde/skysonde/internal/config"
)

// ErrNotFound is returned when no attached port matches the identity.
var ErrNotFound = errors.New("device not found")

// AmbiguousError reports more than one port matching an identity. The
// locator never guesses between candidates; the operator must set
// serial_short to disambiguate.
type AmbiguousError struct {
	Identity config.Identity
	Ports    []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("multiple devices match %s:%s (set serial_short to disambiguate): %v",
		e.Identity.VendorID, e.Identity.ModelID, e.Ports)
}

// Locator resolves an instrument identity to a port path.
type Locator interface {
	Resolve(id config.Identity) (string, error)
}

// portInfo is the subset of enumerator.PortDetails the matcher needs.
type portInfo struct {
	name         string
	vendorID     string
	productID    string
	serialNumber string
}

// USBLocator enumerates system serial ports via go.bug.st's enumerator.
type USBLocator struct {
	// enumerate is swappable for tests.
	enumerate func() ([]portInfo, error)
}

// NewUSBLocator returns a locator backed by the system port list.
func NewUSBLocator() *USBLocator {
	return &USBLocator{enumerate: systemPorts}
}

func systemPorts() ([]portInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	ports := make([]portInfo, 0, len(details))
	for _, d := range details {
		if !d.IsUSB {
			continue
		}
		ports = append(ports, portInfo{
			name:         d.Name,
			vendorID:     d.VID,
			productID:    d.PID,
			serialNumber: d.SerialNumber,
		})
	}
	return ports, nil
}

// Resolve finds the unique port matching id. Matching is
// case-insensitive. Zero matches yields ErrNotFound; more than one
// yields an *AmbiguousError listing the candidates.
func (l *USBLocator) Resolve(id config.Identity) (string, error) {
	if id.VendorID == "" || id.ModelID == "" {
		return "", fmt.Errorf("identity must include vendor_id and model_id: %w", ErrNotFound)
	}

	ports, err := l.enumerate()
	if err != nil {
		return "", err
	}

	wantVendor := strings.ToLower(id.VendorID)
	wantModel := strings.ToLower(id.ModelID)
	wantSerial := strings.ToLower(id.SerialShort)

	var matches []string
	for _, p := range ports {
		if strings.ToLower(p.vendorID) != wantVendor || strings.ToLower(p.productID) != wantModel {
			continue
		}
		if wantSerial != "" && strings.ToLower(p.serialNumber) != wantSerial {
			continue
		}
		matches = append(matches, p.name)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no device for %s:%s: %w", wantVendor, wantModel, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Identity: id, Ports: matches}
	}
}
