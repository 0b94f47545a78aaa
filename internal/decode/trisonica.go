// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package decode

import (
	"strings"
	"time"
)

// TriSonica decodes the anemometer's whitespace-separated key/value
// stream. Missing keys project as empty strings so the record width is
// stable regardless of which measurements the unit is configured to tag.
type TriSonica struct{}

// trisonicaKeys is the fixed projection order: wind speed/direction,
// velocity vectors, temperature, humidity, pressure, attitude.
var trisonicaKeys = []string{"S", "D", "U", "V", "W", "T", "H", "P", "PI", "RO", "MD"}

// Decode parses key/value pairs and projects the fixed key list.
func (TriSonica) Decode(line string, now time.Time) (Record, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return nil, reject("short frame")
	}

	kv := make(map[string]string, len(parts)/2)
	for i := 0; i+1 < len(parts); i += 2 {
		kv[parts[i]] = parts[i+1]
	}

	rec := make(Record, 0, len(trisonicaKeys)+1)
	rec = append(rec, Timestamp(now))
	for _, k := range trisonicaKeys {
		rec = append(rec, kv[k])
	}
	return rec, nil
}

// Validate applies the default policy.
func (TriSonica) Validate(rec Record) bool { return defaultValid(rec) }
