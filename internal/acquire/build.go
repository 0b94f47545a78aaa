// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/skysonde/skysonde/internal/config"
	"github.com/skysonde/skysonde/internal/decode"
	"github.com/skysonde/skysonde/internal/device"
	"github.com/skysonde/skysonde/internal/sink"
	"github.com/skysonde/skysonde/internal/transport"
)

// settleDelay is the pause between a successful serial open and the
// first handshake command; instruments drop bytes while the UART settles.
const settleDelay = 2 * time.Second

// Build assembles an instrument's full acquisition stack from its
// configuration: locator and dialer, decoder, sink, and the loop that
// ties them together.
func Build(name string, cfg config.InstrumentConfig) (*Loop, error) {
	dec, err := decode.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", name, err)
	}

	dial, err := dialFunc(name, cfg)
	if err != nil {
		return nil, err
	}

	var handshake transport.HandshakeFunc
	if hook, ok := dec.(decode.ConnectHook); ok {
		handshake = hook.OnConnect
	}

	mgr := transport.NewManager(name, dial, handshake, transport.ManagerConfig{
		ReconnectDelay: cfg.ReconnectDelay(),
		SettleDelay:    settleDelay,
		MaxFailures:    cfg.MaxFailures,
	})

	out, err := sink.New(config.SinkDir(name), name, cfg.Columns)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", name, err)
	}

	return NewLoop(name, mgr, dec, out, LoopConfig{
		ProbeTimeout: cfg.Timeout(),
	}), nil
}

// dialFunc picks the transport by configuration: a UDP bind when one is
// configured, otherwise USB resolution plus serial open.
func dialFunc(name string, cfg config.InstrumentConfig) (transport.DialFunc, error) {
	if cfg.UDP != nil && cfg.UDP.Bind != "" {
		bind := cfg.UDP.Bind
		timeout := cfg.Timeout()
		return func(_ context.Context) (transport.Conn, error) {
			return transport.BindUDP(bind, timeout)
		}, nil
	}

	if cfg.Identifiers == nil {
		return nil, fmt.Errorf("instrument %s: no transport configured", name)
	}

	locator := device.NewUSBLocator()
	id := *cfg.Identifiers
	baud := cfg.Baudrate
	timeout := cfg.Timeout()
	return func(_ context.Context) (transport.Conn, error) {
		port, err := locator.Resolve(id)
		if err != nil {
			return nil, err
		}
		return transport.OpenSerial(port, baud, timeout)
	}, nil
}
