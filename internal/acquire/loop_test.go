// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package acquire

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/skysonde/skysonde/internal/decode"
	"github.com/skysonde/skysonde/internal/sink"
	"github.com/skysonde/skysonde/internal/transport"
)

// scriptConn serves queued lines as buffered input and one optional
// blocking-read answer.
type scriptConn struct {
	buffered  []string
	probeLine string
	probeErr  error
	writes    []string
	closed    bool
}

func (c *scriptConn) ReadLine(timeout time.Duration) (string, error) {
	if len(c.buffered) > 0 {
		line := c.buffered[0]
		c.buffered = c.buffered[1:]
		return line, nil
	}
	if timeout <= 0 {
		return "", transport.ErrTimeout
	}
	if c.probeErr != nil {
		return "", c.probeErr
	}
	if c.probeLine != "" {
		line := c.probeLine
		c.probeLine = ""
		return line, nil
	}
	return "", transport.ErrTimeout
}

func (c *scriptConn) Write(p []byte) error {
	c.writes = append(c.writes, string(p))
	return nil
}

func (c *scriptConn) Close() error { c.closed = true; return nil }

func testLoop(t *testing.T, conn *scriptConn) *Loop {
	t.Helper()
	mgr := transport.NewManager("test", func(context.Context) (transport.Conn, error) {
		return conn, nil
	}, nil, transport.ManagerConfig{ReconnectDelay: time.Millisecond, MaxFailures: 3})
	out, err := sink.New(t.TempDir(), "test", []string{"Timestamp", "a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	l := NewLoop("test", mgr, &decode.Generic{}, out, LoopConfig{
		StaleProbe:   time.Second,
		ProbeTimeout: time.Millisecond,
	})
	if !mgr.MaybeConnect(context.Background()) {
		t.Fatal("expected initial connect to succeed")
	}
	return l
}

func sinkRows(t *testing.T, l *Loop) [][]string {
	t.Helper()
	data, err := os.ReadFile(l.out.Path())
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestLoopCycle(t *testing.T) {
	t.Run("drain keeps newest valid record", func(t *testing.T) {
		conn := &scriptConn{buffered: []string{"1,2", "3,4", "5,6"}}
		l := testLoop(t, conn)

		if err := l.cycle(); err != nil {
			t.Fatal(err)
		}

		rows := sinkRows(t, l)
		if len(rows) != 2 {
			t.Fatalf("rows = %d, want header + 1 (drain keeps latest only)", len(rows))
		}
		if rows[1][1] != "5" || rows[1][2] != "6" {
			t.Errorf("kept row = %v, want the newest frame", rows[1])
		}
	})

	t.Run("rejections leave failure streak untouched", func(t *testing.T) {
		conn := &scriptConn{buffered: []string{"noise", "more-noise"}}
		l := testLoop(t, conn)

		if err := l.cycle(); err != nil {
			t.Fatal(err)
		}
		if n := l.mgr.ConsecutiveFailures(); n != 0 {
			t.Errorf("failures = %d, want 0 for rejected frames", n)
		}
		if rows := sinkRows(t, l); len(rows) != 1 {
			t.Errorf("rows = %d, want header only", len(rows))
		}
	})

	t.Run("silent connection gets probed", func(t *testing.T) {
		conn := &scriptConn{probeLine: "7,8"}
		l := testLoop(t, conn)
		l.lastData = l.now().Add(-time.Minute)

		if err := l.cycle(); err != nil {
			t.Fatal(err)
		}
		rows := sinkRows(t, l)
		if len(rows) != 2 || rows[1][1] != "7" {
			t.Errorf("rows = %v, want the probed frame appended", rows)
		}
	})

	t.Run("probe timeout leaves failure streak untouched", func(t *testing.T) {
		conn := &scriptConn{}
		l := testLoop(t, conn)
		l.lastData = l.now().Add(-time.Minute)

		if err := l.cycle(); err != nil {
			t.Fatal(err)
		}
		if n := l.mgr.ConsecutiveFailures(); n != 0 {
			t.Errorf("failures = %d, want 0 for a silent but healthy device", n)
		}
		if !l.mgr.Connected() {
			t.Error("silence alone must not cost the connection")
		}
	})

	t.Run("failure threshold force-closes transport", func(t *testing.T) {
		conn := &scriptConn{probeErr: errors.New("read: input/output error")}
		l := testLoop(t, conn)

		for i := 0; i < 3; i++ {
			l.lastData = l.now().Add(-time.Minute)
			if err := l.cycle(); err != nil {
				t.Fatal(err)
			}
			if !l.mgr.Connected() {
				break
			}
		}
		if l.mgr.Connected() {
			t.Error("transport should be force-closed after the threshold")
		}
		if !conn.closed {
			t.Error("underlying conn should be closed")
		}
	})
}

func TestLoopControlCommands(t *testing.T) {
	t.Run("queued command reaches the transport", func(t *testing.T) {
		conn := &scriptConn{}
		l := testLoop(t, conn)

		if err := l.Send([]byte("PWR|1\r\n")); err != nil {
			t.Fatal(err)
		}
		l.pumpCommands()
		if len(conn.writes) != 1 || conn.writes[0] != "PWR|1\r\n" {
			t.Errorf("writes = %q", conn.writes)
		}
	})

	t.Run("command dropped while disconnected", func(t *testing.T) {
		conn := &scriptConn{}
		l := testLoop(t, conn)
		l.mgr.Close()

		if err := l.Send([]byte("PWR|0\r\n")); err != nil {
			t.Fatal(err)
		}
		l.pumpCommands()
		if len(conn.writes) != 0 {
			t.Errorf("writes = %q, want none while disconnected", conn.writes)
		}
	})
}

func TestLoopServeShutdown(t *testing.T) {
	conn := &scriptConn{}
	l := testLoop(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
	if !conn.closed {
		t.Error("transport should be closed on shutdown")
	}
}
