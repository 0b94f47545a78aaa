// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package transport

import (
	"errors"
	"net"
	"testing"
	"time"
)

func testUDPPair(t *testing.T) (Conn, net.Conn) {
	t.Helper()
	conn, err := BindUDP("127.0.0.1:0", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	peer, err := net.Dial("udp", conn.(*udpConn).conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { peer.Close() })
	return conn, peer
}

func TestUDPDrainRead(t *testing.T) {
	conn, peer := testUDPPair(t)

	if _, err := peer.Write([]byte("POPS,1,2,3\n")); err != nil {
		t.Fatal(err)
	}

	// Loopback delivery is asynchronous; the drain read polls with a
	// short window, so a queued datagram surfaces within a few tries.
	var line string
	var err error
	for i := 0; i < 100; i++ {
		line, err = conn.ReadLine(0)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrTimeout) {
			t.Fatal(err)
		}
	}
	if line != "POPS,1,2,3" {
		t.Errorf("drained line = %q, want the queued datagram", line)
	}

	// An empty queue drains out quickly instead of blocking.
	start := time.Now()
	if _, err := conn.ReadLine(0); !errors.Is(err, ErrTimeout) {
		t.Errorf("empty drain read = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("empty drain read blocked for %v", elapsed)
	}
}

func TestUDPTimedRead(t *testing.T) {
	conn, peer := testUDPPair(t)

	if _, err := peer.Write([]byte("POPS,4,5,6\n")); err != nil {
		t.Fatal(err)
	}
	line, err := conn.ReadLine(2 * time.Second)
	if err != nil || line != "POPS,4,5,6" {
		t.Errorf("ReadLine = %q, %v; want the datagram", line, err)
	}

	if _, err := conn.ReadLine(20 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("quiet socket = %v, want ErrTimeout", err)
	}
}

func TestUDPWriteRejected(t *testing.T) {
	conn, _ := testUDPPair(t)
	if err := conn.Write([]byte("x")); err == nil {
		t.Error("datagram transport should reject writes")
	}
}
