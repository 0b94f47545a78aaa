// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

package control

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPumpHandle(t *testing.T) {
	var sent []string
	capture := func(cmd []byte) error {
		sent = append(sent, string(cmd))
		return nil
	}

	t.Run("raw command gets terminator", func(t *testing.T) {
		sent = nil
		p := NewPump("chiller", "unused", "", capture)
		p.handle("STATUS")
		if len(sent) != 1 || sent[0] != "STATUS\r\n" {
			t.Errorf("sent = %q", sent)
		}
	})

	t.Run("bare number expands template", func(t *testing.T) {
		sent = nil
		p := NewPump("chiller", "unused", "PWR|%d\r\n", capture)
		p.handle("75")
		if len(sent) != 1 || sent[0] != "PWR|75\r\n" {
			t.Errorf("sent = %q", sent)
		}
	})

	t.Run("non-numeric line bypasses template", func(t *testing.T) {
		sent = nil
		p := NewPump("chiller", "unused", "PWR|%d\r\n", capture)
		p.handle("RESET")
		if len(sent) != 1 || sent[0] != "RESET\r\n" {
			t.Errorf("sent = %q", sent)
		}
	})

	t.Run("blank lines dropped", func(t *testing.T) {
		sent = nil
		p := NewPump("chiller", "unused", "", capture)
		p.handle("")
		if len(sent) != 0 {
			t.Errorf("sent = %q, want none", sent)
		}
	})
}

func TestPumpDispatchPartialLines(t *testing.T) {
	var sent []string
	p := NewPump("chiller", "unused", "", func(cmd []byte) error {
		sent = append(sent, string(cmd))
		return nil
	})

	var pending bytes.Buffer
	pending.WriteString("CMD1\nCM")
	p.dispatch(&pending)
	if len(sent) != 1 {
		t.Fatalf("sent = %q, want only the complete line", sent)
	}

	pending.WriteString("D2\n")
	p.dispatch(&pending)
	if len(sent) != 2 || sent[1] != "CMD2\r\n" {
		t.Errorf("sent = %q, want the reassembled line", sent)
	}
}

func TestPumpServe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chiller.ctl")

	cmds := make(chan string, 4)
	p := NewPump("chiller", path, "PWR|%d\r\n", func(cmd []byte) error {
		cmds <- string(cmd)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	// The pump holds the read end open, so the writer must not block.
	var w *os.File
	var err error
	for i := 0; i < 50; i++ {
		w, err = os.OpenFile(path, os.O_WRONLY, 0)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("open fifo for writing: %v", err)
	}
	defer w.Close()

	if _, err := w.WriteString("42\nSTATUS\n"); err != nil {
		t.Fatal(err)
	}

	want := []string{"PWR|42\r\n", "STATUS\r\n"}
	for _, expect := range want {
		select {
		case got := <-cmds:
			if got != expect {
				t.Errorf("command = %q, want %q", got, expect)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", expect)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}
