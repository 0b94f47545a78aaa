// Skysonde - Airborne Instrument Telemetry Acquisition and Fusion
// Copyright 2026 Skysonde Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skysonde/skysonde

// Command skysonde is the single binary behind the whole pipeline.
//
//	skysonde run        -config skysonde.json   # supervisor (default)
//	skysonde instrument <name> -config ...      # one acquisition process
//	skysonde merge      -config ...             # composite fan-in
//	skysonde vitals     -config ...             # vitals projector
//
// The supervisor re-execs this binary with a subcommand per child, so
// one deployment artifact covers every process in the tree.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/skysonde/skysonde/internal/acquire"
	"github.com/skysonde/skysonde/internal/config"
	"github.com/skysonde/skysonde/internal/control"
	"github.com/skysonde/skysonde/internal/logging"
	"github.com/skysonde/skysonde/internal/merge"
	"github.com/skysonde/skysonde/internal/ops"
	"github.com/skysonde/skysonde/internal/supervisor"
	"github.com/skysonde/skysonde/internal/tail"
)

func main() {
	if err := run(os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "skysonde: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "run":
		return runSupervisor(args)
	case "instrument":
		if len(args) == 0 || strings.HasPrefix(args[0], "-") {
			return errors.New("usage: skysonde instrument <name> [-config path]")
		}
		return runInstrument(args[0], args[1:])
	case "merge":
		return runMerge(args)
	case "vitals":
		return runVitals(args)
	default:
		return fmt.Errorf("unknown command %q (run, instrument, merge, vitals)", cmd)
	}
}

// loadConfig parses the subcommand flags, loads the shared document,
// and moves the process into its working directory before anything can
// create output.
func loadConfig(name string, args []string) (*config.Config, string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", "", "path to the configuration document")
	if err := fs.Parse(args); err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, "", err
	}
	if cfg.Path != "" {
		if err := os.Chdir(cfg.Path); err != nil {
			return nil, "", fmt.Errorf("chdir to %s: %w", cfg.Path, err)
		}
	}
	return cfg, *path, nil
}

// initLogging configures the process logger, applying a per-instrument
// override and log file when instrument is non-empty.
func initLogging(cfg *config.Config, instrument string) error {
	lc := logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: cfg.Logging.Console,
	}
	file := cfg.Logging.File

	if instrument != "" {
		ov := cfg.Instruments[instrument].Logging
		if ov.Verbosity != nil {
			lc.Level = logging.VerbosityLevel(*ov.Verbosity)
		}
		if ov.Console != nil {
			lc.Console = *ov.Console
		}
		if ov.File != nil {
			file = *ov.File
		}
		if file {
			lc.File = filepath.Join(config.SinkDir(instrument), instrument+".log")
		}
	} else if file {
		lc.File = filepath.Join("output", "skysonde.log")
	}
	return logging.Init(lc)
}

// newTree builds the in-process supervision tree with suture events
// routed into the process log.
func newTree(name string) *suture.Supervisor {
	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	return suture.New(name, suture.Spec{EventHook: handler.MustHook()})
}

// serveTree runs the tree until a signal or fatal service error.
func serveTree(tree *suture.Supervisor) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return tree.Serve(ctx)
}

func runSupervisor(args []string) error {
	cfg, configPath, err := loadConfig("run", args)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, ""); err != nil {
		return err
	}

	sup, err := supervisor.New(cfg, configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OpsAddr != "" {
		tree := newTree("skysonde-ops")
		tree.Add(ops.NewServer(cfg.OpsAddr, func() any { return sup.Status() }))
		go tree.Serve(ctx)
	}

	return sup.Run(ctx)
}

func runInstrument(name string, args []string) error {
	cfg, _, err := loadConfig("instrument", args)
	if err != nil {
		return err
	}
	ic, err := cfg.Instrument(name)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, name); err != nil {
		return err
	}

	loop, err := acquire.Build(name, ic)
	if err != nil {
		return err
	}

	tree := newTree("skysonde-" + name)
	tree.Add(loop)
	if ic.ControlChannel {
		pump := control.NewPump(name, config.ControlPath(name), ic.PowerCommandTemplate, loop.Send)
		tree.Add(pump)
	}
	if ic.OpsAddr != "" {
		tree.Add(ops.NewServer(ic.OpsAddr, processStatus("instrument:"+name)))
	}
	return serveTree(tree)
}

func runMerge(args []string) error {
	cfg, _, err := loadConfig("merge", args)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, ""); err != nil {
		return err
	}

	store, err := cursorStore(cfg, "merge")
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := merge.NewEngine(cfg, store)
	if err != nil {
		return err
	}
	tree := newTree("skysonde-merge")
	tree.Add(engine)
	if cfg.Merger.OpsAddr != "" {
		tree.Add(ops.NewServer(cfg.Merger.OpsAddr, processStatus("merge")))
	}
	return serveTree(tree)
}

func runVitals(args []string) error {
	cfg, _, err := loadConfig("vitals", args)
	if err != nil {
		return err
	}
	if err := initLogging(cfg, ""); err != nil {
		return err
	}

	store, err := cursorStore(cfg, "vitals")
	if err != nil {
		return err
	}
	defer store.Close()

	proj, err := merge.NewProjector(cfg, store)
	if err != nil {
		return err
	}
	tree := newTree("skysonde-vitals")
	tree.Add(proj)
	if cfg.Vitals.OpsAddr != "" {
		tree.Add(ops.NewServer(cfg.Vitals.OpsAddr, processStatus("vitals")))
	}
	return serveTree(tree)
}

// cursorStore picks the persistent store when a cursor path is
// configured, in-memory tracking otherwise. Each consumer process keeps
// its own database under the configured root.
func cursorStore(cfg *config.Config, consumer string) (tail.Store, error) {
	if cfg.Merger.CursorPath == "" {
		return tail.NewMemoryStore(), nil
	}
	return tail.OpenBadgerStore(cfg.Merger.CursorPath, consumer)
}

// processStatus is the /status body for child processes: the process
// identity and PID. The metrics endpoint carries the real telemetry.
func processStatus(process string) ops.StatusFunc {
	return func() any {
		return struct {
			Process string `json:"process"`
			PID     int    `json:"pid"`
		}{Process: process, PID: os.Getpid()}
	}
}
