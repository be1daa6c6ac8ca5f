// Command governor is the build admission controller daemon. It listens on
// a local Unix socket (named pipe on Windows), grants/denies token leases to
// compiler and linker shims based on live memory pressure, and classifies
// tool failures on release.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildgovernor/governor/app/core/config"
	"github.com/buildgovernor/governor/app/core/pool"
	"github.com/buildgovernor/governor/app/core/probe"
	"github.com/buildgovernor/governor/app/core/protocol"
	"github.com/buildgovernor/governor/app/core/singleton"
	"github.com/buildgovernor/governor/app/panichandler"
	"github.com/buildgovernor/governor/app/paniclogger"
)

// Version is set via -ldflags at release build time.
var Version = "dev"

var (
	backgroundMode bool
	serviceMode    bool
)

var srv *protocol.Server

func main() {
	root := &cobra.Command{
		Use:     "governor",
		Short:   "Build admission controller for parallel C++ compilation",
		Version: Version,
		RunE:    run,
	}
	root.Flags().BoolVar(&backgroundMode, "background", false, "quiet startup, auto-shutdown after 30 minutes idle")
	root.Flags().BoolVar(&serviceMode, "service", false, "quiet startup, no idle shutdown (host-managed lifetime)")
	root.CompletionOptions.DisableDefaultCmd = true

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "governor:", err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	quiet := backgroundMode || serviceMode

	if err := paniclogger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: failed to initialize panic logger: %v\n", err)
	}
	defer func() {
		if err := paniclogger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: failed to close panic logger: %v\n", err)
		}
	}()
	defer recoverStartupPanic()

	lock, err := singleton.New(singleton.InstanceLock)
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	held, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("check instance lock: %w", err)
	}
	if !held {
		// Another governor instance is already authoritative for this host.
		// This is not an error: the shim that triggered auto-start just
		// needs *a* governor running, not necessarily this one.
		if !quiet {
			fmt.Println("governor: another instance is already running, exiting")
		}
		return nil
	}
	defer lock.Unlock()

	rc, err := config.Load(context.Background(), config.DefaultEnvPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serviceMode {
		rc.Runtime.IdleShutdownAfter = 0
	}

	setupLogging(rc.Runtime.LogLevel, quiet)

	if !quiet {
		slog.Info("build governor starting", "version", Version, "endpoint", rc.Runtime.EndpointPath)
	}

	p := probe.New()
	pl := pool.New(p, rc.Budget, rc.Weights)
	pl.Start()
	defer pl.Stop()

	srv = protocol.New(rc.Runtime.EndpointPath, pl)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start protocol server: %w", err)
	}

	idleShutdown := make(chan struct{})
	if backgroundMode && rc.Runtime.IdleShutdownAfter > 0 {
		panichandler.SafeGo("idle-shutdown-watchdog", func() {
			watchIdle(pl, rc.Runtime.IdleShutdownAfter, idleShutdown)
		})
	}

	waitForShutdown(idleShutdown, quiet)

	srv.Stop()
	if !quiet {
		slog.Info("governor stopped gracefully")
	}
	return nil
}

func setupLogging(level string, quiet bool) {
	l := parseLogLevel(level)
	if quiet && l < slog.LevelWarn {
		l = slog.LevelWarn
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// watchIdle polls the pool for active leases and closes idleShutdown once
// it has observed zero active leases continuously for idleAfter.
func watchIdle(pl pool.Pool, idleAfter time.Duration, idleShutdown chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	var idleSince time.Time
	for range ticker.C {
		status := pl.Status()
		if status.ActiveLeases > 0 {
			idleSince = time.Time{}
			continue
		}
		if idleSince.IsZero() {
			idleSince = time.Now()
			continue
		}
		if time.Since(idleSince) >= idleAfter {
			slog.Info("idle for idle-shutdown threshold, exiting", "idleAfter", idleAfter)
			close(idleShutdown)
			return
		}
	}
}

// waitForShutdown blocks until either a termination signal arrives or the
// idle-shutdown watchdog fires.
func waitForShutdown(idleShutdown <-chan struct{}, quiet bool) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		if !quiet {
			slog.Info("received signal, shutting down gracefully", "signal", sig)
		}
	case <-idleShutdown:
	}
}

func recoverStartupPanic() {
	if r := recover(); r != nil {
		stackTrace := debug.Stack()
		paniclogger.LogPanic("governor main", r, string(stackTrace))
		slog.Error("caught panic", "error", r, "stack", string(stackTrace))
		if srv != nil {
			srv.Stop()
		}
		os.Exit(1)
	}
}
