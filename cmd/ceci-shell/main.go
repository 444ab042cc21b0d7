// Package main provides the ceci-shell CLI entry point.
//
// ceci-shell supervises a single openceci worker process and relays its
// lifecycle events and output to a terminal dashboard, a headless console
// or remote websocket clients.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/randomizedcoder/go-ceci-shell/internal/config"
	"github.com/randomizedcoder/go-ceci-shell/internal/logging"
	"github.com/randomizedcoder/go-ceci-shell/internal/metrics"
	"github.com/randomizedcoder/go-ceci-shell/internal/preflight"
	"github.com/randomizedcoder/go-ceci-shell/internal/session"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/ceci-shell
var version = "dev"

const statusTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("ceci-shell %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Handle --status mode: query another shell and exit
	if cfg.Status != "" {
		return printStatus(cfg.Status)
	}

	if err := config.ApplyResourceRoot(cfg, config.ResolveOptions{}); err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving resource root: %v\n", err)
		return 1
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Initialize logger
	// When TUI is enabled, logs go to -log-file or nowhere so they do not
	// interfere with TUI rendering
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		return 1
	}
	defer closeLog()
	logging.SetDefault(logger)

	var opts []session.Option
	if !cfg.TUIEnabled {
		opts = append(opts, session.WithOnReady(func(sess *session.Session) {
			printBanner(os.Stdout, cfg, sess)
		}))
	}
	sess := session.New(cfg, logger, version, opts...)

	// Handle --print-cmd mode
	if cfg.PrintCmd {
		cmdline, err := sess.Runner().CommandString()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println("# openceci command that would be run:")
		fmt.Println()
		fmt.Println(cmdline)
		return 0
	}

	// Run preflight checks
	if !cfg.SkipPreflight {
		result := preflight.RunAll(sess.Runner())
		preflight.PrintResults(os.Stdout, result)
		if !result.Passed {
			fmt.Fprintln(os.Stderr, "preflight checks failed (use -skip-preflight to override)")
			return 1
		}
	}

	// Log startup
	logger.Info("starting",
		"version", version,
		"platform", sess.Runner().Config().Platform,
		"resource_root", cfg.ResourceRoot,
		"metrics_addr", cfg.MetricsAddr,
		"tui", cfg.TUIEnabled,
	)

	if err := sess.Run(context.Background()); err != nil {
		logger.Error("session_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// newLogger builds the session logger and a func releasing its file.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	if cfg.LogFile != "" {
		logger, closer, err := logging.NewFileLogger(cfg.LogFile, cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
		if err != nil {
			return nil, nil, err
		}
		return logger, func() { closer.Close() }, nil
	}
	if cfg.TUIEnabled {
		return logging.Discard(), func() {}, nil
	}
	return logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose), func() {}, nil
}

// printBanner prints the startup banner for the headless console. It runs
// after the metrics listener is bound so that a ":0" port shows as assigned.
func printBanner(w io.Writer, cfg *config.Config, sess *session.Session) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                           ceci-shell                              ║")
	fmt.Fprintln(w, "║          openceci worker supervision and event relay              ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Platform:    %s\n", sess.Runner().Config().Platform)
	fmt.Fprintf(w, "  Resources:   %s\n", cfg.ResourceRoot)
	fmt.Fprintf(w, "  Config:      %s\n", sess.Runner().ConfigPath())
	if addr := sess.MetricsAddr(); addr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", addr)
		if cfg.WebsocketActive() {
			fmt.Fprintf(w, "  Relay:       ws://%s/ws\n", addr)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands: start, stop, quit. Press Ctrl+C to exit.")
	fmt.Fprintln(w)
}

// printStatus scrapes a running shell and prints its worker state.
func printStatus(addr string) int {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	fams, err := metrics.Scrape(ctx, &http.Client{Timeout: statusTimeout}, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying %s: %v\n", addr, err)
		return 1
	}

	fmt.Println(metrics.StatusFrom(fams, time.Now()).String())
	return 0
}
