// Package session wires the supervisor, relay, metrics and a user interface
// into one ceci-shell session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-ceci-shell/internal/config"
	"github.com/randomizedcoder/go-ceci-shell/internal/console"
	"github.com/randomizedcoder/go-ceci-shell/internal/metrics"
	"github.com/randomizedcoder/go-ceci-shell/internal/process"
	"github.com/randomizedcoder/go-ceci-shell/internal/relay"
	"github.com/randomizedcoder/go-ceci-shell/internal/stats"
	"github.com/randomizedcoder/go-ceci-shell/internal/supervisor"
	"github.com/randomizedcoder/go-ceci-shell/internal/tui"
)

const (
	commandBuffer   = 16
	shutdownTimeout = 5 * time.Second
	stderrTailLines = 5
)

// Session coordinates all components for one shell session.
//
// The UI endpoint (TUI or console) owns the session: when it goes away the
// worker is torn down and the session ends.
type Session struct {
	config *config.Config
	logger *slog.Logger

	runner     *process.CeciRunner
	registry   *prometheus.Registry
	metrics    *metrics.Collector
	relay      *relay.Relay
	supervisor *supervisor.Supervisor
	commands   chan relay.Command
	server     *metrics.Server
	websocket  *relay.WebsocketHandler

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	onReady func(*Session)

	startTime time.Time
}

// Option customizes a Session.
type Option func(*Session)

// WithIO replaces the terminal streams used by the console UI and the exit
// summary.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(s *Session) {
		s.in = in
		s.out = out
		s.errOut = errOut
	}
}

// WithOnReady registers fn to run once the HTTP listener is bound and
// before the UI starts.
func WithOnReady(fn func(*Session)) Option {
	return func(s *Session) {
		s.onReady = fn
	}
}

// New creates a Session with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, version string, opts ...Option) *Session {
	ceci := process.DefaultCeciConfig(cfg.ResourceRoot)
	if cfg.Platform != "" {
		ceci.Platform = cfg.Platform
	}
	if cfg.ConfigName != "" {
		ceci.ConfigName = cfg.ConfigName
	}
	ceci.ExtraArgs = cfg.ExtraArgs
	platform := ceci.Platform

	runner := process.NewCeciRunner(ceci)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:  version,
		Platform: platform,
	}, registry)

	s := &Session{
		config:   cfg,
		logger:   logger,
		runner:   runner,
		registry: registry,
		metrics:  collector,
		commands: make(chan relay.Command, commandBuffer),
		in:       os.Stdin,
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.relay = relay.New(logger, relay.Callbacks{
		OnPublish:          s.onPublish,
		OnDeliveryDropped:  s.onDeliveryDropped,
		OnEndpointsChanged: collector.SetEndpoints,
	})

	s.supervisor = supervisor.New(supervisor.Config{
		Builder:   runner,
		Sink:      s.relay,
		Logger:    logger,
		WaitDelay: cfg.KillGrace,
		Verbose:   cfg.Verbose,
		Callbacks: supervisor.Callbacks{
			OnStateChange: s.onStateChange,
			OnStart:       s.onStart,
			OnExit:        collector.RecordExit,
			OnSpawnFailed: s.onSpawnFailed,
			OnOutput:      collector.RecordOutput,
		},
	})

	if cfg.MetricsEnabled() {
		var serverOpts []metrics.ServerOption
		if cfg.WebsocketActive() {
			s.websocket = relay.NewWebsocketHandler(s.relay, s.commands, logger)
			serverOpts = append(serverOpts, metrics.WithHandler("/ws", s.websocket))
		}
		s.server = metrics.NewServer(cfg.MetricsAddr, registry, logger, serverOpts...)
	}

	return s
}

// Run executes the session. It blocks until the UI ends, ctx is cancelled
// or a termination signal arrives, then tears the worker down and prints the
// exit summary.
func (s *Session) Run(ctx context.Context) error {
	s.startTime = time.Now()

	if s.server != nil {
		if err := s.server.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}
	if s.onReady != nil {
		s.onReady(s)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info("received_signal", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		relay.Dispatch(ctx, s.commands, &recordingController{ctl: s.supervisor, metrics: s.metrics}, s.logger)
	}()

	s.logger.Info("session_started",
		"platform", s.runner.Config().Platform,
		"resource_root", s.runner.Config().ResourceRoot,
		"tui", s.config.TUIEnabled,
		"metrics_addr", s.MetricsAddr(),
	)

	var uiErr error
	if s.config.TUIEnabled {
		uiErr = s.runTUI(ctx)
	} else {
		uiErr = s.runConsole(ctx)
	}

	// The owner is gone: stop taking commands, then end the worker.
	cancel()
	<-dispatchDone
	s.shutdown()

	fmt.Fprint(s.out, s.Summary())

	if uiErr != nil && !errors.Is(uiErr, context.Canceled) {
		return fmt.Errorf("session ui: %w", uiErr)
	}
	return nil
}

// runTUI runs the Bubble Tea dashboard until the user quits or ctx ends.
func (s *Session) runTUI(ctx context.Context) error {
	ep := tui.NewEndpoint("tui")
	model := tui.New(tui.Config{
		Platform:     s.runner.Config().Platform,
		ResourceRoot: s.runner.Config().ResourceRoot,
		MetricsAddr:  s.MetricsAddr(),
		Scrollback:   s.config.Scrollback,
		Commands:     s.commands,
		ReplyTo:      ep,
		Done:         ctx.Done(),
		Source:       s.supervisor,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	ep.Attach(p)
	s.relay.Subscribe(ep)
	defer func() {
		ep.Close()
		s.relay.Unsubscribe(ep.ID())
	}()

	go func() {
		<-ctx.Done()
		tui.SendQuit(p)
	}()

	s.autostart(ep)

	_, err := p.Run()
	return err
}

// runConsole reads commands from the input stream until quit, end of input
// or ctx ends.
func (s *Session) runConsole(ctx context.Context) error {
	c := console.New("console", s.out, s.errOut)
	s.relay.Subscribe(c)
	defer func() {
		c.Close()
		s.relay.Unsubscribe(c.ID())
	}()

	s.autostart(c)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.ReadCommands(ctx, s.in, s.commands)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

func (s *Session) autostart(owner relay.Endpoint) {
	if !s.config.Autostart {
		return
	}
	s.logger.Info("autostart")
	s.commands <- relay.Command{Kind: relay.StartRequested, ReplyTo: owner}
}

// shutdown tears the worker down and stops the HTTP surface.
func (s *Session) shutdown() {
	s.supervisor.Teardown()

	reapCtx, reapCancel := context.WithTimeout(context.Background(), s.config.KillGrace+time.Second)
	defer reapCancel()
	if err := s.supervisor.WaitReaped(reapCtx); err != nil {
		s.logger.Warn("worker_reap_incomplete", "error", err)
	}

	if s.websocket != nil {
		s.websocket.Close()
	}

	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
	}

	s.logger.Info("session_ended",
		"duration", time.Since(s.startTime).String(),
		"runs", s.supervisor.Runs(),
	)
}

// Summary formats the exit summary for the session so far.
func (s *Session) Summary() string {
	metricsAddr := ""
	if s.server != nil {
		metricsAddr = s.server.Addr()
	}
	return stats.FormatExitSummary(s.metrics.GenerateSummary(), stats.SummaryConfig{
		Platform:     s.runner.Config().Platform,
		ResourceRoot: s.runner.Config().ResourceRoot,
		MetricsAddr:  metricsAddr,
		StderrTail:   s.supervisor.StderrTail(stderrTailLines),
	})
}

// Callback handlers

func (s *Session) onStateChange(oldState, newState supervisor.State) {
	s.metrics.SetRunning(newState == supervisor.StateRunning)
}

func (s *Session) onStart(pid int) {
	s.metrics.WorkerStarted(pid)
}

func (s *Session) onSpawnFailed(err error) {
	s.metrics.SpawnFailed(spawnFailureReason(err))
}

func (s *Session) onPublish(ev relay.Event) {
	s.metrics.EventPublished(string(ev.Type))
}

func (s *Session) onDeliveryDropped(endpointID string, ev relay.Event) {
	s.metrics.DeliveryDropped()
	if s.config.Verbose {
		s.logger.Debug("relay_delivery_dropped", "endpoint", endpointID, "type", string(ev.Type))
	}
}

// Accessors

// MetricsAddr returns the bound HTTP address, or "" when the server is disabled.
func (s *Session) MetricsAddr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// Runner returns the worker runner.
func (s *Session) Runner() *process.CeciRunner {
	return s.runner
}

// Supervisor returns the worker supervisor.
func (s *Session) Supervisor() *supervisor.Supervisor {
	return s.supervisor
}

// Metrics returns the metrics collector.
func (s *Session) Metrics() *metrics.Collector {
	return s.metrics
}

// Registry returns the Prometheus registry backing the session's metrics.
func (s *Session) Registry() *prometheus.Registry {
	return s.registry
}
