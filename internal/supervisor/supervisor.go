package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/randomizedcoder/go-ceci-shell/internal/logging"
	"github.com/randomizedcoder/go-ceci-shell/internal/process"
	"github.com/randomizedcoder/go-ceci-shell/internal/relay"
)

// Builder creates the worker command; *process.CeciRunner implements it.
type Builder = process.Runner

// Sink receives every relay event the supervisor emits.
// Emit must not call back into the Supervisor.
type Sink interface {
	Emit(ev relay.Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev relay.Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev relay.Event) { f(ev) }

// Callbacks contains optional callback functions for supervisor events.
// They run synchronously and must not call back into the Supervisor.
type Callbacks struct {
	// OnStateChange is called when the supervisor moves between Idle and Running.
	OnStateChange func(oldState, newState State)

	// OnStart is called when a worker process starts.
	OnStart func(pid int)

	// OnExit is called when a worker process is reaped, including stopped ones.
	OnExit func(exitCode int, uptime time.Duration)

	// OnSpawnFailed is called when the worker could not be launched.
	OnSpawnFailed func(err error)

	// OnOutput is called for every chunk forwarded to the sink.
	OnOutput func(stream string, n int)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Builder   Builder
	Sink      Sink
	Logger    *slog.Logger
	Callbacks Callbacks

	// WaitDelay bounds how long pipes are drained after the worker exits.
	// Zero uses DefaultWaitDelay.
	WaitDelay time.Duration

	// Verbose logs every worker output line on the diagnostic channel.
	Verbose bool
}

// DefaultWaitDelay is used when Config.WaitDelay is zero.
const DefaultWaitDelay = 2 * time.Second

// WorkerInfo is a snapshot of the live worker handle.
type WorkerInfo struct {
	Run       int
	PID       int
	StartTime time.Time
}

// Supervisor manages the lifecycle of the single worker process.
// At most one worker is alive at any instant.
type Supervisor struct {
	builder   Builder
	sink      Sink
	logger    *slog.Logger
	callbacks Callbacks
	waitDelay time.Duration
	verbose   bool

	// ctx bounds every spawned command; cancelled by Teardown.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	worker *worker
	runs   map[*worker]struct{} // spawned and not yet reaped
	seq    int
	closed bool

	// lastStderr is the stderr handler of the most recent run.
	lastStderr *logging.OutputHandler
}

// New creates a new Supervisor in the Idle state.
func New(cfg Config) *Supervisor {
	waitDelay := cfg.WaitDelay
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}

	sink := cfg.Sink
	if sink == nil {
		sink = SinkFunc(func(relay.Event) {})
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Supervisor{
		builder:   cfg.Builder,
		sink:      sink,
		logger:    cfg.Logger,
		callbacks: cfg.Callbacks,
		waitDelay: waitDelay,
		verbose:   cfg.Verbose,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateIdle,
		runs:      make(map[*worker]struct{}),
	}
}

// Start launches the worker unless one is already running.
//
// A running worker yields an "already running" info event and
// ErrAlreadyRunning. Platform and spawn failures are logged and returned
// without emitting an event; the supervisor stays Idle.
// Start returns as soon as the process is spawned.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if prev := s.worker; prev != nil {
		if prev.alive() {
			s.logger.Debug("worker_already_running", "pid", prev.pid, "run", prev.run)
			s.sink.Emit(relay.Info(relay.MsgAlreadyRunning))
			return ErrAlreadyRunning
		}
		// Exited but its pipes are still draining: report the exit now so it
		// reaches endpoints before anything from the next run.
		prev.abortDrain()
		s.finishLocked(prev)
	}

	cmd, err := s.builder.BuildCommand(s.ctx)
	if err != nil {
		var upe *process.UnsupportedPlatformError
		if errors.As(err, &upe) {
			s.logger.Error("unsupported_platform", "platform", upe.Platform, "error", err)
		} else {
			s.logger.Error("worker_build_failed", "name", s.builder.Name(), "error", err)
		}
		s.spawnFailed(err)
		return err
	}

	stdout := logging.NewOutputHandler(StreamStdout, s.logger, s.verbose)
	stderr := logging.NewOutputHandler(StreamStderr, s.logger, s.verbose)
	w := newWorker(s.seq+1, cmd, stdout, stderr)

	readers, writers, err := openPipes()
	if err != nil {
		spawnErr := &SpawnError{Path: cmd.Path, Err: err}
		s.logger.Error("worker_spawn_failed", "path", cmd.Path, "error", err)
		s.spawnFailed(spawnErr)
		return spawnErr
	}
	cmd.Stdout = writers[0]
	cmd.Stderr = writers[1]
	setProcessGroup(cmd)

	err = cmd.Start()
	// The child holds its own copies of the write ends.
	closeFiles(writers)
	if err != nil {
		closeFiles(readers)
		spawnErr := &SpawnError{Path: cmd.Path, Err: err}
		s.logger.Error("worker_spawn_failed",
			"path", cmd.Path,
			"args", cmd.Args[1:],
			"error", err,
		)
		s.spawnFailed(spawnErr)
		return spawnErr
	}

	w.pid = cmd.Process.Pid
	w.startTime = time.Now()
	s.seq = w.run
	s.worker = w
	s.lastStderr = stderr
	w.pipes = readers
	w.readPipes(
		&streamWriter{s: s, w: w, stream: StreamStdout, tail: stdout},
		&streamWriter{s: s, w: w, stream: StreamStderr, tail: stderr},
	)
	s.runs[w] = struct{}{}
	s.setStateLocked(StateRunning)

	s.logger.Info("worker_started",
		"name", s.builder.Name(),
		"run", w.run,
		"pid", w.pid,
		"path", cmd.Path,
	)

	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(w.pid)
	}

	go s.wait(w)
	return nil
}

// Stop kills the running worker. It does not wait for the process to exit.
//
// A live worker is killed, its listeners are detached so nothing from that
// run reaches the sink afterwards, and "stopped" is emitted. Otherwise
// "not running" is emitted and ErrNotRunning returned.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	w := s.worker
	if w == nil || !w.alive() {
		s.sink.Emit(relay.Info(relay.MsgNotRunning))
		return ErrNotRunning
	}

	w.detach()
	if err := killProcess(w.cmd); err != nil {
		s.logger.Warn("worker_kill_failed", "pid", w.pid, "error", err)
	}
	s.worker = nil
	s.setStateLocked(StateIdle)

	s.logger.Info("worker_stopped", "run", w.run, "pid", w.pid, "uptime", time.Since(w.startTime).String())
	s.sink.Emit(relay.Info(relay.MsgStopped))
	return nil
}

// Teardown ends the hosting session: any live worker is killed and every
// listener detached, without emitting events. Later Start and Stop calls
// return ErrClosed. Safe to call more than once.
func (s *Supervisor) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	w := s.worker
	s.worker = nil
	runs := make([]*worker, 0, len(s.runs))
	for r := range s.runs {
		runs = append(runs, r)
	}
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	for _, r := range runs {
		r.detach()
		r.abortDrain()
	}

	if w != nil && w.alive() {
		if err := killProcess(w.cmd); err != nil {
			s.logger.Warn("worker_kill_failed", "pid", w.pid, "error", err)
		}
		s.logger.Info("worker_killed", "run", w.run, "pid", w.pid, "reason", "session_teardown")
	}

	s.cancel()
}

// WaitReaped blocks until every spawned worker has been reaped or ctx is done.
func (s *Supervisor) WaitReaped(ctx context.Context) error {
	s.mu.Lock()
	pending := make([]*worker, 0, len(s.runs))
	for r := range s.runs {
		pending = append(pending, r)
	}
	s.mu.Unlock()

	for _, r := range pending {
		select {
		case <-r.reaped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// wait reaps w, lets its pipes drain, then retires the run.
//
// The process state is read as soon as the process exits, so liveness and
// the exit code do not depend on descendants that keep the pipes open.
func (s *Supervisor) wait(w *worker) {
	w.cmd.Wait()
	w.exitCode.Store(int64(exitStatus(w.cmd.ProcessState)))
	w.uptime = time.Since(w.startTime)
	w.exited.Store(true)

	w.drain(s.waitDelay)

	s.mu.Lock()
	s.finishLocked(w)
	delete(s.runs, w)
	s.mu.Unlock()

	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(int(w.exitCode.Load()), w.uptime)
	}
	close(w.reaped)
}

// finishLocked retires an exited run exactly once: the handle is cleared
// and the exit event delivered, unless the run was detached by Stop or
// Teardown. Requires s.mu, so the event precedes any output of a later run.
func (s *Supervisor) finishLocked(w *worker) {
	if !w.finished.CompareAndSwap(false, true) {
		return
	}

	exitCode := int(w.exitCode.Load())
	w.stdout.Flush()
	w.stderr.Flush()

	if s.worker == w {
		s.worker = nil
		s.setStateLocked(StateIdle)
	}

	s.logger.Info("worker_exited",
		"run", w.run,
		"pid", w.pid,
		"exit_code", exitCode,
		"uptime", w.uptime.String(),
		"stdout_lines", w.stdout.Lines(),
		"stderr_lines", w.stderr.Lines(),
		"stderr_tail", w.stderr.RecentLines(5),
	)

	w.deliverLast(s.sink, relay.Exit(exitCode))
}

func (s *Supervisor) spawnFailed(err error) {
	if s.callbacks.OnSpawnFailed != nil {
		s.callbacks.OnSpawnFailed(err)
	}
}

// setStateLocked updates the state and calls the callback. Requires s.mu.
func (s *Supervisor) setStateLocked(newState State) {
	oldState := s.state
	s.state = newState

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(oldState, newState)
	}
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Worker returns a snapshot of the live worker handle, if any.
func (s *Supervisor) Worker() (WorkerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.worker == nil || !s.worker.alive() {
		return WorkerInfo{}, false
	}
	return WorkerInfo{
		Run:       s.worker.run,
		PID:       s.worker.pid,
		StartTime: s.worker.startTime,
	}, true
}

// Runs returns how many workers have been spawned so far.
func (s *Supervisor) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// StderrTail returns up to n of the last stderr lines of the most recent run.
func (s *Supervisor) StderrTail(n int) []string {
	s.mu.Lock()
	h := s.lastStderr
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	return h.RecentLines(n)
}

// Uptime returns the current uptime if running, or 0 if not.
func (s *Supervisor) Uptime() time.Duration {
	info, ok := s.Worker()
	if !ok {
		return 0
	}
	return time.Since(info.StartTime)
}

// openPipes creates the stdout and stderr pipes for one run.
func openPipes() (readers, writers []*os.File, err error) {
	for i := 0; i < 2; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			closeFiles(readers)
			closeFiles(writers)
			return nil, nil, err
		}
		readers = append(readers, r)
		writers = append(writers, w)
	}
	return readers, writers, nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}

var _ relay.Controller = (*Supervisor)(nil)
