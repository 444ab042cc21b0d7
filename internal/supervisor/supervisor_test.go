//go:build !windows

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/randomizedcoder/go-ceci-shell/internal/process"
	"github.com/randomizedcoder/go-ceci-shell/internal/relay"
)

// =============================================================================
// Mock Builder for testing
// =============================================================================

// mockBuilder implements Builder for testing.
type mockBuilder struct {
	mu      sync.Mutex
	buildFn func(ctx context.Context) (*exec.Cmd, error)
	builds  int
}

func (m *mockBuilder) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	m.mu.Lock()
	m.builds++
	fn := m.buildFn
	m.mu.Unlock()
	return fn(ctx)
}

func (m *mockBuilder) Name() string { return "mock" }

func (m *mockBuilder) Builds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builds
}

func (m *mockBuilder) set(fn func(ctx context.Context) (*exec.Cmd, error)) {
	m.mu.Lock()
	m.buildFn = fn
	m.mu.Unlock()
}

// newShellBuilder creates a builder that runs script with sh -c.
func newShellBuilder(script string) *mockBuilder {
	return &mockBuilder{
		buildFn: func(ctx context.Context) (*exec.Cmd, error) {
			return exec.CommandContext(ctx, "sh", "-c", script), nil
		},
	}
}

// =============================================================================
// Event recorder
// =============================================================================

type recorder struct {
	mu     sync.Mutex
	events []relay.Event
}

func (r *recorder) Emit(ev relay.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) Events() []relay.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]relay.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(typ relay.EventType) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) text(typ relay.EventType) string {
	var sb strings.Builder
	for _, ev := range r.Events() {
		if ev.Type == typ {
			sb.WriteString(ev.Text())
		}
	}
	return sb.String()
}

func (r *recorder) infos() []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Type == relay.EventInfo {
			out = append(out, ev.Text())
		}
	}
	return out
}

// =============================================================================
// Test Helpers
// =============================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSupervisor(b Builder, rec *recorder, cb Callbacks) *Supervisor {
	return New(Config{
		Builder:   b,
		Sink:      rec,
		Logger:    newTestLogger(),
		Callbacks: cb,
		WaitDelay: 500 * time.Millisecond,
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitReaped(t *testing.T, s *Supervisor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitReaped(ctx); err != nil {
		t.Fatalf("WaitReaped: %v", err)
	}
}

// =============================================================================
// Tests: New / State
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	s := New(Config{Builder: newShellBuilder("true"), Logger: newTestLogger()})

	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}
	if s.waitDelay != DefaultWaitDelay {
		t.Errorf("waitDelay = %v, want %v", s.waitDelay, DefaultWaitDelay)
	}
	if _, ok := s.Worker(); ok {
		t.Error("Worker() should report no handle")
	}
	if s.Uptime() != 0 {
		t.Error("Uptime() should be 0 when idle")
	}

	// A nil sink must be tolerated.
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop() = %v, want ErrNotRunning", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// =============================================================================
// Tests: Start / exit
// =============================================================================

func TestStart_StdoutThenExit(t *testing.T) {
	rec := &recorder{}
	s := newTestSupervisor(newShellBuilder(`printf 'loading\n'`), rec, Callbacks{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, "exit event", func() bool { return rec.count(relay.EventExit) == 1 })

	if got := rec.text(relay.EventStdout); got != "loading\n" {
		t.Errorf("stdout = %q, want %q", got, "loading\n")
	}

	events := rec.Events()
	last := events[len(events)-1]
	if code, ok := last.Code(); last.Type != relay.EventExit || !ok || code != 0 {
		t.Errorf("last event = %+v, want exit 0", last)
	}

	waitReaped(t, s)
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle after exit", s.State())
	}
	if rec.count(relay.EventExit) != 1 {
		t.Errorf("exit events = %d, want exactly 1", rec.count(relay.EventExit))
	}
}

func TestStart_Stderr(t *testing.T) {
	rec := &recorder{}
	s := newTestSupervisor(newShellBuilder(`echo oops >&2`), rec, Callbacks{})
	if tail := s.StderrTail(5); tail != nil {
		t.Errorf("StderrTail before any run = %q", tail)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "exit event", func() bool { return rec.count(relay.EventExit) == 1 })

	if got := rec.text(relay.EventStderr); got != "oops\n" {
		t.Errorf("stderr = %q, want %q", got, "oops\n")
	}
	if rec.count(relay.EventStdout) != 0 {
		t.Error("no stdout expected")
	}
	if tail := s.StderrTail(5); len(tail) != 1 || tail[0] != "oops" {
		t.Errorf("StderrTail() = %q, want [oops]", tail)
	}
}

func TestStart_ExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"clean", "exit 0", 0},
		{"failure", "exit 3", 3},
		{"killed", "kill -9 $$", 137},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			var exitCode atomic.Int64
			exitCode.Store(-1)
			s := newTestSupervisor(newShellBuilder(tt.script), rec, Callbacks{
				OnExit: func(code int, _ time.Duration) { exitCode.Store(int64(code)) },
			})

			if err := s.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			waitFor(t, "exit event", func() bool { return rec.count(relay.EventExit) == 1 })
			waitReaped(t, s)

			ev := rec.Events()[len(rec.Events())-1]
			if code, _ := ev.Code(); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
			if got := int(exitCode.Load()); got != tt.want {
				t.Errorf("OnExit code = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStart_TwiceWhileRunning(t *testing.T) {
	rec := &recorder{}
	b := newShellBuilder("sleep 10")
	s := newTestSupervisor(b, rec, Callbacks{})
	defer s.Teardown()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, ok := s.Worker()
	if !ok || first.PID <= 0 {
		t.Fatalf("Worker() = %+v, %v", first, ok)
	}

	for i := 0; i < 3; i++ {
		if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
			t.Fatalf("Start() #%d = %v, want ErrAlreadyRunning", i+2, err)
		}
	}

	if got := rec.infos(); len(got) != 3 || got[0] != relay.MsgAlreadyRunning {
		t.Errorf("info events = %q, want 3x %q", got, relay.MsgAlreadyRunning)
	}
	second, _ := s.Worker()
	if second != first {
		t.Errorf("handle changed: %+v -> %+v", first, second)
	}
	if b.Builds() != 1 {
		t.Errorf("builds = %d, want 1", b.Builds())
	}
	if s.Runs() != 1 {
		t.Errorf("Runs() = %d, want 1", s.Runs())
	}
	if !relay.IsSoft(ErrAlreadyRunning) {
		t.Error("ErrAlreadyRunning must be soft")
	}
}

func TestStart_ConcurrentCallsSpawnOnce(t *testing.T) {
	rec := &recorder{}
	b := newShellBuilder("sleep 10")
	s := newTestSupervisor(b, rec, Callbacks{})
	defer s.Teardown()

	const callers = 10
	var wg sync.WaitGroup
	var started, already atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch err := s.Start(context.Background()); {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrAlreadyRunning):
				already.Add(1)
			}
		}()
	}
	wg.Wait()

	if started.Load() != 1 || already.Load() != callers-1 {
		t.Errorf("started=%d already=%d, want 1 and %d", started.Load(), already.Load(), callers-1)
	}
	if b.Builds() != 1 {
		t.Errorf("builds = %d, want 1", b.Builds())
	}
}

func TestStart_RestartAfterExit(t *testing.T) {
	rec := &recorder{}
	s := newTestSupervisor(newShellBuilder("echo run"), rec, Callbacks{})

	for i := 1; i <= 2; i++ {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
		waitFor(t, "exit event", func() bool { return rec.count(relay.EventExit) == i })
		waitReaped(t, s)
		if s.State() != StateIdle {
			t.Fatalf("State() after run %d = %v", i, s.State())
		}
	}

	if s.Runs() != 2 {
		t.Errorf("Runs() = %d, want 2", s.Runs())
	}
}

func TestStart_CancelledContext(t *testing.T) {
	rec := &recorder{}
	b := newShellBuilder("true")
	s := newTestSupervisor(b, rec, Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
	if b.Builds() != 0 {
		t.Error("no command should be built")
	}
}

// =============================================================================
// Tests: launch failures
// =============================================================================

func TestStart_UnsupportedPlatform(t *testing.T) {
	rec := &recorder{}
	var failures []error
	runner := process.NewCeciRunner(&process.CeciConfig{ResourceRoot: t.TempDir(), Platform: "linux"})
	s := newTestSupervisor(runner, rec, Callbacks{
		OnSpawnFailed: func(err error) { failures = append(failures, err) },
		OnStart:       func(int) { t.Error("OnStart must not be called") },
	})

	err := s.Start(context.Background())
	var upe *process.UnsupportedPlatformError
	if !errors.As(err, &upe) {
		t.Fatalf("Start() = %v, want UnsupportedPlatformError", err)
	}
	if relay.IsSoft(err) {
		t.Error("unsupported platform must not be soft")
	}
	if len(rec.Events()) != 0 {
		t.Errorf("events = %v, want none", rec.Events())
	}
	if s.State() != StateIdle || s.Runs() != 0 {
		t.Errorf("State=%v Runs=%d, want idle and 0", s.State(), s.Runs())
	}
	if len(failures) != 1 {
		t.Errorf("OnSpawnFailed calls = %d, want 1", len(failures))
	}
}

func TestStart_SpawnFailureThenRecovery(t *testing.T) {
	rec := &recorder{}
	missing := filepath.Join(t.TempDir(), "darwin", "openceci")
	b := &mockBuilder{buildFn: func(ctx context.Context) (*exec.Cmd, error) {
		return exec.CommandContext(ctx, missing), nil
	}}
	s := newTestSupervisor(b, rec, Callbacks{})

	err := s.Start(context.Background())
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Start() = %v, want SpawnError", err)
	}
	if spawnErr.Path != missing {
		t.Errorf("SpawnError.Path = %q, want %q", spawnErr.Path, missing)
	}
	if spawnErr.Unwrap() == nil || !strings.Contains(err.Error(), "spawn") {
		t.Errorf("SpawnError = %v", err)
	}
	if s.State() != StateIdle || len(rec.Events()) != 0 {
		t.Fatal("spawn failure must leave supervisor idle with no events")
	}

	b.set(func(ctx context.Context) (*exec.Cmd, error) {
		return exec.CommandContext(ctx, "sh", "-c", "true"), nil
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() after failure = %v", err)
	}
	waitFor(t, "exit event", func() bool { return rec.count(relay.EventExit) == 1 })
}

func TestStart_BuildError(t *testing.T) {
	rec := &recorder{}
	buildErr := errors.New("no resources")
	b := &mockBuilder{buildFn: func(context.Context) (*exec.Cmd, error) { return nil, buildErr }}
	s := newTestSupervisor(b, rec, Callbacks{})

	if err := s.Start(context.Background()); !errors.Is(err, buildErr) {
		t.Errorf("Start() = %v, want %v", err, buildErr)
	}
	if s.State() != StateIdle {
		t.Error("build error must leave supervisor idle")
	}
}

// =============================================================================
// Tests: Stop
// =============================================================================

func TestStop_WhenIdle(t *testing.T) {
	rec := &recorder{}
	b := newShellBuilder("true")
	s := newTestSupervisor(b, rec, Callbacks{})

	for i := 0; i < 3; i++ {
		if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
			t.Fatalf("Stop() = %v, want ErrNotRunning", err)
		}
	}

	got := rec.infos()
	if len(got) != 3 {
		t.Fatalf("info events = %q, want 3", got)
	}
	for _, msg := range got {
		if msg != relay.MsgNotRunning {
			t.Errorf("info = %q, want %q", msg, relay.MsgNotRunning)
		}
	}
	if b.Builds() != 0 || s.State() != StateIdle {
		t.Error("Stop on idle must have no side effects")
	}
}

func TestStop_KillsAndDetaches(t *testing.T) {
	rec := &recorder{}
	var exits atomic.Int32
	s := newTestSupervisor(newShellBuilder("echo up; sleep 10"), rec, Callbacks{
		OnExit: func(int, time.Duration) { exits.Add(1) },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first stdout", func() bool { return rec.count(relay.EventStdout) > 0 })

	start := time.Now()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Stop() must not wait for the worker to exit")
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}

	waitReaped(t, s)

	if got := rec.infos(); len(got) != 1 || got[0] != relay.MsgStopped {
		t.Errorf("info events = %q, want [%q]", got, relay.MsgStopped)
	}
	if rec.count(relay.EventExit) != 0 {
		t.Error("a stopped worker must not produce an exit event")
	}
	if exits.Load() != 1 {
		t.Errorf("OnExit calls = %d, want 1", exits.Load())
	}

	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop() = %v, want ErrNotRunning", err)
	}
}

func TestStop_ThenStartNewWorker(t *testing.T) {
	rec := &recorder{}
	s := newTestSupervisor(newShellBuilder("sleep 10"), rec, Callbacks{})
	defer s.Teardown()

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, _ := s.Worker()
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Stop() = %v", err)
	}
	second, ok := s.Worker()
	if !ok || second.PID == first.PID || second.Run != 2 {
		t.Errorf("second worker = %+v, first = %+v", second, first)
	}
}

// =============================================================================
// Tests: Teardown
// =============================================================================

func TestTeardown_WhileRunning(t *testing.T) {
	rec := &recorder{}
	s := newTestSupervisor(newShellBuilder("while true; do echo tick; sleep 0.02; done"), rec, Callbacks{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	info, _ := s.Worker()
	waitFor(t, "output", func() bool { return rec.count(relay.EventStdout) > 0 })

	s.Teardown()
	seen := len(rec.Events())

	waitReaped(t, s)
	time.Sleep(100 * time.Millisecond)

	if got := len(rec.Events()); got != seen {
		t.Errorf("events after teardown: %d -> %d", seen, got)
	}
	if rec.count(relay.EventExit) != 0 || len(rec.infos()) != 0 {
		t.Error("teardown must not emit events")
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}
	if proc, err := os.FindProcess(info.PID); err == nil {
		// Signal 0 probes for existence on unix; a reaped pid reports an error.
		if err := proc.Signal(syscallZero()); err == nil {
			t.Errorf("worker pid %d still alive after teardown", info.PID)
		}
	}

	if err := s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Teardown = %v, want ErrClosed", err)
	}
	if err := s.Stop(); !errors.Is(err, ErrClosed) {
		t.Errorf("Stop() after Teardown = %v, want ErrClosed", err)
	}
	if len(rec.Events()) != seen {
		t.Error("calls after teardown must not emit events")
	}

	s.Teardown()
}

func TestTeardown_Idle(t *testing.T) {
	rec := &recorder{}
	s := newTestSupervisor(newShellBuilder("true"), rec, Callbacks{})
	s.Teardown()
	if len(rec.Events()) != 0 {
		t.Error("teardown on idle must be silent")
	}
}

// =============================================================================
// Tests: Callbacks
// =============================================================================

func TestCallbacks(t *testing.T) {
	rec := &recorder{}
	var mu sync.Mutex
	var transitions []string
	var pid atomic.Int64
	var outBytes atomic.Int64

	s := newTestSupervisor(newShellBuilder("printf abc; printf de >&2"), rec, Callbacks{
		OnStateChange: func(o, n State) {
			mu.Lock()
			transitions = append(transitions, fmt.Sprintf("%s->%s", o, n))
			mu.Unlock()
		},
		OnStart:  func(p int) { pid.Store(int64(p)) },
		OnOutput: func(_ string, n int) { outBytes.Add(int64(n)) },
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "exit", func() bool { return rec.count(relay.EventExit) == 1 })
	waitReaped(t, s)

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || transitions[0] != "idle->running" || transitions[1] != "running->idle" {
		t.Errorf("transitions = %v", transitions)
	}
	if pid.Load() <= 0 {
		t.Error("OnStart should receive the pid")
	}
	if outBytes.Load() != 5 {
		t.Errorf("output bytes = %d, want 5", outBytes.Load())
	}
}

// =============================================================================
// Tests: worker exit while a descendant holds the output pipes
// =============================================================================

// newLingeringSupervisor runs script with a short drain window and kills the
// worker's process group when the test ends.
func newLingeringSupervisor(t *testing.T, b Builder, rec *recorder, waitDelay time.Duration) *Supervisor {
	t.Helper()
	var pgid atomic.Int64
	s := New(Config{
		Builder:   b,
		Sink:      rec,
		Logger:    newTestLogger(),
		WaitDelay: waitDelay,
		Callbacks: Callbacks{
			OnStart: func(pid int) {
				if pgid.Load() == 0 {
					pgid.Store(int64(pid))
				}
			},
		},
	})
	t.Cleanup(func() {
		if pid := int(pgid.Load()); pid > 0 {
			syscall.Kill(-pid, syscall.SIGKILL)
		}
		s.Teardown()
	})
	return s
}

func exitIndexes(events []relay.Event) []int {
	var out []int
	for i, ev := range events {
		if ev.Type == relay.EventExit {
			out = append(out, i)
		}
	}
	return out
}

func TestExit_LingeringDescendant(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   int
	}{
		{"clean", "sleep 3 & exit 0", 0},
		{"failure", "sleep 3 & exit 4", 4},
		{"after output", "sleep 3 & echo up; exit 0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			s := newLingeringSupervisor(t, newShellBuilder(tt.script), rec, 300*time.Millisecond)

			start := time.Now()
			if err := s.Start(context.Background()); err != nil {
				t.Fatal(err)
			}
			waitFor(t, "exit event", func() bool { return rec.count(relay.EventExit) == 1 })
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("exit delivered after %v, want it bounded by the drain window", elapsed)
			}

			ev := rec.Events()[exitIndexes(rec.Events())[0]]
			if code, _ := ev.Code(); code != tt.want {
				t.Errorf("exit code = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestExitStatus_NoState(t *testing.T) {
	if got := exitStatus(nil); got != 1 {
		t.Errorf("exitStatus(nil) = %d, want 1", got)
	}
}

func TestStop_AfterExitWhileDraining(t *testing.T) {
	rec := &recorder{}
	s := newLingeringSupervisor(t, newShellBuilder("sleep 5 & echo $$; exit 0"), rec, 2*time.Second)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first stdout", func() bool { return rec.count(relay.EventStdout) > 0 })
	waitFor(t, "worker exit", func() bool {
		_, ok := s.Worker()
		return !ok
	})

	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop() = %v, want ErrNotRunning", err)
	}
	if got := rec.infos(); len(got) != 1 || got[0] != relay.MsgNotRunning {
		t.Errorf("info events = %q, want [%q]", got, relay.MsgNotRunning)
	}

	waitReaped(t, s)

	idx := exitIndexes(rec.Events())
	if len(idx) != 1 {
		t.Fatalf("exit events = %d, want 1", len(idx))
	}
	if code, _ := rec.Events()[idx[0]].Code(); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestStart_AfterExitWhileDraining(t *testing.T) {
	rec := &recorder{}
	b := newShellBuilder("sleep 5 & echo first; exit 0")
	s := newLingeringSupervisor(t, b, rec, 3*time.Second)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first stdout", func() bool { return rec.count(relay.EventStdout) > 0 })
	waitFor(t, "worker exit", func() bool {
		_, ok := s.Worker()
		return !ok
	})

	b.set(func(ctx context.Context) (*exec.Cmd, error) {
		return exec.CommandContext(ctx, "sh", "-c", "echo second"), nil
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second Start() = %v", err)
	}
	waitFor(t, "second exit", func() bool { return rec.count(relay.EventExit) == 2 })
	waitReaped(t, s)

	events := rec.Events()
	idx := exitIndexes(events)
	if len(idx) != 2 {
		t.Fatalf("exit events = %d, want 2", len(idx))
	}
	secondOut := -1
	for i, ev := range events {
		if ev.Type == relay.EventStdout && strings.Contains(ev.Text(), "second") {
			secondOut = i
			break
		}
	}
	if secondOut < 0 {
		t.Fatal("second run produced no stdout")
	}
	if idx[0] > secondOut {
		t.Errorf("first run's exit (event %d) arrived after the second run's stdout (event %d)", idx[0], secondOut)
	}
	if got := rec.infos(); len(got) != 0 {
		t.Errorf("info events = %q, want none", got)
	}
}

// =============================================================================
// Tests: launch contract end to end
// =============================================================================

func TestStart_DarwinLaunchContract(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "darwin"), 0o755); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\necho \"$@\"\necho cwd=$(pwd)\n"
	if err := os.WriteFile(filepath.Join(root, "darwin", "openceci"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	runner := process.NewCeciRunner(&process.CeciConfig{ResourceRoot: root, Platform: process.PlatformDarwin})
	s := newTestSupervisor(runner, rec, Callbacks{})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	waitFor(t, "exit", func() bool { return rec.count(relay.EventExit) == 1 })

	out := rec.text(relay.EventStdout)
	if want := "-conf " + filepath.Join(root, "ceci.yaml"); !strings.Contains(out, want) {
		t.Errorf("stdout = %q, want it to contain %q", out, want)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil && !strings.Contains(out, "cwd="+resolved) && !strings.Contains(out, "cwd="+root) {
		t.Errorf("worker should run in the resource root, stdout = %q", out)
	}
}
