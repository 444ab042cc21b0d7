package supervisor

import (
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-ceci-shell/internal/logging"
	"github.com/randomizedcoder/go-ceci-shell/internal/relay"
)

// Stream names used in logs and callbacks.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// worker is the handle of one spawned process.
//
// Deliveries from its listeners go through deliver; once detach returns no
// further event from this run can reach the sink.
type worker struct {
	run       int
	cmd       *exec.Cmd
	pid       int
	startTime time.Time

	stdout *logging.OutputHandler
	stderr *logging.OutputHandler

	mu       sync.Mutex
	detached bool

	// pipes are the read ends of the worker's stdout and stderr.
	pipes     []*os.File
	drained   chan struct{}
	abortOnce sync.Once

	// uptime is written before exited is set.
	uptime   time.Duration
	exited   atomic.Bool
	exitCode atomic.Int64
	finished atomic.Bool
	reaped   chan struct{}
}

func newWorker(run int, cmd *exec.Cmd, stdout, stderr *logging.OutputHandler) *worker {
	return &worker{
		run:     run,
		cmd:     cmd,
		stdout:  stdout,
		stderr:  stderr,
		drained: make(chan struct{}),
		reaped:  make(chan struct{}),
	}
}

// readPipes copies each pipe into its writer until EOF, then closes drained.
func (w *worker) readPipes(writers ...io.Writer) {
	var wg sync.WaitGroup
	for i, f := range w.pipes {
		wg.Add(1)
		go func(f *os.File, dst io.Writer) {
			defer wg.Done()
			defer f.Close()
			copyChunks(dst, f)
		}(f, writers[i])
	}
	go func() {
		wg.Wait()
		close(w.drained)
	}()
}

// copyChunks hands every read to dst as its own chunk.
func copyChunks(dst io.Writer, src io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			dst.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// drain waits up to d for the pipes to reach EOF after the process exited.
// Descendants that inherited the pipes can hold them open; the read ends are
// then closed and whatever they write later is lost.
func (w *worker) drain(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.drained:
		return
	case <-timer.C:
	}

	w.abortDrain()
	select {
	case <-w.drained:
	case <-time.After(time.Second):
	}
}

// abortDrain unblocks pending pipe reads.
func (w *worker) abortDrain() {
	w.abortOnce.Do(func() {
		for _, f := range w.pipes {
			f.SetReadDeadline(time.Now())
			f.Close()
		}
	})
}

// deliver forwards ev to sink unless the run has been detached.
func (w *worker) deliver(sink Sink, ev relay.Event) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.detached {
		return false
	}
	sink.Emit(ev)
	return true
}

// deliverLast forwards ev unless detached, then detaches, so nothing from
// this run can follow ev.
func (w *worker) deliverLast(sink Sink, ev relay.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.detached {
		sink.Emit(ev)
	}
	w.detached = true
}

// detach blocks until any in-flight delivery finishes.
func (w *worker) detach() {
	w.mu.Lock()
	w.detached = true
	w.mu.Unlock()
}

// alive reports whether the process has not exited yet. Pipes may still be
// draining after it turns false.
func (w *worker) alive() bool {
	return !w.exited.Load()
}

// streamWriter receives the chunks read from one worker pipe. Each Write is
// one chunk as read from the OS pipe and is forwarded verbatim.
type streamWriter struct {
	s      *Supervisor
	w      *worker
	stream string
	tail   *logging.OutputHandler
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	text := string(p)

	if sw.tail != nil {
		sw.tail.Write(p)
	}

	var ev relay.Event
	if sw.stream == StreamStderr {
		ev = relay.Stderr(text)
	} else {
		ev = relay.Stdout(text)
	}

	if sw.w.deliver(sw.s.sink, ev) && sw.s.callbacks.OnOutput != nil {
		sw.s.callbacks.OnOutput(sw.stream, len(p))
	}

	// Always report success: a detached run must not see EPIPE.
	return len(p), nil
}
