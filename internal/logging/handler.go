package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept per stream.
	MaxBufferedLines = 100
)

// OutputHandler mirrors one worker output stream onto the diagnostic log.
//
// Chunks arrive with arbitrary boundaries; OutputHandler reassembles them
// into lines, keeps the most recent ones for the exit summary, and logs them
// at a level derived from their content.
type OutputHandler struct {
	stream  string
	logger  *slog.Logger
	verbose bool

	mu      sync.Mutex
	partial []byte
	buffer  []string
	bufIdx  int
	lines   int64
}

// NewOutputHandler creates a handler for stream ("stdout" or "stderr").
func NewOutputHandler(stream string, logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		stream:  stream,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// Write consumes a raw chunk. It never fails.
func (h *OutputHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.partial = append(h.partial, p...)
	var complete []string
	for {
		i := bytes.IndexByte(h.partial, '\n')
		if i < 0 {
			break
		}
		complete = append(complete, strings.TrimRight(string(h.partial[:i]), "\r"))
		h.partial = h.partial[i+1:]
	}
	// Unterminated output still has to be bounded.
	if len(h.partial) > MaxLineLength {
		complete = append(complete, string(h.partial))
		h.partial = nil
	}
	h.mu.Unlock()

	for _, line := range complete {
		h.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles any buffered partial line.
func (h *OutputHandler) Flush() {
	h.mu.Lock()
	rest := string(h.partial)
	h.partial = nil
	h.mu.Unlock()

	if rest != "" {
		h.HandleLine(rest)
	}
}

// HandleLine processes a single line of worker output.
func (h *OutputHandler) HandleLine(line string) {
	// Truncate if too long
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.lines++
	h.mu.Unlock()

	h.logLine(line)
}

func (h *OutputHandler) logLine(line string) {
	level := classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(nil, level, "worker_output",
		"stream", h.stream,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "panic") ||
		strings.Contains(lower, "fatal") ||
		strings.Contains(lower, "error") ||
		strings.Contains(lower, "failed") {
		return slog.LevelWarn
	}

	if strings.Contains(lower, "[warn") ||
		strings.Contains(lower, "warning") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)

	// Read from circular buffer in order
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// Lines returns the number of complete lines seen.
func (h *OutputHandler) Lines() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lines
}
