package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-ceci-shell/internal/relay"
	"github.com/randomizedcoder/go-ceci-shell/internal/supervisor"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically with a fresh worker snapshot.
type TickMsg struct {
	Time   time.Time
	Status Status
}

// EventMsg carries one relay event into the update loop.
type EventMsg struct {
	Event relay.Event
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// commandSentMsg reports that a command reached the dispatcher.
type commandSentMsg struct {
	kind relay.CommandKind
	ok   bool
}

// =============================================================================
// Model
// =============================================================================

// Status is a point-in-time view of the worker.
type Status struct {
	Running   bool
	PID       int
	StartTime time.Time
	Runs      int
}

// StatusSource provides worker snapshots. *supervisor.Supervisor implements it.
//
// It is only ever called from command goroutines, never from Update, so a
// supervisor blocked on delivering an event to this program cannot deadlock
// against it.
type StatusSource interface {
	Worker() (supervisor.WorkerInfo, bool)
	Runs() int
}

// streamKinds are the event types carrying worker output.
var streamKinds = []relay.EventType{relay.EventStdout, relay.EventStderr}

// line is one rendered row of the output pane.
type line struct {
	kind relay.EventType
	text string
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	platform     string
	resourceRoot string
	metricsAddr  string
	scrollback   int

	// Command routing
	commands chan<- relay.Command
	replyTo  relay.Endpoint
	done     <-chan struct{}
	source   StatusSource

	// Current state
	status     Status
	lastInfo   string
	lastExit   *int
	lines      []line
	partial    map[relay.EventType]string
	startTime  time.Time
	lastUpdate time.Time

	// Display options
	width  int
	height int

	// Quit flag
	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Platform     string
	ResourceRoot string
	MetricsAddr  string
	Scrollback   int

	// Commands receives start/stop requests, tagged with ReplyTo.
	Commands chan<- relay.Command
	ReplyTo  relay.Endpoint

	// Done aborts pending command sends once the dispatcher has stopped.
	Done <-chan struct{}

	Source StatusSource
}

// DefaultScrollback is used when Config.Scrollback is not positive.
const DefaultScrollback = 500

// New creates a new TUI model.
func New(cfg Config) Model {
	scrollback := cfg.Scrollback
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}

	return Model{
		platform:     cfg.Platform,
		resourceRoot: cfg.ResourceRoot,
		metricsAddr:  cfg.MetricsAddr,
		scrollback:   scrollback,
		commands:     cfg.Commands,
		replyTo:      cfg.ReplyTo,
		done:         cfg.Done,
		source:       cfg.Source,
		partial:      make(map[relay.EventType]string),
		startTime:    time.Now(),
		lastUpdate:   time.Now(),
		width:        80,
		height:       24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return m.tickCmd(0)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "s":
			return m, m.sendCommand(relay.StartRequested)
		case "x":
			return m, m.sendCommand(relay.StopRequested)
		case "c":
			m.lines = nil
			m.partial = make(map[relay.EventType]string)
			return m, nil
		case "r":
			// Force refresh
			return m, m.tickCmd(0)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.status = msg.Status
		m.lastUpdate = msg.Time
		return m, m.tickCmd(500 * time.Millisecond)

	case EventMsg:
		m.applyEvent(msg.Event)
		m.lastUpdate = time.Now()
		return m, nil

	case commandSentMsg:
		if !msg.ok {
			m.lastInfo = fmt.Sprintf("%s not delivered: session closing", msg.kind)
		}
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Event handling
// =============================================================================

// applyEvent folds one relay event into the model.
func (m *Model) applyEvent(ev relay.Event) {
	switch ev.Type {
	case relay.EventStdout, relay.EventStderr:
		m.appendChunk(ev.Type, ev.Text())

	case relay.EventInfo:
		m.lastInfo = ev.Text()
		m.appendLine(line{kind: relay.EventInfo, text: ev.Text()})
		if ev.Text() == relay.MsgStopped {
			m.flushPartials()
			m.status.Running = false
			m.status.PID = 0
		}

	case relay.EventExit:
		m.flushPartials()
		code, _ := ev.Code()
		m.lastExit = &code
		m.status.Running = false
		m.status.PID = 0
		m.appendLine(line{kind: relay.EventExit, text: fmt.Sprintf("exited with code %d", code)})
	}
}

// appendChunk splits a verbatim chunk into lines, carrying any unterminated
// tail over to the next chunk of the same stream.
func (m *Model) appendChunk(kind relay.EventType, chunk string) {
	text := m.partial[kind] + chunk
	parts := strings.Split(text, "\n")
	for _, p := range parts[:len(parts)-1] {
		m.appendLine(line{kind: kind, text: strings.TrimSuffix(p, "\r")})
	}
	m.partial[kind] = parts[len(parts)-1]
}

func (m *Model) flushPartials() {
	for _, kind := range streamKinds {
		if p := m.partial[kind]; p != "" {
			m.appendLine(line{kind: kind, text: p})
		}
		delete(m.partial, kind)
	}
}

func (m *Model) appendLine(l line) {
	m.lines = append(m.lines, l)
	if over := len(m.lines) - m.scrollback; over > 0 {
		m.lines = append(m.lines[:0:0], m.lines[over:]...)
	}
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that snapshots the worker after d.
// The snapshot runs in the command goroutine, off the update loop.
func (m Model) tickCmd(d time.Duration) tea.Cmd {
	source := m.source
	snapshot := func(t time.Time) tea.Msg {
		return TickMsg{Time: t, Status: snapshotStatus(source)}
	}
	if d <= 0 {
		return func() tea.Msg { return snapshot(time.Now()) }
	}
	return tea.Tick(d, snapshot)
}

// sendCommand forwards a command to the dispatcher from a command goroutine.
func (m Model) sendCommand(kind relay.CommandKind) tea.Cmd {
	commands, replyTo, done := m.commands, m.replyTo, m.done
	if commands == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case commands <- relay.Command{Kind: kind, ReplyTo: replyTo}:
			return commandSentMsg{kind: kind, ok: true}
		case <-done:
			return commandSentMsg{kind: kind, ok: false}
		}
	}
}

func snapshotStatus(source StatusSource) Status {
	if source == nil {
		return Status{}
	}
	st := Status{Runs: source.Runs()}
	if info, ok := source.Worker(); ok {
		st.Running = true
		st.PID = info.PID
		st.StartTime = info.StartTime
	}
	return st
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the session started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Uptime returns the running worker's uptime, or 0 when idle.
func (m Model) Uptime() time.Duration {
	if !m.status.Running || m.status.StartTime.IsZero() {
		return 0
	}
	return time.Since(m.status.StartTime)
}

// Lines returns the output pane contents, oldest first, including any
// unterminated stdout/stderr tail.
func (m Model) Lines() []string {
	out := make([]string, 0, len(m.lines)+2)
	for _, l := range m.lines {
		out = append(out, l.text)
	}
	for _, kind := range streamKinds {
		if p := m.partial[kind]; p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
