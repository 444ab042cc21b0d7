package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-ceci-shell/internal/relay"
)

// Endpoint delivers relay events into a running Bubble Tea program.
//
// It is alive from Attach until Close; once the program has exited the
// relay drops it on the next publish.
type Endpoint struct {
	id string

	mu      sync.RWMutex
	program *tea.Program
	closed  bool
}

// NewEndpoint creates an unattached endpoint.
func NewEndpoint(id string) *Endpoint {
	return &Endpoint{id: id}
}

// Attach binds the endpoint to a program.
func (e *Endpoint) Attach(p *tea.Program) {
	e.mu.Lock()
	e.program = p
	e.mu.Unlock()
}

// Close marks the endpoint dead. Call it when the program has returned.
func (e *Endpoint) Close() {
	e.mu.Lock()
	e.closed = true
	e.program = nil
	e.mu.Unlock()
}

// ID returns the endpoint id.
func (e *Endpoint) ID() string { return e.id }

// Alive reports whether the program is attached and running.
func (e *Endpoint) Alive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.program != nil && !e.closed
}

// Deliver sends ev to the program. Send returns without delivering once
// the program has shut down.
func (e *Endpoint) Deliver(ev relay.Event) error {
	e.mu.RLock()
	p, closed := e.program, e.closed
	e.mu.RUnlock()

	if closed || p == nil {
		return relay.ErrEndpointClosed
	}
	p.Send(EventMsg{Event: ev})
	return nil
}

var _ relay.Endpoint = (*Endpoint)(nil)
