// Package console is the headless session UI: worker events are printed to
// plain writers and commands are read line by line from an input stream.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/randomizedcoder/go-ceci-shell/internal/relay"
)

// Quit words end the session.
var quitWords = map[string]bool{"quit": true, "exit": true, "q": true}

// Console is a relay.Endpoint writing to out and errOut.
//
// Worker stdout and stderr are written verbatim; info and exit events are
// written to out as tagged lines.
type Console struct {
	id string

	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	closed bool
}

// New creates a console endpoint.
func New(id string, out, errOut io.Writer) *Console {
	return &Console{id: id, out: out, errOut: errOut}
}

// ID returns the endpoint id.
func (c *Console) ID() string { return c.id }

// Alive reports whether the console still accepts events.
func (c *Console) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close stops further deliveries.
func (c *Console) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Deliver writes ev.
func (c *Console) Deliver(ev relay.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return relay.ErrEndpointClosed
	}

	var err error
	switch ev.Type {
	case relay.EventStdout:
		_, err = io.WriteString(c.out, ev.Text())
	case relay.EventStderr:
		_, err = io.WriteString(c.errOut, ev.Text())
	case relay.EventInfo:
		_, err = fmt.Fprintf(c.out, "[info] %s\n", ev.Text())
	case relay.EventExit:
		code, _ := ev.Code()
		_, err = fmt.Fprintf(c.out, "[exit] code %d\n", code)
	}
	return err
}

// notice writes a console-originated line to errOut.
func (c *Console) notice(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.errOut, format+"\n", args...)
}

// ReadCommands reads commands from in, one per line, and forwards them to
// commands tagged with this console as ReplyTo.
//
// It returns nil on a quit word or end of input, ctx.Err() when ctx is
// cancelled while a command is pending, and the read error otherwise.
// Blank lines are ignored and unknown words produce a hint on errOut.
func (c *Console) ReadCommands(ctx context.Context, in io.Reader, commands chan<- relay.Command) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		word := strings.ToLower(strings.TrimSpace(scanner.Text()))
		switch {
		case word == "":
			continue
		case quitWords[word]:
			return nil
		case word == "help":
			c.notice("commands: start, stop, quit")
			continue
		}

		kind, err := relay.ParseCommand(word)
		if err != nil {
			c.notice("unknown command %q (try start, stop, quit)", word)
			continue
		}

		select {
		case commands <- relay.Command{Kind: kind, ReplyTo: c}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

var _ relay.Endpoint = (*Console)(nil)
