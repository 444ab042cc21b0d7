// Package relay carries worker events out to UI endpoints and commands back in.
//
// The wire format mirrors what the UI renders as a live log: every event is a
// tagged record {"type": ..., "data": ...}.
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType tags a relay event.
type EventType string

// Event types.
const (
	EventInfo   EventType = "info"
	EventStdout EventType = "stdout"
	EventStderr EventType = "stderr"
	EventExit   EventType = "exit"
)

// Status strings carried by info events.
const (
	MsgAlreadyRunning = "already running"
	MsgNotRunning     = "not running"
	MsgStopped        = "stopped"
)

// ErrUnknownEvent is returned when decoding an event with an unrecognized type.
var ErrUnknownEvent = errors.New("unknown event type")

// Event is a single notification from the supervisor to the UI.
//
// Data holds a string for info/stdout/stderr and an int for exit.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Info returns a status event.
func Info(msg string) Event { return Event{Type: EventInfo, Data: msg} }

// Stdout returns an event carrying a raw stdout chunk.
func Stdout(text string) Event { return Event{Type: EventStdout, Data: text} }

// Stderr returns an event carrying a raw stderr chunk.
func Stderr(text string) Event { return Event{Type: EventStderr, Data: text} }

// Exit returns the terminal event of a worker run.
func Exit(code int) Event { return Event{Type: EventExit, Data: code} }

// Text returns the string payload of info/stdout/stderr events.
func (e Event) Text() string {
	s, _ := e.Data.(string)
	return s
}

// Code returns the exit code of an exit event.
func (e Event) Code() (int, bool) {
	code, ok := e.Data.(int)
	return code, ok
}

// String formats the event for logs and plain-text consumers.
func (e Event) String() string {
	switch e.Type {
	case EventExit:
		code, _ := e.Code()
		return fmt.Sprintf("exit: %d", code)
	default:
		return fmt.Sprintf("%s: %s", e.Type, e.Text())
	}
}

// UnmarshalJSON restores typed payloads (JSON numbers decode as float64 otherwise).
func (e *Event) UnmarshalJSON(data []byte) error {
	var tmp struct {
		Type EventType       `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}

	e.Type = tmp.Type
	switch tmp.Type {
	case EventExit:
		var code int
		if err := json.Unmarshal(tmp.Data, &code); err != nil {
			return err
		}
		e.Data = code
	case EventInfo, EventStdout, EventStderr:
		var text string
		if err := json.Unmarshal(tmp.Data, &text); err != nil {
			return err
		}
		e.Data = text
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, tmp.Type)
	}
	return nil
}
