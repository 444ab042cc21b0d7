package relay

import (
	"errors"
	"strings"
)

// CommandKind identifies an inbound command.
type CommandKind string

// Commands accepted from UI endpoints.
const (
	StartRequested CommandKind = "start-ceci"
	StopRequested  CommandKind = "stop-ceci"
)

// ErrUnknownCommand is returned for command names that are not recognized.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a user action addressed to the supervisor.
type Command struct {
	Kind CommandKind

	// ReplyTo is the session that issued the command. Optional.
	ReplyTo Endpoint
}

// ParseCommand maps a command name onto a CommandKind.
// Accepts the wire names (start-ceci) and their short forms (start).
func ParseCommand(name string) (CommandKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case string(StartRequested), "start", "startceci":
		return StartRequested, nil
	case string(StopRequested), "stop", "stopceci":
		return StopRequested, nil
	default:
		return "", ErrUnknownCommand
	}
}
