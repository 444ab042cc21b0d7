package relay

import (
	"context"
	"errors"
	"log/slog"
)

// Controller is the command target; implemented by the supervisor.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
}

// softError is implemented by outcomes that are reported as info events
// rather than failures (already running, not running).
type softError interface {
	Soft() bool
}

// IsSoft reports whether err is an informational outcome.
func IsSoft(err error) bool {
	var se softError
	return errors.As(err, &se) && se.Soft()
}

// Dispatch feeds commands to ctl one at a time until ctx is cancelled or
// commands is closed. Failures are logged and never returned: they have
// already been reported to endpoints as events or belong on the diagnostic
// channel.
func Dispatch(ctx context.Context, commands <-chan Command, ctl Controller, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			Handle(ctx, cmd, ctl, logger)
		}
	}
}

// Handle executes a single command against ctl.
func Handle(ctx context.Context, cmd Command, ctl Controller, logger *slog.Logger) {
	origin := ""
	if cmd.ReplyTo != nil {
		origin = cmd.ReplyTo.ID()
	}

	var err error
	switch cmd.Kind {
	case StartRequested:
		err = ctl.Start(ctx)
	case StopRequested:
		err = ctl.Stop()
	default:
		logger.Warn("command_unknown", "command", string(cmd.Kind), "origin", origin)
		return
	}

	switch {
	case err == nil:
		logger.Debug("command_handled", "command", string(cmd.Kind), "origin", origin)
	case IsSoft(err):
		logger.Debug("command_noop", "command", string(cmd.Kind), "origin", origin, "reason", err.Error())
	default:
		logger.Error("command_failed", "command", string(cmd.Kind), "origin", origin, "error", err)
	}
}
