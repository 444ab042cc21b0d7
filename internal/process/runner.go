// Package process describes how the openceci worker is launched.
package process

import (
	"context"
	"os/exec"
)

// Runner creates executable commands for the worker.
// This interface allows the supervisor to be process-agnostic.
type Runner interface {
	// BuildCommand returns a ready-to-start command.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string
}

// LaunchSpec is an immutable description of how to start the worker.
type LaunchSpec struct {
	// Executable is the absolute path of the worker binary.
	Executable string

	// Args are passed to the worker verbatim. Always carries -conf <path>.
	Args []string

	// Dir is the working directory for the worker.
	Dir string
}

// Command returns an unstarted command for the spec, bound to ctx.
func (s LaunchSpec) Command(ctx context.Context) *exec.Cmd {
	args := make([]string, len(s.Args))
	copy(args, s.Args)

	cmd := exec.CommandContext(ctx, s.Executable, args...)
	cmd.Dir = s.Dir
	return cmd
}
