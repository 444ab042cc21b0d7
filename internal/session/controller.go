package session

import (
	"context"
	"errors"

	"github.com/randomizedcoder/go-ceci-shell/internal/metrics"
	"github.com/randomizedcoder/go-ceci-shell/internal/process"
	"github.com/randomizedcoder/go-ceci-shell/internal/relay"
	"github.com/randomizedcoder/go-ceci-shell/internal/supervisor"
)

// Command results recorded on the commands counter.
const (
	resultOK     = "ok"
	resultNoop   = "noop"
	resultFailed = "failed"
)

// Spawn failure reasons recorded on the spawn failures counter.
const (
	reasonUnsupportedPlatform = "unsupported_platform"
	reasonSpawnError          = "spawn_error"
	reasonBuildError          = "build_error"
)

// recordingController counts every command outcome before handing it back
// to the dispatcher.
type recordingController struct {
	ctl     relay.Controller
	metrics *metrics.Collector
}

func (c *recordingController) Start(ctx context.Context) error {
	err := c.ctl.Start(ctx)
	c.metrics.CommandHandled(string(relay.StartRequested), commandResult(err))
	return err
}

func (c *recordingController) Stop() error {
	err := c.ctl.Stop()
	c.metrics.CommandHandled(string(relay.StopRequested), commandResult(err))
	return err
}

func commandResult(err error) string {
	switch {
	case err == nil:
		return resultOK
	case relay.IsSoft(err):
		return resultNoop
	default:
		return resultFailed
	}
}

func spawnFailureReason(err error) string {
	var upe *process.UnsupportedPlatformError
	var se *supervisor.SpawnError
	switch {
	case errors.As(err, &upe):
		return reasonUnsupportedPlatform
	case errors.As(err, &se):
		return reasonSpawnError
	default:
		return reasonBuildError
	}
}

var _ relay.Controller = (*recordingController)(nil)
