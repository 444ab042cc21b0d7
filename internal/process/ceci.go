package process

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultConfigName is the worker configuration file inside the resource root.
const DefaultConfigName = "ceci.yaml"

// CeciConfig holds configuration for launching the openceci worker.
type CeciConfig struct {
	// ResourceRoot is the directory holding per-platform binaries and ceci.yaml.
	ResourceRoot string

	// Platform is the platform identifier (win32, darwin, ...).
	Platform string

	// ConfigName is the worker configuration file name relative to ResourceRoot.
	ConfigName string

	// ExtraArgs are appended after -conf (debugging only).
	ExtraArgs []string
}

// DefaultCeciConfig returns a CeciConfig for the running platform.
func DefaultCeciConfig(resourceRoot string) *CeciConfig {
	return &CeciConfig{
		ResourceRoot: resourceRoot,
		Platform:     CurrentPlatform(),
		ConfigName:   DefaultConfigName,
	}
}

// CeciRunner implements Runner for the openceci worker.
type CeciRunner struct {
	config *CeciConfig
}

// NewCeciRunner creates a new runner with the given configuration.
func NewCeciRunner(cfg *CeciConfig) *CeciRunner {
	return &CeciRunner{
		config: cfg,
	}
}

// Name returns "openceci".
func (r *CeciRunner) Name() string {
	return "openceci"
}

// Spec resolves the launch spec for the configured platform.
// Returns *UnsupportedPlatformError when no binary exists for it.
func (r *CeciRunner) Spec() (LaunchSpec, error) {
	name, err := ExecutableName(r.config.Platform)
	if err != nil {
		return LaunchSpec{}, err
	}

	args := []string{"-conf", r.ConfigPath()}
	args = append(args, r.config.ExtraArgs...)

	return LaunchSpec{
		Executable: filepath.Join(r.config.ResourceRoot, r.config.Platform, name),
		Args:       args,
		Dir:        r.config.ResourceRoot,
	}, nil
}

// BuildCommand creates an exec.Cmd for the worker.
func (r *CeciRunner) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	spec, err := r.Spec()
	if err != nil {
		return nil, err
	}
	return spec.Command(ctx), nil
}

// ConfigPath returns the absolute path handed to the worker via -conf.
func (r *CeciRunner) ConfigPath() string {
	name := r.config.ConfigName
	if name == "" {
		name = DefaultConfigName
	}
	return filepath.Join(r.config.ResourceRoot, name)
}

// Config returns the runner configuration.
func (r *CeciRunner) Config() *CeciConfig {
	return r.config
}

// CommandString returns the command that would be executed (for debugging).
func (r *CeciRunner) CommandString() (string, error) {
	spec, err := r.Spec()
	if err != nil {
		return "", err
	}
	return spec.Executable + " " + strings.Join(spec.Args, " "), nil
}

var _ Runner = (*CeciRunner)(nil)
