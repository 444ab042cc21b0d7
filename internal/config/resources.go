package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvName selects the development resource layout when set to "development".
const EnvName = "CECI_ENV"

// ResourceDirName is the directory holding ceci.yaml and the per-platform workers.
const ResourceDirName = "resources"

// ResolveOptions lets tests replace the process environment lookups.
type ResolveOptions struct {
	Getenv     func(string) string
	Executable func() (string, error)
	Getwd      func() (string, error)
}

func (o ResolveOptions) withDefaults() ResolveOptions {
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.Executable == nil {
		o.Executable = os.Executable
	}
	if o.Getwd == nil {
		o.Getwd = os.Getwd
	}
	return o
}

// ResolveResourceRoot returns the absolute resource root.
//
// Order: an explicit path; ./resources when CECI_ENV=development;
// otherwise the resources directory next to the executable.
func ResolveResourceRoot(explicit string, opts ResolveOptions) (string, error) {
	opts = opts.withDefaults()

	if explicit != "" {
		return absFrom(explicit, opts)
	}

	if opts.Getenv(EnvName) == "development" {
		return absFrom(ResourceDirName, opts)
	}

	exe, err := opts.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), ResourceDirName), nil
}

// ApplyResourceRoot resolves cfg.ResourceRoot in place.
func ApplyResourceRoot(cfg *Config, opts ResolveOptions) error {
	root, err := ResolveResourceRoot(cfg.ResourceRoot, opts)
	if err != nil {
		return err
	}
	cfg.ResourceRoot = root
	return nil
}

func absFrom(path string, opts ResolveOptions) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	wd, err := opts.Getwd()
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	return filepath.Join(wd, path), nil
}
