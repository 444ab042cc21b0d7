// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/randomizedcoder/go-ceci-shell/internal/process"
)

// Check names.
const (
	CheckPlatform     = "platform"
	CheckResourceRoot = "resource_root"
	CheckExecutable   = "worker_executable"
	CheckConfig       = "worker_config"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name    string // Name of the check
	Passed  bool   // Whether the check passed
	Warning bool   // True if it's a warning (non-fatal)
	Message string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// RunAll executes all preflight checks against the worker layout.
func RunAll(runner *process.CeciRunner) *Result {
	cfg := runner.Config()
	result := &Result{
		Checks: make([]Check, 0, 4),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkPlatform(cfg.Platform))

	rootCheck := checkResourceRoot(cfg.ResourceRoot)
	add(rootCheck)

	// Without a supported platform there is no executable to look for.
	if spec, err := runner.Spec(); err == nil {
		add(checkExecutable(spec.Executable))
	}

	if rootCheck.Passed {
		add(checkConfig(runner.ConfigPath()))
	}

	return result
}

// checkPlatform verifies a worker build exists for the platform.
func checkPlatform(platform string) Check {
	if !process.IsSupported(platform) {
		return Check{
			Name:    CheckPlatform,
			Passed:  false,
			Message: fmt.Sprintf("no openceci build for %q (supported: %s)", platform, strings.Join(process.SupportedPlatforms(), ", ")),
		}
	}
	return Check{
		Name:    CheckPlatform,
		Passed:  true,
		Message: platform,
	}
}

// checkResourceRoot verifies the resource root is a directory.
func checkResourceRoot(root string) Check {
	info, err := os.Stat(root)
	switch {
	case err != nil:
		return Check{
			Name:    CheckResourceRoot,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", root, err),
		}
	case !info.IsDir():
		return Check{
			Name:    CheckResourceRoot,
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", root),
		}
	}
	return Check{
		Name:    CheckResourceRoot,
		Passed:  true,
		Message: root,
	}
}

// checkExecutable verifies the worker binary exists and can be executed.
func checkExecutable(path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{
			Name:    CheckExecutable,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}
	if info.IsDir() {
		return Check{
			Name:    CheckExecutable,
			Passed:  false,
			Message: fmt.Sprintf("%s is a directory", path),
		}
	}
	if !isExecutable(info) {
		return Check{
			Name:    CheckExecutable,
			Passed:  false,
			Message: fmt.Sprintf("%s is not executable (mode %s)", path, info.Mode().Perm()),
		}
	}
	return Check{
		Name:    CheckExecutable,
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkConfig verifies the worker configuration exists and is valid YAML.
// An empty file is reported as a warning.
func checkConfig(path string) Check {
	data, err := os.ReadFile(path)
	if err != nil {
		return Check{
			Name:    CheckConfig,
			Passed:  false,
			Message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return Check{
			Name:    CheckConfig,
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s is empty", path),
		}
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Check{
			Name:    CheckConfig,
			Passed:  false,
			Message: fmt.Sprintf("%s is not valid YAML: %v", path, err),
		}
	}

	return Check{
		Name:    CheckConfig,
		Passed:  true,
		Message: fmt.Sprintf("%s (%d top-level keys)", path, len(doc)),
	}
}

// PrintResults prints the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case CheckPlatform:
		return "run on win32 or darwin, or pass -platform to pick a shipped build"
	case CheckResourceRoot:
		return "pass -resources <dir> or set CECI_ENV=development to use ./resources"
	case CheckExecutable:
		return "copy the openceci build into <resources>/<platform>/ and chmod +x it"
	case CheckConfig:
		return "create <resources>/ceci.yaml or fix its syntax"
	default:
		return "see documentation"
	}
}
