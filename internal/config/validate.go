package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/randomizedcoder/go-ceci-shell/internal/logging"
	"github.com/randomizedcoder/go-ceci-shell/internal/process"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Platform override must name a supported worker build
	if cfg.Platform != "" && !process.IsSupported(cfg.Platform) {
		errs = append(errs, ValidationError{
			Field: "platform",
			Message: fmt.Sprintf("must be one of: %s (got %q)",
				strings.Join(process.SupportedPlatforms(), ", "), cfg.Platform),
		})
	}

	// Config name is a plain file name inside the resource root
	if cfg.ConfigName == "" {
		errs = append(errs, ValidationError{
			Field:   "conf",
			Message: "must not be empty",
		})
	} else if filepath.Base(cfg.ConfigName) != cfg.ConfigName || cfg.ConfigName == ".." {
		errs = append(errs, ValidationError{
			Field:   "conf",
			Message: fmt.Sprintf("must be a file name, not a path (got %q)", cfg.ConfigName),
		})
	}

	// Kill grace must be positive
	if cfg.KillGrace <= 0 {
		errs = append(errs, ValidationError{
			Field:   "kill_grace",
			Message: "must be positive",
		})
	}

	// Scrollback must hold at least one line
	if cfg.Scrollback < 1 {
		errs = append(errs, ValidationError{
			Field:   "scrollback",
			Message: "must be at least 1",
		})
	}

	// Metrics address must be host:port when set
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics",
				Message: err.Error(),
			})
		}
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Log level must be valid
	if !logging.ValidLevel(cfg.LogLevel) {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateAddr checks for a host:port listen address.
func validateAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}

	return nil
}
