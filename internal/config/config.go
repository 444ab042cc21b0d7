// Package config provides configuration management for ceci-shell.
package config

import "time"

// Config holds all configuration options for a shell session.
type Config struct {
	// Worker
	ResourceRoot string        `json:"resource_root"` // empty = resolved at startup
	Platform     string        `json:"platform"`      // empty = host platform
	ConfigName   string        `json:"config_name"`
	ExtraArgs    []string      `json:"extra_args"`
	KillGrace    time.Duration `json:"kill_grace"`
	Autostart    bool          `json:"autostart"`

	// Session
	TUIEnabled bool `json:"tui_enabled"`
	Scrollback int  `json:"scrollback"`

	// Remote UI
	MetricsAddr      string `json:"metrics_addr"` // empty = HTTP server disabled
	WebsocketEnabled bool   `json:"websocket_enabled"`

	// Observability
	Verbose   bool   `json:"verbose"`
	LogFormat string `json:"log_format"` // json, text
	LogLevel  string `json:"log_level"`
	LogFile   string `json:"log_file"`

	// Diagnostic modes
	PrintCmd      bool   `json:"print_cmd"`
	SkipPreflight bool   `json:"skip_preflight"`
	Status        string `json:"status"` // address of a running shell to query
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Worker
		ConfigName: "ceci.yaml",
		KillGrace:  2 * time.Second,
		Autostart:  false,

		// Session
		TUIEnabled: true,
		Scrollback: 500,

		// Remote UI
		MetricsAddr:      "127.0.0.1:17180",
		WebsocketEnabled: true,

		// Observability
		Verbose:   false,
		LogFormat: "text",
		LogLevel:  "info",
	}
}

// MetricsEnabled returns true if the HTTP server should run.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsAddr != ""
}

// WebsocketActive returns true if remote UIs can attach over /ws.
func (c *Config) WebsocketActive() bool {
	return c.WebsocketEnabled && c.MetricsEnabled()
}
