package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// argList is a custom flag type for repeatable -arg flags.
type argList []string

func (a *argList) String() string {
	return strings.Join(*a, " ")
}

func (a *argList) Set(value string) error {
	*a = append(*a, value)
	return nil
}

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(flag.CommandLine, os.Args[1:])
}

// ParseArgs parses args into a Config using fs.
// Returns an error if flags are malformed or positional arguments are given.
func ParseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := DefaultConfig()
	var extra argList

	out := fs.Output()

	// Custom usage message
	fs.Usage = func() {
		fmt.Fprintf(out, `ceci-shell - supervise the openceci worker and relay its output

Usage:
  ceci-shell [flags]

Worker Flags:
`)
		// Print flags by category
		printFlagCategory(fs, out, []string{"resources", "platform", "conf", "arg", "kill-grace", "autostart"})

		fmt.Fprintf(out, "\nSession:\n")
		printFlagCategory(fs, out, []string{"tui", "scrollback"})

		fmt.Fprintf(out, "\nRemote UI / Metrics:\n")
		printFlagCategory(fs, out, []string{"metrics", "websocket"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, out, []string{"v", "log-format", "log-level", "log-file"})

		fmt.Fprintf(out, "\nDiagnostics:\n")
		printFlagCategory(fs, out, []string{"print-cmd", "skip-preflight", "status"})

		fmt.Fprintf(out, `
Resource root:
  Without -resources, %s=development uses ./resources, otherwise the
  resources directory next to the executable.

Examples:
  # Interactive dashboard, start the worker immediately
  ceci-shell -autostart

  # Headless session driven from stdin (start, stop, quit)
  ceci-shell -tui=false -resources ./resources

  # Show the worker command line
  ceci-shell --print-cmd -platform darwin

  # Query a running shell
  ceci-shell --status 127.0.0.1:17180

`, EnvName)
	}

	// Worker
	fs.StringVar(&cfg.ResourceRoot, "resources", cfg.ResourceRoot, "Resource root holding ceci.yaml and <platform>/openceci")
	fs.StringVar(&cfg.Platform, "platform", cfg.Platform, `Worker platform id: "win32" or "darwin" (default: host)`)
	fs.StringVar(&cfg.ConfigName, "conf", cfg.ConfigName, "Worker configuration file name inside the resource root")
	fs.Var(&extra, "arg", "Extra argument appended to the worker command line (can repeat)")
	fs.DurationVar(&cfg.KillGrace, "kill-grace", cfg.KillGrace, "How long to drain worker output after it exits")
	fs.BoolVar(&cfg.Autostart, "autostart", cfg.Autostart, "Start the worker when the session opens")

	// Session
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable the terminal dashboard (use -tui=false for a stdin console)")
	fs.IntVar(&cfg.Scrollback, "scrollback", cfg.Scrollback, "Output lines kept in the dashboard")

	// Remote UI / Metrics
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Metrics and websocket listen address ("" disables)`)
	fs.BoolVar(&cfg.WebsocketEnabled, "websocket", cfg.WebsocketEnabled, "Serve the event relay on /ws")

	// Observability
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (log every worker output line)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to this file (required to see logs with -tui)")

	// Diagnostics
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the worker command and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.StringVar(&cfg.Status, "status", cfg.Status, "Print the worker status of the shell listening at this address and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.ExtraArgs = extra

	if rest := fs.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}

	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" && f.DefValue != "[]" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	// Infer type from default value format
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	// Check if it looks like a duration
	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	// Check if numeric
	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
