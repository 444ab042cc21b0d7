// Package stats formats the exit summary printed when a ceci-shell
// session ends.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-ceci-shell/internal/metrics"
)

const (
	rule = "═══════════════════════════════════════════════════════════════════════════════\n"
	line = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Platform is the worker platform id (win32, darwin)
	Platform string

	// ResourceRoot is where the worker was launched from
	ResourceRoot string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// StderrTail holds the last stderr lines of the final run
	StderrTail []string
}

// FormatExitSummary formats collected metrics for display at program exit.
//
// The summary includes:
// - Session information
// - Worker lifecycle and exit codes
// - Output volume per stream and chunk size percentiles
// - Relay activity
func FormatExitSummary(s *metrics.Summary, cfg SummaryConfig) string {
	if s == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	writeHeader(&b)

	// Session info
	fmt.Fprintf(&b, "Session Duration:       %s\n", FormatDuration(s.Duration))
	if cfg.Platform != "" {
		fmt.Fprintf(&b, "Platform:               %s\n", cfg.Platform)
	}
	if cfg.ResourceRoot != "" {
		fmt.Fprintf(&b, "Resource Root:          %s\n", cfg.ResourceRoot)
	}
	b.WriteString("\n")

	// Lifecycle
	writeSection(&b, "Lifecycle")
	fmt.Fprintf(&b, "  Worker Starts:        %d\n", s.TotalStarts)
	if s.SpawnFailures > 0 {
		fmt.Fprintf(&b, "  Spawn Failures:       %d\n", s.SpawnFailures)
	}
	b.WriteString("\n")

	// Uptime distribution
	if s.UptimeP50 > 0 || s.UptimeP95 > 0 {
		writeSection(&b, "Uptime Distribution")
		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatDuration(s.UptimeP50))
		fmt.Fprintf(&b, "  P95:                  %s\n", FormatDuration(s.UptimeP95))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatDuration(s.UptimeP99))
		b.WriteString("\n")
	}

	// Output
	if len(s.BytesByStream) > 0 {
		writeSection(&b, "Worker Output")

		fmt.Fprintf(&b, "  %-20s %12s %12s\n", "Stream", "Chunks", "Bytes")
		b.WriteString("  " + strings.Repeat("─", 46) + "\n")
		for _, stream := range sortedKeys(s.BytesByStream) {
			fmt.Fprintf(&b, "  %-20s %12s %12s\n",
				stream,
				FormatNumber(s.ChunksByStream[stream]),
				FormatBytes(s.BytesByStream[stream]),
			)
		}
		fmt.Fprintf(&b, "\n  Chunk Size P50/P95/P99: %s / %s / %s\n\n",
			FormatBytes(int64(s.ChunkP50)),
			FormatBytes(int64(s.ChunkP95)),
			FormatBytes(int64(s.ChunkP99)),
		)
	}

	// Exit codes
	if len(s.ExitCodes) > 0 {
		writeSection(&b, "Exit Codes")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(s.ExitCodes))
		for code := range s.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), s.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	// Relay
	if s.EventsPublished > 0 {
		writeSection(&b, "Event Relay")
		fmt.Fprintf(&b, "  Events Published:     %s\n", FormatNumber(s.EventsPublished))
		fmt.Fprintf(&b, "  Deliveries Dropped:   %s\n", FormatNumber(s.EventsDropped))
		fmt.Fprintf(&b, "  Peak Endpoints:       %d\n\n", s.PeakEndpoints)
	}

	// Last stderr lines
	if len(cfg.StderrTail) > 0 {
		writeSection(&b, "Last Worker Errors")
		for _, l := range cfg.StderrTail {
			fmt.Fprintf(&b, "  %s\n", l)
		}
		b.WriteString("\n")
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(rule)

	return b.String()
}

// formatBasicSummary formats a basic summary when metrics are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	writeHeader(&b)

	if cfg.Platform != "" {
		fmt.Fprintf(&b, "Platform:               %s\n\n", cfg.Platform)
	}
	b.WriteString("(No worker activity was recorded)\n\n")

	b.WriteString(rule)

	return b.String()
}

func writeHeader(b *strings.Builder) {
	b.WriteString("\n")
	b.WriteString(rule)
	b.WriteString("                          ceci-shell Exit Summary\n")
	b.WriteString(rule)
	b.WriteString("\n")
}

func writeSection(b *strings.Builder, title string) {
	pad := (len([]rune(strings.TrimSuffix(line, "\n"))) - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(line)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(line)
	b.WriteString("\n")
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}
