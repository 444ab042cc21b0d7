// Package tui provides a live terminal dashboard for the openceci worker.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays:
// - Worker state, pid and uptime
// - The live stdout/stderr stream
// - Info and exit notices from the supervisor
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-ceci-shell/internal/relay"
)

// =============================================================================
// Color Palette
// =============================================================================

// Colors based on a modern dark theme
var (
	// Primary colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	// Neutral colors
	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	// Base text styles
	baseStyle = lipgloss.NewStyle().
			Foreground(colorText)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	// Box/panel styles
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	// Header style
	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	// Section header style
	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	// Footer style
	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)

	// Label styles
	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	keyStyle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)
)

// =============================================================================
// Stream Styles
// =============================================================================

var (
	stdoutStyle = baseStyle

	stderrStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	infoStyle = statusInfo

	exitStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Italic(true)
)

// LineStyle returns the style used for an output line of the given kind.
func LineStyle(kind relay.EventType) lipgloss.Style {
	switch kind {
	case relay.EventStderr:
		return stderrStyle
	case relay.EventInfo:
		return infoStyle
	case relay.EventExit:
		return exitStyle
	default:
		return stdoutStyle
	}
}

// linePrefix marks non-output rows in the pane.
func linePrefix(kind relay.EventType) string {
	switch kind {
	case relay.EventInfo:
		return "» "
	case relay.EventExit:
		return "■ "
	default:
		return ""
	}
}

// =============================================================================
// Worker State Indicator
// =============================================================================

// GetStateLabel returns a styled worker state label.
func GetStateLabel(running bool) string {
	if running {
		return statusOK.Render("● running")
	}
	return mutedStyle.Render("○ idle")
}

// GetExitStyle returns a style based on the last exit code.
func GetExitStyle(code int) lipgloss.Style {
	switch {
	case code == 0:
		return statusOK
	case code > 128:
		return statusWarning
	default:
		return statusError
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderKeyHint renders a key binding hint like "s start".
func RenderKeyHint(key, action string) string {
	return keyStyle.Render(key) + " " + mutedStyle.Render(action)
}
