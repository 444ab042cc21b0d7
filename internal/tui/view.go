package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// chromeHeight is the number of rows used by everything except the output pane.
const chromeHeight = 11

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the full screen.
func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderStatus(),
		m.renderOutput(),
		m.renderFooter(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" ceci-shell │ %s │ Runs: %d │ Elapsed: %s ",
		GetStateLabel(m.status.Running),
		m.status.Runs,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Status Section
// =============================================================================

func (m Model) renderStatus() string {
	pid := "-"
	uptime := "-"
	if m.status.Running {
		pid = strconv.Itoa(m.status.PID)
		uptime = formatDuration(m.Uptime())
	}

	lastExit := "-"
	if m.lastExit != nil {
		lastExit = GetExitStyle(*m.lastExit).Render(strconv.Itoa(*m.lastExit))
	}

	lastInfo := m.lastInfo
	if lastInfo == "" {
		lastInfo = "-"
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		RenderKeyValue("PID", pid),
		RenderKeyValue("Uptime", uptime),
		RenderKeyValue("Last exit", lastExit),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		RenderKeyValue("Platform", orDash(m.platform)),
		RenderKeyValue("Resources", orDash(m.resourceRoot)),
		RenderKeyValue("Last notice", lastInfo),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, "    ", right)
}

// =============================================================================
// Output Section
// =============================================================================

// renderOutput renders the tail of the output pane that fits the window.
func (m Model) renderOutput() string {
	rows := m.height - chromeHeight
	if rows < 3 {
		rows = 3
	}

	type row struct {
		style lipgloss.Style
		text  string
	}
	all := make([]row, 0, len(m.lines)+2)
	for _, l := range m.lines {
		all = append(all, row{LineStyle(l.kind), linePrefix(l.kind) + l.text})
	}
	for _, kind := range streamKinds {
		if p := m.partial[kind]; p != "" {
			all = append(all, row{LineStyle(kind), p})
		}
	}
	if len(all) > rows {
		all = all[len(all)-rows:]
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}

	var b strings.Builder
	for i, r := range all {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.style.Render(truncate(r.text, width)))
	}
	if len(all) == 0 {
		b.WriteString(dimStyle.Render("no output yet, press s to start the worker"))
	}

	title := sectionHeaderStyle.Render(fmt.Sprintf("Output (%d lines)", len(m.lines)))
	return lipgloss.JoinVertical(lipgloss.Left, "", title, boxStyle.Width(width+2).Render(b.String()))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	hints := []string{
		RenderKeyHint("s", "start"),
		RenderKeyHint("x", "stop"),
		RenderKeyHint("c", "clear"),
		RenderKeyHint("q", "quit"),
	}
	footer := strings.Join(hints, "  •  ")
	if m.metricsAddr != "" {
		footer += mutedStyle.Render(fmt.Sprintf("   │  http://%s/metrics", m.metricsAddr))
	}
	return footerStyle.Render(footer)
}

// =============================================================================
// Helpers
// =============================================================================

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
