package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Geun-Oh/lxring/internal/entry"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	barStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#353533"))

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6600")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4444")).
			Bold(true)

	lostStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF00AA")).
			Italic(true)

	plainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

var levelStyles = map[entry.Level]lipgloss.Style{
	entry.LevelFatal: failStyle,
	entry.LevelError: failStyle,
	entry.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00")),
	entry.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#44AAFF")),
	entry.LevelDebug: helpStyle,
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	header := []string{m.titleBar()}
	if m.bannerN > 0 && m.banner != "" {
		header = append(header, bannerStyle.Render(m.banner))
	}
	if m.search.editing {
		header = append(header, fmt.Sprintf(" 🔍 Search: %s█", m.search.query))
	}
	if m.failure != nil {
		header = append(header, failStyle.Render(" "+m.failure.Error()))
	}
	footer := []string{barStyle.Render(padRight(m.statusLine(), m.width)), helpStyle.Render(m.helpLine())}

	rows := m.rows(max(m.height-len(header)-len(footer), 1))

	var sb strings.Builder
	for _, s := range header {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	for _, s := range rows {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	sb.WriteString(strings.Join(footer, "\n"))
	return sb.String()
}

func (m Model) titleBar() string {
	title := titleStyle.Render(fmt.Sprintf("lxring: %s", m.Source))
	state := "▶ RUNNING"
	switch {
	case m.finished && m.failure != nil:
		state = "✖ FAILED"
	case m.finished:
		state = "✔ DONE"
	case m.paused:
		state = "⏸ PAUSED"
	}
	status := barStyle.Render(fmt.Sprintf(" %s  %d lines ", state, m.counts.lines))
	gap := max(m.width-lipgloss.Width(title)-lipgloss.Width(status), 0)
	return title + barStyle.Render(strings.Repeat(" ", gap)) + status
}

// rows returns exactly height lines: the visible window of history padded
// with blanks.
func (m Model) rows(height int) []string {
	end := max(len(m.history)-m.offset, 0)
	start := max(end-height, 0)
	out := make([]string, 0, height)
	for _, e := range m.history[start:end] {
		out = append(out, m.highlight(m.render(e)))
	}
	for len(out) < height {
		out = append(out, "")
	}
	return out
}

func (m Model) render(e *entry.Entry) string {
	ts := e.Time.Time().Format("15:04:05")
	if n, ok := e.DropCount(); ok {
		return lostStyle.Render(fmt.Sprintf("%s --- %d entries dropped ---", ts, n))
	}
	lvl := e.Level()
	prefix := fmt.Sprintf("%s [%s:%d] ", ts, e.Tag, e.Owner.PID)
	if lvl != entry.LevelUnknown {
		prefix += lvl.String() + " "
	}
	style, ok := levelStyles[lvl]
	if !ok {
		style = plainStyle
	}
	return style.Render(prefix + truncate(string(e.Payload), m.width-len(prefix)))
}

func (m Model) highlight(line string) string {
	if q := m.search.query; q != "" && !m.search.editing {
		return strings.ReplaceAll(line, q, bannerStyle.Render(q))
	}
	return line
}

func (m Model) statusLine() string {
	var rate float64
	if m.Rate != nil {
		rate = m.Rate.Rate()
	}
	parts := []string{
		fmt.Sprintf(" Rate: %s %.0f/s", rateBar(rate, 10), rate),
		fmt.Sprintf("ERR: %d", m.counts.errors),
		fmt.Sprintf("WARN: %d", m.counts.warns),
		fmt.Sprintf("Total: %d", m.counts.lines),
	}
	if m.counts.lost > 0 {
		parts = append(parts, fmt.Sprintf("Lost: %d", m.counts.lost))
	}
	if m.Store != nil {
		st := m.Store.Stats()
		parts = append(parts, fmt.Sprintf("Buf: %d/%d", st.Used, st.Capacity))
	}
	if m.Alerts != nil {
		if n := m.Alerts.Total(); n > 0 {
			parts = append(parts, fmt.Sprintf("Alerts: %d", n))
		}
	}
	if m.search.hits > 0 {
		parts = append(parts, fmt.Sprintf("Hits: %d", m.search.hits))
	}
	if m.offset > 0 {
		parts = append(parts, fmt.Sprintf("↑ %d", m.offset))
	}
	return strings.Join(parts, " │ ")
}

func (m Model) helpLine() string {
	help := " [/]Search  [p]Pause  [↑↓]Scroll  [g]Bottom  [q]Quit"
	if m.paused {
		help += fmt.Sprintf("  (queued: %d)", len(m.held))
	}
	return help
}

// rateBar scales 200 lines/s to a full bar.
func rateBar(rate float64, width int) string {
	filled := min(int(rate/200*float64(width)), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, n int) string {
	if n <= 1 || len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
