package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/hochfrequenz/live-reporter/internal/display"
	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/timing"
	"github.com/mattn/go-runewidth"
)

var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("255"))

	tooltipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("60")).
			Padding(0, 1)

	passedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimmedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	methodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	badgeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("244"))
	cursorStyle  = lipgloss.NewStyle().Background(lipgloss.Color("237"))
	pinnedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

	boldStyle   = lipgloss.NewStyle().Bold(true)
	italicStyle = lipgloss.NewStyle().Italic(true)
)

const (
	numberWidth = 4
	methodWidth = 14
	barWidth    = 10
)

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(headerStyle.Width(m.width).Render(m.renderHeader()))
	b.WriteString("\n")

	vp := m.viewport
	vp.SetContent(m.renderRows())
	b.WriteString(vp.View())
	b.WriteString("\n")

	if tip := m.renderTooltip(); tip != "" {
		b.WriteString(tip)
		b.WriteString("\n")
	}

	statusBar := " [j/k]move [enter]pin [space]expand [esc]unpin [q]uit "
	if m.lastErr != nil {
		statusBar = " " + m.lastErr.Error() + " "
	}
	b.WriteString(statusBarStyle.Width(m.width).Render(statusBar))
	return b.String()
}

// bodyHeight is the number of rows left for the command list
func (m Model) bodyHeight() int {
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

func (m Model) renderHeader() string {
	v := m.view
	if v == nil {
		return "Live Reporter │ waiting for run"
	}
	s := v.Summary
	parts := []string{"Live Reporter"}
	if v.Run.ID != "" {
		parts = append(parts, "Run "+v.Run.ID)
	}
	if v.Run.Spec != "" {
		parts = append(parts, v.Run.Spec)
	}
	parts = append(parts,
		fmt.Sprintf("%s commands", humanize.Comma(int64(s.Total-s.Events))),
		passedStyle.Render(fmt.Sprintf("✔ %d", s.Passed)),
		failedStyle.Render(fmt.Sprintf("✘ %d", s.Failed)),
		pendingStyle.Render(fmt.Sprintf("… %d", s.Pending)),
	)
	if len(s.Overdue) > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("%d overdue", len(s.Overdue))))
	}
	if s.Settled > 0 {
		parts = append(parts, "avg "+formatDuration(s.AvgDuration))
	}
	if v.Run.StartedAt != nil {
		parts = append(parts, "started "+humanize.RelTime(*v.Run.StartedAt, m.now, "ago", "from now"))
	}
	if s.Diagnostics > 0 {
		parts = append(parts, warnStyle.Render(english.Plural(s.Diagnostics, "diagnostic", "")))
	}
	return strings.Join(parts, " │ ")
}

func (m Model) renderRows() string {
	if len(m.rows) == 0 {
		return dimmedStyle.Render("  No commands reported yet")
	}
	lines := make([]string, len(m.rows))
	for i, r := range m.rows {
		line := m.formatRow(r)
		if i == m.cursor {
			line = cursorStyle.Width(m.width).Render(line)
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func (m Model) formatRow(r display.Row) string {
	n := r.Node
	var b strings.Builder

	if n.Pinned {
		b.WriteString(pinnedStyle.Render("▶"))
	} else {
		b.WriteString(" ")
	}
	b.WriteString(strings.Repeat("  ", r.Depth))

	switch {
	case n.IsGroup && n.Open:
		b.WriteString("▾ ")
	case n.IsGroup:
		b.WriteString("▸ ")
	default:
		b.WriteString("  ")
	}

	number := ""
	if n.Number > 0 {
		number = fmt.Sprint(n.Number)
	}
	b.WriteString(dimmedStyle.Render(padLeft(number, numberWidth)))
	b.WriteString(" ")
	b.WriteString(stateStyle(n.State).Render(stateIcon(n.State)))
	b.WriteString(" ")

	method := n.Method
	if method == "" {
		method = n.Name
	}
	b.WriteString(methodStyle.Render(padRight(runewidth.Truncate(method, methodWidth, "…"), methodWidth)))
	b.WriteString(" ")

	if n.Indicator != "" {
		b.WriteString(indicatorStyle(n.Indicator).Render("●"))
		b.WriteString(" ")
	}

	msgWidth := m.width - lipgloss.Width(b.String()) - barWidth - 12
	b.WriteString(renderSpans(n.Spans, msgWidth))

	for _, badge := range n.Badges {
		b.WriteString(" ")
		b.WriteString(badgeStyle.Render(badgeText(badge)))
	}

	if n.Progress != nil {
		b.WriteString(" ")
		b.WriteString(m.renderProgress(n.Progress))
	}
	return b.String()
}

// renderProgress draws the remaining fraction of a pending command's
// timeout, advanced by the time since the view was shown
func (m Model) renderProgress(p *display.Progress) string {
	prog := timing.Progress{Duration: time.Duration(p.DurationMs) * time.Millisecond, Scale: p.Scale}
	scale := prog.At(m.now.Sub(m.shownAt))
	filled := int(scale*barWidth + 0.5)
	if filled > barWidth {
		filled = barWidth
	}
	return pendingStyle.Render(strings.Repeat("█", filled)) + dimmedStyle.Render(strings.Repeat("░", barWidth-filled))
}

func (m Model) renderTooltip() string {
	if m.view == nil || m.view.Tooltip == nil {
		return ""
	}
	return tooltipStyle.Render(m.view.Tooltip.Text)
}

func renderSpans(spans []display.Span, width int) string {
	var b strings.Builder
	used := 0
	for _, s := range spans {
		if width > 0 && used >= width {
			break
		}
		text := s.Text
		if w := runewidth.StringWidth(text); width > 0 && used+w > width {
			text = runewidth.Truncate(text, width-used, "…")
		}
		used += runewidth.StringWidth(text)
		switch {
		case s.Bold && s.Italic:
			text = boldStyle.Italic(true).Render(text)
		case s.Bold:
			text = boldStyle.Render(text)
		case s.Italic:
			text = italicStyle.Render(text)
		}
		b.WriteString(text)
	}
	return b.String()
}

func badgeText(badge display.Badge) string {
	switch badge.Part {
	case display.PartInvisible:
		return "hidden"
	case display.PartDuplicates:
		return "×" + badge.Text
	case display.PartNumChildren:
		return "+" + badge.Text
	}
	return badge.Text
}

func stateIcon(s domain.State) string {
	switch s {
	case domain.StatePassed:
		return "✔"
	case domain.StateFailed:
		return "✘"
	case domain.StateWarn:
		return "!"
	}
	return "…"
}

func stateStyle(s domain.State) lipgloss.Style {
	switch s {
	case domain.StatePassed:
		return passedStyle
	case domain.StateFailed:
		return failedStyle
	case domain.StateWarn:
		return warnStyle
	}
	return pendingStyle
}

func indicatorStyle(i domain.Indicator) lipgloss.Style {
	switch i {
	case domain.IndicatorSuccessful:
		return passedStyle
	case domain.IndicatorBad:
		return failedStyle
	case domain.IndicatorAborted:
		return warnStyle
	}
	return pendingStyle
}

func padLeft(s string, width int) string {
	if w := runewidth.StringWidth(s); w < width {
		return strings.Repeat(" ", width-w) + s
	}
	return s
}

func padRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}
