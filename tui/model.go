// Package tui renders a reporter session in the terminal. The cursor plays
// the part of the mouse: moving onto a row hovers it and enter clicks it.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/hochfrequenz/live-reporter/internal/display"
	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
	"github.com/hochfrequenz/live-reporter/internal/reporter"
)

// Source is the session the TUI renders and signals
type Source interface {
	View() *reporter.View
	Submit(ctx context.Context, env protocol.EnvelopeRaw) error
}

// Model is the TUI application model
type Model struct {
	// Data
	source Source
	views  <-chan *reporter.View
	view   *reporter.View
	rows   []display.Row

	// UI state
	width    int
	height   int
	cursor   int
	hovered  domain.Key
	viewport viewport.Model
	ready    bool

	// Refresh
	now      time.Time
	shownAt  time.Time
	lastErr  error
	nowFunc  func() time.Time
	quitting bool
}

// ModelConfig holds the data feeds of the TUI model
type ModelConfig struct {
	Source Source
	// Views delivers every view the session publishes
	Views <-chan *reporter.View
	// Now overrides the clock, for tests
	Now func() time.Time
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	nowFunc := cfg.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}
	m := Model{
		source:   cfg.Source,
		views:    cfg.Views,
		nowFunc:  nowFunc,
		viewport: viewport.New(80, 20),
	}
	m.now = nowFunc()
	if cfg.Source != nil {
		m.setView(cfg.Source.View())
	}
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForView(m.views),
	)
}

// TickMsg redraws the progress bars
type TickMsg time.Time

// ViewMsg carries a newly published view
type ViewMsg struct {
	View *reporter.View
}

// SignalSentMsg reports the outcome of forwarding a signal
type SignalSentMsg struct {
	Err error
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForView(views <-chan *reporter.View) tea.Cmd {
	if views == nil {
		return nil
	}
	return func() tea.Msg {
		v, ok := <-views
		if !ok {
			return nil
		}
		return ViewMsg{View: v}
	}
}

// setView replaces the rendered view and keeps the cursor on the same
// record when it is still visible
func (m *Model) setView(v *reporter.View) {
	if v == nil {
		return
	}
	var selected domain.Key
	if m.cursor < len(m.rows) {
		selected = m.rows[m.cursor].Node.Key
	}

	m.view = v
	m.rows = v.Rows()
	m.shownAt = m.nowFunc()

	m.cursor = 0
	for i, r := range m.rows {
		if r.Node.Key == selected {
			m.cursor = i
			break
		}
	}
	if m.cursor >= len(m.rows) && len(m.rows) > 0 {
		m.cursor = len(m.rows) - 1
	}
}

// Selected returns the node under the cursor
func (m Model) Selected() (*display.Node, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return nil, false
	}
	return m.rows[m.cursor].Node, true
}
