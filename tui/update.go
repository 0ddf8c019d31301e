package tui

import (
	"context"
	"encoding/json"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
)

const signalTimeout = 2 * time.Second

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "j", "down":
			return m.moveTo(m.cursor + 1)
		case "k", "up":
			return m.moveTo(m.cursor - 1)
		case "g", "home":
			return m.moveTo(0)
		case "G", "end":
			return m.moveTo(len(m.rows) - 1)
		case "pgdown":
			return m.moveTo(m.cursor + m.pageSize())
		case "pgup":
			return m.moveTo(m.cursor - m.pageSize())
		case "enter":
			if n, ok := m.Selected(); ok {
				return m, m.signal(protocol.SignalClick, n.Key, "")
			}
		case " ", "tab":
			if n, ok := m.Selected(); ok && n.IsGroup {
				return m, m.signal(protocol.SignalToggle, n.Key, "")
			}
		case "esc":
			// Clicking the pinned record again releases it
			if m.view != nil && m.view.Pinned != 0 {
				return m, m.signal(protocol.SignalClick, m.view.Pinned, "")
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = m.bodyHeight()
		m.ready = true

	case TickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case ViewMsg:
		m.setView(msg.View)
		return m, waitForView(m.views)

	case SignalSentMsg:
		m.lastErr = msg.Err
		return m, nil
	}

	return m, nil
}

// moveTo places the cursor on row i and hovers it, leaving the previous row
func (m Model) moveTo(i int) (tea.Model, tea.Cmd) {
	if len(m.rows) == 0 {
		return m, nil
	}
	if i < 0 {
		i = 0
	}
	if i >= len(m.rows) {
		i = len(m.rows) - 1
	}
	m.cursor = i
	m.keepCursorVisible()

	key := m.rows[i].Node.Key
	if key == m.hovered {
		return m, nil
	}
	var cmds []tea.Cmd
	if m.hovered != 0 {
		cmds = append(cmds, m.signal(protocol.SignalMouseOut, m.hovered, ""))
	}
	cmds = append(cmds, m.signal(protocol.SignalMouseOver, key, ""))
	m.hovered = key
	return m, tea.Sequence(cmds...)
}

func (m *Model) keepCursorVisible() {
	h := m.viewport.Height
	if h <= 0 {
		return
	}
	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if m.cursor >= m.viewport.YOffset+h {
		m.viewport.SetYOffset(m.cursor - h + 1)
	}
}

func (m Model) pageSize() int {
	if m.viewport.Height > 1 {
		return m.viewport.Height / 2
	}
	return 5
}

// signal forwards a renderer signal to the session
func (m Model) signal(kind string, key domain.Key, part string) tea.Cmd {
	src := m.source
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		payload, err := json.Marshal(protocol.SignalMessage{Kind: kind, Key: uint64(key), Part: part})
		if err != nil {
			return SignalSentMsg{Err: err}
		}
		ctx, cancel := context.WithTimeout(context.Background(), signalTimeout)
		defer cancel()
		err = src.Submit(ctx, protocol.EnvelopeRaw{Type: protocol.TypeSignal, Payload: payload})
		return SignalSentMsg{Err: err}
	}
}
