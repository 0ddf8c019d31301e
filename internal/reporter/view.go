package reporter

import (
	"time"

	"github.com/hochfrequenz/live-reporter/internal/display"
	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/interaction"
	"github.com/hochfrequenz/live-reporter/internal/observer"
)

// View is an immutable snapshot of a session's read model. A new View is
// published after every change; readers never see a partially applied
// event.
type View struct {
	Session     string               `json:"session"`
	Version     uint64               `json:"version"`
	At          time.Time            `json:"at"`
	Run         domain.RunInfo       `json:"run"`
	Nodes       []display.Node       `json:"nodes"`
	Summary     observer.Summary     `json:"summary"`
	Diagnostics []domain.Diagnostic  `json:"diagnostics,omitempty"`
	Pinned      domain.Key           `json:"pinned,omitempty"`
	Hovered     domain.Key           `json:"hovered,omitempty"`
	Tooltip     *interaction.Tooltip `json:"tooltip,omitempty"`

	projection *display.Projection
}

// Find returns the visible node stored under key
func (v *View) Find(key domain.Key) (*display.Node, bool) {
	if v.projection == nil {
		return nil, false
	}
	return v.projection.Find(key)
}

// Rows flattens the visible nodes in display order
func (v *View) Rows() []display.Row {
	if v.projection == nil {
		return nil
	}
	return v.projection.Rows()
}

// Len returns the number of visible nodes
func (v *View) Len() int {
	if v.projection == nil {
		return 0
	}
	return v.projection.Len()
}
