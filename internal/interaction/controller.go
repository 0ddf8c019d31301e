// Package interaction owns the transient UI state of a reporter session:
// the debounced hover preview, the exclusive pin and tooltip visibility.
// It reacts to raw renderer signals and emits commands back to the host.
package interaction

import (
	"time"

	"github.com/hochfrequenz/live-reporter/internal/display"
	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/protocol"
	"github.com/hochfrequenz/live-reporter/internal/schedule"
)

// Default delays
const (
	DefaultHoverDelay   = 50 * time.Millisecond
	DefaultTooltipDelay = 1500 * time.Millisecond
)

// ClickTooltip is shown after a command was pinned
const ClickTooltip = "Printed output to your console"

// Phase is the state of the hover preview machine
type Phase int

const (
	Idle Phase = iota
	PendingShow
	Shown
	PendingHide
)

func (p Phase) String() string {
	switch p {
	case PendingShow:
		return "pending-show"
	case Shown:
		return "shown"
	case PendingHide:
		return "pending-hide"
	default:
		return "idle"
	}
}

// TooltipKind tells how a tooltip goes away
type TooltipKind string

const (
	// TooltipHover stays until the hover ends
	TooltipHover TooltipKind = "hover"
	// TooltipClick hides itself after the tooltip delay
	TooltipClick TooltipKind = "click"
)

// Tooltip is the single tooltip currently shown
type Tooltip struct {
	Key  domain.Key  `json:"key"`
	Part string      `json:"part,omitempty"`
	Text string      `json:"text"`
	Kind TooltipKind `json:"kind"`
}

// Command is an outbound command addressed to the host
type Command struct {
	Type   string
	Key    domain.Key
	Number int
	ID     string
}

// Emitter receives outbound commands
type Emitter interface {
	Emit(cmd Command)
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(cmd Command)

func (f EmitterFunc) Emit(cmd Command) { f(cmd) }

// Nodes resolves keys against the visible projection. Only visible nodes
// can be hovered or pinned.
type Nodes interface {
	Find(key domain.Key) (*display.Node, bool)
	Tooltip(key domain.Key, part string) (string, bool)
}

// Options configures the controller delays
type Options struct {
	HoverDelay   time.Duration
	TooltipDelay time.Duration
}

// Controller is the hover/pin/tooltip state machine of one session. It is
// not safe for concurrent use; the session serializes signals and timer
// callbacks onto one goroutine.
type Controller struct {
	opts  Options
	sched schedule.Scheduler
	nodes Nodes
	out   Emitter

	phase  Phase
	target domain.Key     // node the hover machine is working on
	shown  domain.Key     // node whose preview was last shown by hovering
	sent   *Command       // show emitted for shown, nil when suppressed
	timer  schedule.Token // pending show or hide

	pinned domain.Key

	tooltip    *Tooltip
	tipTimer   schedule.Token
	hoveredRow domain.Key
}

// New creates a controller
func New(opts Options, sched schedule.Scheduler, nodes Nodes, out Emitter) *Controller {
	if opts.HoverDelay <= 0 {
		opts.HoverDelay = DefaultHoverDelay
	}
	if opts.TooltipDelay <= 0 {
		opts.TooltipDelay = DefaultTooltipDelay
	}
	return &Controller{opts: opts, sched: sched, nodes: nodes, out: out}
}

// Phase returns the hover machine state
func (c *Controller) Phase() Phase { return c.phase }

// Pinned returns the pinned key, zero when nothing is pinned
func (c *Controller) Pinned() domain.Key { return c.pinned }

// Hovered returns the row under the pointer, zero when none
func (c *Controller) Hovered() domain.Key { return c.hoveredRow }

// Tooltip returns the visible tooltip
func (c *Controller) Tooltip() (Tooltip, bool) {
	if c.tooltip == nil {
		return Tooltip{}, false
	}
	return *c.tooltip, true
}

// MouseOver handles the pointer entering a row or one of its badges
func (c *Controller) MouseOver(key domain.Key, part string) {
	if _, ok := c.nodes.Find(key); !ok {
		return
	}
	if part != "" {
		if text, ok := c.nodes.Tooltip(key, part); ok {
			c.showTooltip(Tooltip{Key: key, Part: part, Text: text, Kind: TooltipHover})
		}
	}
	c.hoveredRow = key

	switch c.phase {
	case Idle:
		c.startShow(key)
	case PendingShow:
		if key != c.target {
			c.sched.Cancel(c.timer)
			c.startShow(key)
		}
	case Shown:
		if key != c.shown {
			c.startShow(key)
		}
	case PendingHide:
		c.sched.Cancel(c.timer)
		c.timer = 0
		if key == c.shown {
			c.phase = Shown
			c.target = key
		} else {
			c.startShow(key)
		}
	}
}

// MouseOut handles the pointer leaving a row or one of its badges. A
// mouseout that does not match the current hover is ignored.
func (c *Controller) MouseOut(key domain.Key, part string) {
	if part != "" {
		if c.tooltip != nil && c.tooltip.Kind == TooltipHover &&
			c.tooltip.Key == key && c.tooltip.Part == part {
			c.clearTooltip()
		}
		return
	}
	if key != c.target {
		return
	}
	if c.hoveredRow == key {
		c.hoveredRow = 0
	}

	switch c.phase {
	case PendingShow:
		c.sched.Cancel(c.timer)
		c.timer = 0
		if c.shown != 0 {
			// Still showing an earlier target
			c.target = c.shown
			c.startHide()
		} else {
			c.phase = Idle
			c.target = 0
		}
	case Shown:
		c.startHide()
	}
}

// Click pins key, or unpins it when it is already pinned
func (c *Controller) Click(key domain.Key) {
	n, ok := c.nodes.Find(key)
	if !ok {
		return
	}
	if c.pinned == key {
		c.pinned = 0
		return
	}
	c.pinned = key
	c.emit(protocol.TypeConsoleLog, n)
	c.emit(protocol.TypeShowPreview, n)

	c.showTooltip(Tooltip{Key: key, Text: ClickTooltip, Kind: TooltipClick})
	c.tipTimer = c.sched.After(c.opts.TooltipDelay, func() {
		c.tipTimer = 0
		if c.tooltip != nil && c.tooltip.Kind == TooltipClick {
			c.tooltip = nil
		}
	})
}

// Unpin clears the pin without emitting anything
func (c *Controller) Unpin() {
	c.pinned = 0
}

// Reset cancels every timer and clears hover, pin and tooltip. A preview
// still shown on the host is hidden first.
func (c *Controller) Reset() {
	c.retractPreview()
	c.cancelHover()
	c.pinned = 0
	c.clearTooltip()
}

// Remap moves the controller onto a rebuilt tree of the same run. The pin
// follows its record through move; hover and tooltips start over.
func (c *Controller) Remap(move func(domain.Key) (domain.Key, bool)) {
	pinned := c.pinned
	c.Reset()
	if pinned != 0 {
		if k, ok := move(pinned); ok {
			c.pinned = k
		}
	}
}

func (c *Controller) startShow(key domain.Key) {
	c.phase = PendingShow
	c.target = key
	c.timer = c.sched.After(c.opts.HoverDelay, func() {
		c.timer = 0
		c.phase = Shown
		c.shown = key
		c.sent = nil
		// A pin owns the preview
		if c.pinned != 0 {
			return
		}
		if n, ok := c.nodes.Find(key); ok {
			c.sent = c.emit(protocol.TypeShowPreview, n)
		}
	})
}

func (c *Controller) startHide() {
	c.phase = PendingHide
	c.timer = c.sched.After(c.opts.HoverDelay, func() {
		c.timer = 0
		c.phase = Idle
		c.target = 0
		c.shown = 0
		c.retractPreview()
	})
}

// retractPreview emits hide-preview for the emitted show, unless a pin
// owns the preview
func (c *Controller) retractPreview() {
	sent := c.sent
	c.sent = nil
	if sent == nil || c.pinned != 0 {
		return
	}
	hide := *sent
	hide.Type = protocol.TypeHidePreview
	c.out.Emit(hide)
}

func (c *Controller) cancelHover() {
	c.sched.Cancel(c.timer)
	c.timer = 0
	c.phase = Idle
	c.target = 0
	c.shown = 0
	c.sent = nil
	c.hoveredRow = 0
}

func (c *Controller) showTooltip(t Tooltip) {
	c.clearTooltip()
	c.tooltip = &t
}

func (c *Controller) clearTooltip() {
	c.sched.Cancel(c.tipTimer)
	c.tipTimer = 0
	c.tooltip = nil
}

func (c *Controller) emit(typ string, n *display.Node) *Command {
	cmd := Command{Type: typ, Key: n.Key, Number: n.Number, ID: n.ID}
	c.out.Emit(cmd)
	return &cmd
}
