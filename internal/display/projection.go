// Package display derives the visible projection of a command tree: sequence
// numbers, collapsed runs of duplicate events, group open state and the
// auxiliary badges a renderer shows next to a command.
package display

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/timing"
	"github.com/hochfrequenz/live-reporter/internal/tree"
)

// DefaultScaledMessageLength is the message length above which a command is
// rendered scaled down
const DefaultScaledMessageLength = 100

// Badge parts a renderer can forward hover signals for
const (
	PartNumElements = "num-elements"
	PartInvisible   = "invisible"
	PartDuplicates  = "duplicates"
	PartNumChildren = "num-children"
)

// Badge is supplementary information attached to a visible node
type Badge struct {
	Part    string `json:"part"`
	Text    string `json:"text,omitempty"`
	Tooltip string `json:"tooltip"`
}

// Progress is the timing output for a pending command
type Progress struct {
	DurationMs int64   `json:"duration_ms"`
	Scale      float64 `json:"scale"`
}

// Node is one entry of the visible projection. A node either stands for a
// single record or, when DuplicateCount >= 2, for a collapsed run of
// identical events headed by the record under Key.
type Node struct {
	Key            domain.Key         `json:"key"`
	ID             string             `json:"id,omitempty"`
	Name           string             `json:"name"`
	Message        string             `json:"message,omitempty"`
	Spans          []Span             `json:"spans,omitempty"`
	State          domain.State       `json:"state"`
	Type           domain.CommandType `json:"type"`
	IsEvent        bool               `json:"is_event,omitempty"`
	Number         int                `json:"number,omitempty"`
	Method         string             `json:"method,omitempty"`
	Indicator      domain.Indicator   `json:"indicator,omitempty"`
	Depth          int                `json:"depth"`
	GroupLevel     int                `json:"group_level,omitempty"`
	IsGroup        bool               `json:"is_group,omitempty"`
	Open           bool               `json:"open,omitempty"`
	HiddenCount    int                `json:"hidden_count,omitempty"`
	DuplicateCount int                `json:"duplicate_count,omitempty"`
	Expanded       bool               `json:"expanded,omitempty"`
	Scaled         bool               `json:"scaled,omitempty"`
	NumElements    *int               `json:"num_elements,omitempty"`
	Visible        *bool              `json:"visible,omitempty"`
	Progress       *Progress          `json:"progress,omitempty"`
	Badges         []Badge            `json:"badges,omitempty"`
	Pinned         bool               `json:"pinned,omitempty"`
	Hovered        bool               `json:"hovered,omitempty"`
	Children       []Node             `json:"children,omitempty"`
}

// Options tunes a projection
type Options struct {
	Now                 time.Time
	ScaledMessageLength int
}

// Projection is the ordered visible read model of a tree
type Projection struct {
	Nodes []Node `json:"nodes"`
	index map[domain.Key]*Node
	total int
}

// Project derives the visible projection of t under the display state s
func Project(t *tree.Tree, s *State, opts Options) *Projection {
	if opts.ScaledMessageLength <= 0 {
		opts.ScaledMessageLength = DefaultScaledMessageLength
	}
	b := &builder{
		tree:    t,
		state:   s,
		opts:    opts,
		numbers: Numbers(t),
	}
	p := &Projection{Nodes: b.level(tree.Root, 0)}
	p.reindex()
	return p
}

// Numbers assigns 1-based sequence numbers to every non-event record in
// depth-first order, regardless of which groups are open.
func Numbers(t *tree.Tree) map[domain.Key]int {
	numbers := make(map[domain.Key]int)
	next := 1
	t.Walk(func(rec domain.CommandRecord, _ int) bool {
		if !rec.IsEvent {
			numbers[rec.Key] = next
			next++
		}
		return true
	})
	return numbers
}

type builder struct {
	tree    *tree.Tree
	state   *State
	opts    Options
	numbers map[domain.Key]int
}

func (b *builder) level(parent domain.Key, depth int) []Node {
	runs := duplicateRuns(b.tree, b.tree.ChildrenOf(parent))
	nodes := make([]Node, 0, len(runs))
	for _, run := range runs {
		n := b.node(run[0], depth)
		if len(run) >= 2 {
			n.DuplicateCount = len(run)
			n.Expanded = b.state.IsExpanded(run[0])
			if n.Expanded {
				n.Children = make([]Node, 0, len(run)-1)
				for _, k := range run[1:] {
					n.Children = append(n.Children, b.node(k, depth+1))
				}
			}
			n.Badges = append(n.Badges, Badge{
				Part:    PartDuplicates,
				Text:    fmt.Sprint(len(run)),
				Tooltip: fmt.Sprintf("This event occurred %d times", len(run)),
			})
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func (b *builder) node(key domain.Key, depth int) Node {
	rec, _ := b.tree.Get(key)
	msg := rec.DisplayMessage()
	n := Node{
		Key:         rec.Key,
		ID:          rec.ID,
		Name:        rec.Name,
		Message:     msg,
		Spans:       ParseMarkup(msg),
		State:       rec.State,
		Type:        rec.Type,
		IsEvent:     rec.IsEvent,
		Number:      b.numbers[rec.Key],
		Depth:       depth,
		GroupLevel:  rec.GroupLevel,
		Scaled:      utf8.RuneCountInString(msg) > b.opts.ScaledMessageLength,
		NumElements: rec.NumElements,
		Visible:     rec.Visible,
	}
	if rec.IsEvent {
		n.Method = fmt.Sprintf("(%s)", rec.Name)
		n.Indicator = rec.RenderProps.Indicator
	}
	if rec.State == domain.StatePending && rec.Timeout > 0 && !rec.WallClockStartedAt.IsZero() {
		p := timing.Compute(b.opts.Now, rec.WallClockStartedAt, rec.Timeout)
		n.Progress = &Progress{DurationMs: p.Duration.Milliseconds(), Scale: p.Scale}
	}
	n.Badges = indicatorBadges(rec)

	children := b.tree.ChildrenOf(key)
	if len(children) > 0 {
		n.IsGroup = true
		n.Open = b.state.IsOpen(b.tree, key)
		if n.Open {
			n.Children = b.level(key, depth+1)
		} else {
			n.HiddenCount = len(children)
			n.Badges = append(n.Badges, Badge{
				Part:    PartNumChildren,
				Text:    fmt.Sprint(len(children)),
				Tooltip: fmt.Sprintf("%d logs currently hidden", len(children)),
			})
		}
	}
	return n
}

func indicatorBadges(rec domain.CommandRecord) []Badge {
	var badges []Badge
	if rec.NumElements != nil && *rec.NumElements != 1 {
		badges = append(badges, Badge{
			Part:    PartNumElements,
			Text:    fmt.Sprint(*rec.NumElements),
			Tooltip: fmt.Sprintf("%d matched elements", *rec.NumElements),
		})
	}
	if rec.Visible != nil && !*rec.Visible {
		tip := "This element is not visible."
		if rec.NumElements != nil && *rec.NumElements > 1 {
			tip = "One or more matched elements are not visible."
		}
		badges = append(badges, Badge{Part: PartInvisible, Tooltip: tip})
	}
	return badges
}

// duplicateRuns groups sibling keys into maximal runs. Consecutive event
// records without children that share name and message form one run; every
// other record is a run of one.
func duplicateRuns(t *tree.Tree, keys []domain.Key) [][]domain.Key {
	var runs [][]domain.Key
	var prev domain.CommandRecord
	for i, k := range keys {
		rec, _ := t.Get(k)
		if i > 0 && dedupable(t, rec) && dedupable(t, prev) &&
			rec.Name == prev.Name && rec.DisplayMessage() == prev.DisplayMessage() {
			runs[len(runs)-1] = append(runs[len(runs)-1], k)
		} else {
			runs = append(runs, []domain.Key{k})
		}
		prev = rec
	}
	return runs
}

func dedupable(t *tree.Tree, rec domain.CommandRecord) bool {
	return rec.IsEvent && len(t.ChildrenOf(rec.Key)) == 0
}

func (p *Projection) reindex() {
	p.index = make(map[domain.Key]*Node)
	p.total = 0
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for i := range nodes {
			p.index[nodes[i].Key] = &nodes[i]
			p.total++
			walk(nodes[i].Children)
		}
	}
	walk(p.Nodes)
}

// Find returns the visible node stored under key. Records hidden inside a
// closed group or a collapsed run are not visible.
func (p *Projection) Find(key domain.Key) (*Node, bool) {
	n, ok := p.index[key]
	return n, ok
}

// Len returns the number of visible nodes
func (p *Projection) Len() int {
	return p.total
}

// Mark flags the pinned and hovered nodes. Zero keys clear the flag.
func (p *Projection) Mark(pinned, hovered domain.Key) {
	for _, n := range p.index {
		n.Pinned = n.Key == pinned && pinned != 0
		n.Hovered = n.Key == hovered && hovered != 0
	}
}

// Tooltip returns the tooltip of a node's badge. An empty part addresses
// the row itself, which has no tooltip.
func (p *Projection) Tooltip(key domain.Key, part string) (string, bool) {
	n, ok := p.Find(key)
	if !ok || part == "" {
		return "", false
	}
	for _, badge := range n.Badges {
		if badge.Part == part {
			return badge.Tooltip, true
		}
	}
	return "", false
}

// Row is a flattened projection entry for line-oriented renderers
type Row struct {
	Node  *Node
	Depth int
}

// Rows flattens the projection in display order
func (p *Projection) Rows() []Row {
	rows := make([]Row, 0, p.total)
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for i := range nodes {
			rows = append(rows, Row{Node: &nodes[i], Depth: nodes[i].Depth})
			walk(nodes[i].Children)
		}
	}
	walk(p.Nodes)
	return rows
}
