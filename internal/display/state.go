package display

import (
	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/tree"
)

// State holds the display decisions that cannot be derived from the tree:
// user toggles, duplicate expansions and group defaults frozen once the
// group itself settled. Everything else is recomputed on every projection.
type State struct {
	toggled  map[domain.Key]bool
	frozen   map[domain.Key]bool
	expanded map[domain.Key]bool
}

// NewState creates an empty display state
func NewState() *State {
	return &State{
		toggled:  make(map[domain.Key]bool),
		frozen:   make(map[domain.Key]bool),
		expanded: make(map[domain.Key]bool),
	}
}

// DefaultOpen returns the derived open flag of a group: closed when the most
// recently added direct child failed, open otherwise.
func DefaultOpen(t *tree.Tree, key domain.Key) bool {
	children := t.ChildrenOf(key)
	if len(children) == 0 {
		return true
	}
	last, ok := t.Get(children[len(children)-1])
	return !ok || last.State != domain.StateFailed
}

// IsOpen resolves a group's open flag: user toggle, then frozen default,
// then the live default.
func (s *State) IsOpen(t *tree.Tree, key domain.Key) bool {
	if open, ok := s.toggled[key]; ok {
		return open
	}
	if open, ok := s.frozen[key]; ok {
		return open
	}
	return DefaultOpen(t, key)
}

// Freeze captures the current default of a group. Later child updates no
// longer change it; a user toggle still does.
func (s *State) Freeze(t *tree.Tree, key domain.Key) {
	if _, ok := s.frozen[key]; ok {
		return
	}
	s.frozen[key] = DefaultOpen(t, key)
}

// IsFrozen reports whether the group's default was frozen
func (s *State) IsFrozen(key domain.Key) bool {
	_, ok := s.frozen[key]
	return ok
}

// ToggleGroup flips the open flag the user sees for a group
func (s *State) ToggleGroup(t *tree.Tree, key domain.Key) {
	s.toggled[key] = !s.IsOpen(t, key)
}

// ToggleDuplicates flips the expansion of the duplicate run headed by key
func (s *State) ToggleDuplicates(head domain.Key) {
	if s.expanded[head] {
		delete(s.expanded, head)
		return
	}
	s.expanded[head] = true
}

// IsExpanded reports whether the duplicate run headed by key is expanded
func (s *State) IsExpanded(head domain.Key) bool {
	return s.expanded[head]
}

// Toggle applies a user toggle to whatever key addresses: the head of a
// collapsed duplicate run, or a group. It reports whether anything changed.
func (s *State) Toggle(t *tree.Tree, key domain.Key) bool {
	if !t.Has(key) {
		return false
	}
	parent, err := t.ParentOf(key)
	if err != nil {
		return false
	}
	for _, run := range duplicateRuns(t, t.ChildrenOf(parent)) {
		if len(run) >= 2 && run[0] == key {
			s.ToggleDuplicates(key)
			return true
		}
	}
	if len(t.ChildrenOf(key)) > 0 {
		s.ToggleGroup(t, key)
		return true
	}
	return false
}

// Remap carries the state over to a rebuilt tree of the same run. Entries
// follow their record's host id; records without an id, or whose id is gone
// from next, lose their state.
func (s *State) Remap(prev, next *tree.Tree) *State {
	out := NewState()
	move := func(src, dst map[domain.Key]bool) {
		for k, v := range src {
			if nk, ok := RemapKey(prev, next, k); ok {
				dst[nk] = v
			}
		}
	}
	move(s.toggled, out.toggled)
	move(s.frozen, out.frozen)
	move(s.expanded, out.expanded)
	return out
}

// RemapKey translates a key of prev into the key of the record with the same
// host id in next
func RemapKey(prev, next *tree.Tree, key domain.Key) (domain.Key, bool) {
	rec, ok := prev.Get(key)
	if !ok || rec.ID == "" {
		return 0, false
	}
	return next.Lookup(rec.ID)
}
