// Package tree assembles command records into an order-preserving forest.
// It is the only place that decides where a record sits; positions never
// change once assigned.
package tree

import (
	"errors"
	"fmt"

	"github.com/hochfrequenz/live-reporter/internal/domain"
)

// Root is the pseudo key of the forest root
const Root domain.Key = 0

// ErrUnknownNode is returned when a key does not resolve to a record
var ErrUnknownNode = errors.New("unknown node")

type node struct {
	rec      domain.CommandRecord
	parent   domain.Key
	children []domain.Key
}

// Tree is the authoritative command tree of one run
type Tree struct {
	nodes map[domain.Key]*node
	roots []domain.Key
	byID  map[string]domain.Key
}

// New creates an empty tree
func New() *Tree {
	return &Tree{
		nodes: make(map[domain.Key]*node),
		byID:  make(map[string]domain.Key),
	}
}

// Build inserts records in order into a fresh tree
func Build(records []domain.CommandRecord) (*Tree, []domain.Diagnostic) {
	t := New()
	var diags []domain.Diagnostic
	for _, rec := range records {
		diags = append(diags, t.Insert(rec)...)
	}
	return t, diags
}

// Insert appends rec as the last child of the record its Group references,
// or as the last root when it has none. A group reference that does not
// resolve places the record at the root and returns a diagnostic.
func (t *Tree) Insert(rec domain.CommandRecord) []domain.Diagnostic {
	var diags []domain.Diagnostic
	if _, exists := t.nodes[rec.Key]; exists || rec.Key == Root {
		return []domain.Diagnostic{{
			Key:    rec.Key,
			ID:     rec.ID,
			Kind:   domain.DiagMalformedRecord,
			Detail: fmt.Sprintf("key %d already placed", rec.Key),
		}}
	}

	parent := Root
	if rec.HasGroup() {
		if key, ok := t.byID[rec.Group]; ok {
			parent = key
		} else {
			diags = append(diags, domain.Diagnostic{
				Key:    rec.Key,
				ID:     rec.ID,
				Kind:   domain.DiagDanglingGroup,
				Detail: fmt.Sprintf("group %q not found, placed at root", rec.Group),
			})
		}
	}

	t.nodes[rec.Key] = &node{rec: rec, parent: parent}
	if parent == Root {
		t.roots = append(t.roots, rec.Key)
	} else {
		p := t.nodes[parent]
		p.children = append(p.children, rec.Key)
	}
	if rec.ID != "" {
		t.byID[rec.ID] = rec.Key
	}
	return diags
}

// Change describes the effect of an Update
type Change struct {
	Key domain.Key
	// Settled is true when the update moved the record from pending to a
	// terminal state.
	Settled bool
	// Modified is true when any field changed
	Modified bool
}

// Update merges patch into the most recently inserted record with the given
// host id. The record keeps its position.
func (t *Tree) Update(id string, patch domain.Patch) (Change, []domain.Diagnostic) {
	key, ok := t.byID[id]
	if !ok {
		return Change{}, []domain.Diagnostic{{
			ID:     id,
			Kind:   domain.DiagUnknownCommand,
			Detail: "update for unknown command",
		}}
	}
	return t.UpdateKey(key, patch)
}

// UpdateKey merges patch into the record stored under key
func (t *Tree) UpdateKey(key domain.Key, patch domain.Patch) (Change, []domain.Diagnostic) {
	n, ok := t.nodes[key]
	if !ok {
		return Change{}, []domain.Diagnostic{{
			Key:    key,
			Kind:   domain.DiagUnknownCommand,
			Detail: "update for unknown key",
		}}
	}

	change := Change{Key: key}
	var diags []domain.Diagnostic
	rec := &n.rec

	if patch.State != nil && *patch.State != rec.State {
		if rec.State.IsTerminal() {
			diags = append(diags, domain.Diagnostic{
				Key:    key,
				ID:     rec.ID,
				Kind:   domain.DiagRejectedTransition,
				Detail: fmt.Sprintf("%s -> %s", rec.State, *patch.State),
			})
		} else {
			rec.State = *patch.State
			change.Settled = true
			change.Modified = true
		}
	}
	if patch.Message != nil && *patch.Message != rec.Message {
		rec.Message = *patch.Message
		change.Modified = true
	}
	if patch.NumElements != nil && (rec.NumElements == nil || *rec.NumElements != *patch.NumElements) {
		v := *patch.NumElements
		rec.NumElements = &v
		change.Modified = true
	}
	if patch.Visible != nil && (rec.Visible == nil || *rec.Visible != *patch.Visible) {
		v := *patch.Visible
		rec.Visible = &v
		change.Modified = true
	}
	if patch.RenderProps != nil && *patch.RenderProps != rec.RenderProps {
		rec.RenderProps = *patch.RenderProps
		change.Modified = true
	}
	return change, diags
}

// Get returns the record stored under key
func (t *Tree) Get(key domain.Key) (domain.CommandRecord, bool) {
	n, ok := t.nodes[key]
	if !ok {
		return domain.CommandRecord{}, false
	}
	return n.rec, true
}

// Lookup resolves a host id to the key of its most recent record
func (t *Tree) Lookup(id string) (domain.Key, bool) {
	key, ok := t.byID[id]
	return key, ok
}

// Has reports whether key is placed in the tree
func (t *Tree) Has(key domain.Key) bool {
	_, ok := t.nodes[key]
	return ok
}

// Len returns the number of records
func (t *Tree) Len() int {
	return len(t.nodes)
}

// ChildrenOf returns the direct children of key in arrival order. Pass Root
// for the top level. The returned slice is a copy.
func (t *Tree) ChildrenOf(key domain.Key) []domain.Key {
	var src []domain.Key
	if key == Root {
		src = t.roots
	} else if n, ok := t.nodes[key]; ok {
		src = n.children
	}
	out := make([]domain.Key, len(src))
	copy(out, src)
	return out
}

// ParentOf returns the parent key, Root for top-level records
func (t *Tree) ParentOf(key domain.Key) (domain.Key, error) {
	n, ok := t.nodes[key]
	if !ok {
		return Root, fmt.Errorf("parent of %d: %w", key, ErrUnknownNode)
	}
	return n.parent, nil
}

// AncestorsOf returns the path from the top level down to key, inclusive
func (t *Tree) AncestorsOf(key domain.Key) ([]domain.Key, error) {
	if _, ok := t.nodes[key]; !ok {
		return nil, fmt.Errorf("ancestors of %d: %w", key, ErrUnknownNode)
	}
	var path []domain.Key
	for k := key; k != Root; k = t.nodes[k].parent {
		path = append(path, k)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// Walk visits every record depth first in sibling order. Returning false
// from fn skips the record's children.
func (t *Tree) Walk(fn func(rec domain.CommandRecord, depth int) bool) {
	var visit func(keys []domain.Key, depth int)
	visit = func(keys []domain.Key, depth int) {
		for _, k := range keys {
			n := t.nodes[k]
			if fn(n.rec, depth) {
				visit(n.children, depth+1)
			}
		}
	}
	visit(t.roots, 0)
}

// Records returns all records in depth-first order
func (t *Tree) Records() []domain.CommandRecord {
	out := make([]domain.CommandRecord, 0, len(t.nodes))
	t.Walk(func(rec domain.CommandRecord, _ int) bool {
		out = append(out, rec)
		return true
	})
	return out
}
