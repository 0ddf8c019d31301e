// Package observer summarizes a run: counts per state, overdue pending
// commands and how long settled commands took.
package observer

import (
	"sync"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/tree"
)

// Observer watches command execution and collects run metrics
type Observer struct {
	settled []settlement
	mu      sync.RWMutex
}

type settlement struct {
	Key       domain.Key
	State     domain.State
	Duration  time.Duration
	SettledAt time.Time
}

// Summary holds the aggregated state of a run
type Summary struct {
	Total       int           `json:"total"`
	Events      int           `json:"events"`
	Pending     int           `json:"pending"`
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	Warned      int           `json:"warned"`
	Overdue     []domain.Key  `json:"overdue,omitempty"`
	Diagnostics int           `json:"diagnostics"`
	Settled     int           `json:"settled"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// New creates a new Observer
func New() *Observer {
	return &Observer{}
}

// IsOverdue returns true if a pending command ran past its timeout at now
func IsOverdue(rec domain.CommandRecord, now time.Time) bool {
	if rec.State != domain.StatePending {
		return false
	}
	if rec.Timeout <= 0 || rec.WallClockStartedAt.IsZero() {
		return false
	}
	return now.Sub(rec.WallClockStartedAt) > rec.Timeout
}

// RecordSettled records a command leaving the pending state at settledAt
func (o *Observer) RecordSettled(rec domain.CommandRecord, settledAt time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var d time.Duration
	if !rec.WallClockStartedAt.IsZero() && settledAt.After(rec.WallClockStartedAt) {
		d = settledAt.Sub(rec.WallClockStartedAt)
	}
	o.settled = append(o.settled, settlement{
		Key:       rec.Key,
		State:     rec.State,
		Duration:  d,
		SettledAt: settledAt,
	})
}

// Reset forgets every recorded settlement
func (o *Observer) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settled = nil
}

// Summarize aggregates the tree as seen at now
func (o *Observer) Summarize(t *tree.Tree, now time.Time, diagnostics int) Summary {
	s := Summary{Diagnostics: diagnostics}
	t.Walk(func(rec domain.CommandRecord, _ int) bool {
		s.Total++
		if rec.IsEvent {
			s.Events++
		}
		switch rec.State {
		case domain.StatePending:
			s.Pending++
		case domain.StatePassed:
			s.Passed++
		case domain.StateFailed:
			s.Failed++
		case domain.StateWarn:
			s.Warned++
		}
		if IsOverdue(rec, now) {
			s.Overdue = append(s.Overdue, rec.Key)
		}
		return true
	})

	o.mu.RLock()
	defer o.mu.RUnlock()

	var total time.Duration
	for _, st := range o.settled {
		s.Settled++
		total += st.Duration
	}
	if s.Settled > 0 {
		s.AvgDuration = total / time.Duration(s.Settled)
	}
	return s
}

// RecentlySettled returns the commands that settled within since of now
func (o *Observer) RecentlySettled(now time.Time, since time.Duration) []domain.Key {
	o.mu.RLock()
	defer o.mu.RUnlock()

	cutoff := now.Add(-since)
	var result []domain.Key
	for _, st := range o.settled {
		if st.SettledAt.After(cutoff) {
			result = append(result, st.Key)
		}
	}
	return result
}
