// Package schedule provides the cancellable one-shot timers the interaction
// controller runs on. Callbacks never run concurrently with the code that
// scheduled them: the realtime scheduler hands them back to the owner's
// event loop, the manual scheduler runs them from Advance.
package schedule

import (
	"sort"
	"sync"
	"time"
)

// Token identifies a scheduled callback. The zero Token is never issued.
type Token uint64

// Scheduler runs callbacks after a delay
type Scheduler interface {
	// After schedules fn to run once d has passed
	After(d time.Duration, fn func()) Token
	// Cancel drops a scheduled callback. Cancelling a token that already
	// ran, or the zero token, is a no-op.
	Cancel(tok Token)
	// Now returns the scheduler's current time
	Now() time.Time
}

// Realtime schedules on the wall clock. Due callbacks are passed to post,
// which must run them on the owner's goroutine.
type Realtime struct {
	post func(func())

	mu     sync.Mutex
	next   Token
	timers map[Token]*time.Timer
}

// NewRealtime creates a wall clock scheduler
func NewRealtime(post func(func())) *Realtime {
	return &Realtime{
		post:   post,
		timers: make(map[Token]*time.Timer),
	}
}

func (r *Realtime) After(d time.Duration, fn func()) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	tok := r.next
	r.timers[tok] = time.AfterFunc(d, func() {
		r.post(func() {
			// The timer may have fired before a Cancel that ran first on
			// the owner's goroutine
			if r.take(tok) {
				fn()
			}
		})
	})
	return tok
}

func (r *Realtime) Cancel(tok Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[tok]; ok {
		t.Stop()
		delete(r.timers, tok)
	}
}

func (r *Realtime) Now() time.Time {
	return time.Now()
}

// Stop cancels every pending callback
func (r *Realtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tok, t := range r.timers {
		t.Stop()
		delete(r.timers, tok)
	}
}

func (r *Realtime) take(tok Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.timers[tok]; !ok {
		return false
	}
	delete(r.timers, tok)
	return true
}

type entry struct {
	tok Token
	at  time.Time
	fn  func()
}

// Manual is a scheduler driven by Advance, for tests and replays
type Manual struct {
	now     time.Time
	next    Token
	pending map[Token]entry
}

// NewManual creates a manual scheduler whose clock starts at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, pending: make(map[Token]entry)}
}

func (m *Manual) After(d time.Duration, fn func()) Token {
	m.next++
	m.pending[m.next] = entry{tok: m.next, at: m.now.Add(d), fn: fn}
	return m.next
}

func (m *Manual) Cancel(tok Token) {
	delete(m.pending, tok)
}

func (m *Manual) Now() time.Time {
	return m.now
}

// Pending returns the number of scheduled callbacks
func (m *Manual) Pending() int {
	return len(m.pending)
}

// Advance moves the clock forward by d and runs every callback that became
// due, earliest first. Callbacks scheduled while advancing run in the same
// call when they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	end := m.now.Add(d)
	for {
		e, ok := m.earliest()
		if !ok || e.at.After(end) {
			break
		}
		delete(m.pending, e.tok)
		if e.at.After(m.now) {
			m.now = e.at
		}
		e.fn()
	}
	m.now = end
}

func (m *Manual) earliest() (entry, bool) {
	if len(m.pending) == 0 {
		return entry{}, false
	}
	entries := make([]entry, 0, len(m.pending))
	for _, e := range m.pending {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at.Equal(entries[j].at) {
			return entries[i].tok < entries[j].tok
		}
		return entries[i].at.Before(entries[j].at)
	})
	return entries[0], true
}
