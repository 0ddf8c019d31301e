package reporter

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/protocol"
	"github.com/hochfrequenz/live-reporter/internal/schedule"
)

// ErrClosed is returned when submitting to a closed loop
var ErrClosed = errors.New("reporter session closed")

const (
	defaultInboxSize = 256
	refreshInterval  = time.Second
)

// Loop serializes everything that touches a session onto one goroutine:
// host events, renderer signals and timer callbacks all pass through the
// inbox in arrival order.
type Loop struct {
	session *Session
	sched   *schedule.Realtime

	inbox  chan func()
	done   chan struct{}
	closed atomic.Bool
}

// NewLoop creates a session running on the wall clock
func NewLoop(opts Options) *Loop {
	size := opts.InboxSize
	if size <= 0 {
		size = defaultInboxSize
	}
	l := &Loop{
		inbox: make(chan func(), size),
		done:  make(chan struct{}),
	}
	l.sched = schedule.NewRealtime(l.post)
	l.session = New(opts, l.sched)
	return l
}

// Session returns the session. Only View, Subscribe, AddOutbound and
// SetRecorder may be used directly, and the last three only before Run.
func (l *Loop) Session() *Session {
	return l.session
}

// View returns the latest published view
func (l *Loop) View() *View {
	return l.session.View()
}

// Submit queues an envelope for the session
func (l *Loop) Submit(ctx context.Context, env protocol.EnvelopeRaw) error {
	return l.Do(ctx, func(s *Session) { s.Handle(env) })
}

// Do queues fn to run on the session goroutine
func (l *Loop) Do(ctx context.Context, fn func(*Session)) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case l.inbox <- func() { fn(l.session) }:
		return nil
	}
}

// Run processes the inbox until ctx is cancelled or the loop is closed
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	defer l.sched.Stop()

	log.Printf("[reporter] Session %s started", l.session.ID())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.done:
			return nil
		case fn := <-l.inbox:
			fn()
		case <-ticker.C:
			// Only pending commands change with time
			if l.session.View().Summary.Pending > 0 {
				l.session.Refresh()
			}
		}
	}
}

// Close stops the loop. Queued work that has not run is dropped.
func (l *Loop) Close() {
	if l.closed.CompareAndSwap(false, true) {
		close(l.done)
	}
}

func (l *Loop) post(fn func()) {
	select {
	case l.inbox <- fn:
	case <-l.done:
	}
}
