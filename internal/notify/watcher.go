package notify

import (
	"fmt"
	"log"

	"github.com/hochfrequenz/live-reporter/internal/reporter"
)

// RunWatcher sends one notification each time a run goes from having
// pending commands to having none
type RunWatcher struct {
	notifier Notifier
	send     func(func())

	runID   string
	pending bool
}

// NewRunWatcher creates a watcher. Notifications are sent on their own
// goroutine so the session is never blocked by a slow notifier.
func NewRunWatcher(notifier Notifier) *RunWatcher {
	return &RunWatcher{
		notifier: notifier,
		send:     func(fn func()) { go fn() },
	}
}

// Observe inspects a published view. It is meant for reporter.Session.Subscribe.
func (w *RunWatcher) Observe(v *reporter.View) {
	if v.Run.ID != w.runID {
		w.runID = v.Run.ID
		w.pending = false
	}

	s := v.Summary
	if s.Pending > 0 {
		w.pending = true
		return
	}
	if !w.pending || s.Total == 0 {
		return
	}
	w.pending = false

	n := Settled(v)
	w.send(func() {
		if err := w.notifier.Send(n); err != nil {
			log.Printf("[notify] Failed to send: %v", err)
		}
	})
}

// Settled builds the notification for a view with no pending commands
func Settled(v *reporter.View) Notification {
	s := v.Summary
	n := Notification{
		Title:   "Run passed",
		Message: fmt.Sprintf("%d passed, %d failed, %d warned", s.Passed, s.Failed, s.Warned),
		Type:    NotifySuccess,
		RunID:   v.Run.ID,
	}
	switch {
	case s.Failed > 0:
		n.Title = "Run failed"
		n.Type = NotifyError
	case s.Warned > 0:
		n.Title = "Run passed with warnings"
		n.Type = NotifyWarning
	}
	if v.Run.Spec != "" {
		n.Title += ": " + v.Run.Spec
	}
	return n
}
