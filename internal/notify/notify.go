// Package notify tells people outside the terminal when a run settles.
package notify

import "errors"

// NotificationType sets the color or icon a channel uses
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification is one message about a run
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string
}

// Notifier delivers notifications to one channel
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier fans a notification out to several channels
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send tries every channel and joins their errors
func (m *MultiNotifier) Send(n Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
