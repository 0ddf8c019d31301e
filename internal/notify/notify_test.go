package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hochfrequenz/live-reporter/internal/domain"
	"github.com/hochfrequenz/live-reporter/internal/observer"
	"github.com/hochfrequenz/live-reporter/internal/reporter"
)

func TestSlackNotifier_Send(t *testing.T) {
	var got SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Run failed",
		Message: "1 passed, 1 failed, 0 warned",
		Type:    NotifyError,
		RunID:   "r1",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got.Text != "Run failed" || len(got.Attachments) != 1 {
		t.Fatalf("message = %+v", got)
	}
	if a := got.Attachments[0]; a.Color != "danger" || a.Title != "Run r1" || a.Footer != "Live Reporter" {
		t.Errorf("attachment = %+v", a)
	}
}

func TestSlackNotifier_Disabled(t *testing.T) {
	if err := NewSlackNotifier("").Send(Notification{Title: "x"}); err != nil {
		t.Errorf("Send with no webhook = %v, want nil", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	rec := &recorder{}
	failing := &recorder{err: errors.New("webhook down")}
	multi := NewMultiNotifier(failing, rec)
	err := multi.Send(Notification{Title: "Test"})

	if len(rec.sent) != 1 || len(failing.sent) != 1 {
		t.Errorf("calls = %d and %d, want 1 each", len(failing.sent), len(rec.sent))
	}
	if err == nil || err.Error() != "webhook down" {
		t.Errorf("Send() = %v, want webhook down", err)
	}
}

func TestDesktopCommand(t *testing.T) {
	n := Notification{Title: `Run "a" failed`, Message: "1 failed", Type: NotifyError}

	name, args := desktopCommand("darwin", n)
	if name != "osascript" || args[1] != `display notification "1 failed" with title "Run \"a\" failed"` {
		t.Errorf("darwin = %s %q", name, args)
	}

	name, args = desktopCommand("linux", n)
	if name != "notify-send" || args[3] != "dialog-error" || args[4] != n.Title {
		t.Errorf("linux = %s %q", name, args)
	}

	if name, _ := desktopCommand("plan9", n); name != "" {
		t.Errorf("plan9 = %s, want no command", name)
	}
}

type recorder struct {
	sent []Notification
	err  error
}

func (r *recorder) Send(n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func view(runID string, s observer.Summary) *reporter.View {
	return &reporter.View{Run: domain.RunInfo{ID: runID, Spec: "login.cy.ts"}, Summary: s}
}

func TestRunWatcher_NotifiesOnSettle(t *testing.T) {
	rec := &recorder{}
	w := NewRunWatcher(rec)
	w.send = func(fn func()) { fn() }

	steps := []struct {
		view *reporter.View
		want int
	}{
		{view("r1", observer.Summary{}), 0},
		{view("r1", observer.Summary{Total: 2, Pending: 2}), 0},
		{view("r1", observer.Summary{Total: 2, Pending: 1, Passed: 1}), 0},
		{view("r1", observer.Summary{Total: 2, Passed: 1, Failed: 1}), 1},
		// Still settled, no repeat
		{view("r1", observer.Summary{Total: 2, Passed: 1, Failed: 1}), 1},
		// New pending work settles again
		{view("r1", observer.Summary{Total: 3, Pending: 1, Passed: 1, Failed: 1}), 1},
		{view("r1", observer.Summary{Total: 3, Passed: 2, Failed: 1}), 2},
		// A new run that never had pending commands
		{view("r2", observer.Summary{Total: 1, Passed: 1}), 2},
	}
	for i, step := range steps {
		w.Observe(step.view)
		if len(rec.sent) != step.want {
			t.Fatalf("step %d: sent = %d, want %d", i, len(rec.sent), step.want)
		}
	}

	n := rec.sent[0]
	if n.Title != "Run failed: login.cy.ts" || n.Type != NotifyError || n.RunID != "r1" {
		t.Errorf("notification = %+v", n)
	}
	if n.Message != "1 passed, 1 failed, 0 warned" {
		t.Errorf("Message = %q", n.Message)
	}
}

func TestSettled(t *testing.T) {
	tests := []struct {
		name  string
		s     observer.Summary
		title string
		typ   NotificationType
	}{
		{"passed", observer.Summary{Total: 1, Passed: 1}, "Run passed: login.cy.ts", NotifySuccess},
		{"warned", observer.Summary{Total: 2, Passed: 1, Warned: 1}, "Run passed with warnings: login.cy.ts", NotifyWarning},
		{"failed wins", observer.Summary{Total: 2, Failed: 1, Warned: 1}, "Run failed: login.cy.ts", NotifyError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Settled(view("r", tt.s))
			if n.Title != tt.title || n.Type != tt.typ {
				t.Errorf("Settled() = %q/%v, want %q/%v", n.Title, n.Type, tt.title, tt.typ)
			}
		})
	}
}

func TestIconForType(t *testing.T) {
	if got := IconForType(NotifyError); got != "dialog-error" {
		t.Errorf("IconForType(NotifyError) = %s", got)
	}
	if got := IconForType(NotifyInfo); got != "dialog-information" {
		t.Errorf("IconForType(NotifyInfo) = %s", got)
	}
}

func TestSlackMessage_NoRun(t *testing.T) {
	msg := slackMessage(Notification{Title: "Run passed", Message: "1 passed"}, time.Unix(100, 0))
	if a := msg.Attachments[0]; a.Title != "" || a.Ts != 100 || a.Color != "#439FE0" {
		t.Errorf("attachment = %+v", a)
	}
}
