package notify

import (
	"os/exec"
	"runtime"
	"strings"
)

// DesktopNotifier shows notifications with the platform's notification
// tool: osascript on macOS, notify-send on Linux. Other platforms are a no-op.
type DesktopNotifier struct {
	enabled bool
	goos    string
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled, goos: runtime.GOOS}
}

// Send shows n on the desktop
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}
	name, args := desktopCommand(d.goos, n)
	if name == "" {
		return nil
	}
	return exec.Command(name, args...).Run()
}

func desktopCommand(goos string, n Notification) (string, []string) {
	switch goos {
	case "darwin":
		script := "display notification " + appleScriptString(n.Message) +
			" with title " + appleScriptString(n.Title)
		return "osascript", []string{"-e", script}
	case "linux":
		return "notify-send", []string{"-a", "live-reporter", "-i", IconForType(n.Type), n.Title, n.Message}
	}
	return "", nil
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// IconForType returns a freedesktop icon name for the notification type
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	}
	return "dialog-information"
}
