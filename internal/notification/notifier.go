package notification

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Notifier raises a desktop notification on the operator's workstation when a
// long-running operation finishes. Failures are ignored by callers since the
// same outcome is always printed to the terminal.
type Notifier interface {
	Send(title, message string) error
}

type DefaultNotifier struct{}

func New() *DefaultNotifier {
	return &DefaultNotifier{}
}

func (n *DefaultNotifier) Send(title, message string) error {
	switch runtime.GOOS {
	case "darwin":
		return sendOSXNotification(title, message)
	case "linux":
		return sendLinuxNotification(title, message)
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

func sendOSXNotification(title, message string) error {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, message, title)
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

func sendLinuxNotification(title, message string) error {
	cmd := exec.Command("notify-send", title, message)
	return cmd.Run()
}
