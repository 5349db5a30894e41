package shell

import (
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// ErrUnsupportedOS means the desktop integration has no command for this OS.
var ErrUnsupportedOS = errors.New("unsupported OS")

type runFunc func(name string, args ...string) error

func runDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// openCommand returns the command that opens target with the default handler.
func openCommand(goos, target string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{target}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", target}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
	}
}

// OpenURL opens target in the default browser.
func OpenURL(target string) error {
	return openWith(runtime.GOOS, runDetached, target)
}

func openWith(goos string, run runFunc, target string) error {
	if strings.TrimSpace(target) == "" {
		return errors.New("no URL to open")
	}
	name, args, err := openCommand(goos, target)
	if err != nil {
		return err
	}
	return run(name, args...)
}

// notifyCommand returns the command that raises a desktop notification.
func notifyCommand(goos, title, body string) (string, []string, error) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(body), appleScriptString(title))
		return "osascript", []string{"-e", script}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "notify-send", []string{title, body}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
	}
}

func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// DesktopNotifier raises native notifications and falls back to the log
// where that is not possible.
type DesktopNotifier struct {
	goos string
	run  runFunc
	log  *zap.Logger
}

// NewDesktopNotifier creates a notifier for the running OS.
func NewDesktopNotifier(logger *zap.Logger) *DesktopNotifier {
	return &DesktopNotifier{goos: runtime.GOOS, run: runDetached, log: logging.OrNop(logger)}
}

// Notify shows a notification with title and body.
func (n *DesktopNotifier) Notify(title, body string) {
	name, args, err := notifyCommand(n.goos, title, body)
	if err == nil {
		err = n.run(name, args...)
	}
	if err != nil {
		n.log.Info("Notification", zap.String("title", title), zap.String("body", body), zap.NamedError("delivery", err))
	}
}
