package shell

import (
	"fmt"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
)

// Action identifies what a menu entry does when clicked.
type Action string

const (
	ActionNone    Action = ""
	ActionShow    Action = "show"
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionOpenURL Action = "open-url"
	ActionCopyURL Action = "copy-url"
	ActionRemove  Action = "remove"
	ActionQuit    Action = "quit"
)

// MenuItem is one entry of the tray menu. A separator carries no action.
type MenuItem struct {
	Label       string `json:"label,omitempty"`
	Action      Action `json:"action,omitempty"`
	Enabled     bool   `json:"enabled"`
	Separator   bool   `json:"separator,omitempty"`
	Accelerator string `json:"accelerator,omitempty"`
}

// MenuOptions configures BuildMenu.
type MenuOptions struct {
	AppName  string
	External bool
}

var separator = MenuItem{Separator: true}

// BuildMenu renders the tray menu for a snapshot. It has no side effects.
func BuildMenu(snap lifecycle.Snapshot, opts MenuOptions) []MenuItem {
	started := snap.Status == lifecycle.StatusStarted && snap.URL != ""

	items := []MenuItem{
		{Label: "Show " + opts.AppName, Action: ActionShow, Enabled: true, Accelerator: "CommandOrControl+Alt+O"},
		separator,
		{Label: StatusLabel(snap, opts), Action: ActionOpenURL, Enabled: started},
	}

	switch snap.Status {
	case lifecycle.StatusStarted:
		items = append(items, MenuItem{Label: "Stop Server", Action: ActionStop, Enabled: true})
	case lifecycle.StatusStarting:
		items = append(items, MenuItem{Label: "Starting Server...", Enabled: false})
	default:
		items = append(items, MenuItem{Label: "Start Server", Action: ActionStart, Enabled: true})
	}

	return append(items,
		separator,
		MenuItem{Label: "Copy Server URL", Action: ActionCopyURL, Enabled: started},
		separator,
		MenuItem{Label: "Quit " + opts.AppName, Action: ActionQuit, Enabled: true, Accelerator: "CommandOrControl+Q"},
	)
}

// StatusLabel describes the snapshot for the tray.
func StatusLabel(snap lifecycle.Snapshot, opts MenuOptions) string {
	var status string
	switch snap.Status {
	case lifecycle.StatusStarting:
		status = "Starting..."
	case lifecycle.StatusStarted:
		switch {
		case snap.Fallback:
			status = "Fallback on " + snap.URL
		case opts.External:
			status = "Connected to " + snap.URL
		case snap.Port() != "":
			status = "Running on port " + snap.Port()
		default:
			status = "Running on " + snap.URL
		}
	case lifecycle.StatusFailed:
		if snap.LoadFailed {
			status = "Failed to load server"
		} else {
			status = "Failed to Start"
		}
	default:
		status = "Stopped"
	}
	return fmt.Sprintf("%s: %s", opts.AppName, status)
}

// Tooltip is the tray tooltip for a snapshot.
func Tooltip(snap lifecycle.Snapshot, opts MenuOptions) string {
	if snap.Status == lifecycle.StatusStarted {
		return fmt.Sprintf("%s is running on %s", opts.AppName, snap.URL)
	}
	return fmt.Sprintf("%s is %s", opts.AppName, snap.Status)
}
