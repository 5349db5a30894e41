package shell

import (
	"sync"

	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// Tray renders the menu and tooltip. Implementations must be safe for
// concurrent use.
type Tray interface {
	SetMenu(items []MenuItem)
	SetTooltip(text string)
}

// LogTray is a headless Tray that logs what it would render and keeps the
// last menu for inspection.
type LogTray struct {
	log *zap.Logger

	mu      sync.Mutex
	menu    []MenuItem
	tooltip string
}

// NewLogTray creates a LogTray.
func NewLogTray(logger *zap.Logger) *LogTray {
	return &LogTray{log: logging.OrNop(logger)}
}

// SetMenu implements Tray.
func (t *LogTray) SetMenu(items []MenuItem) {
	t.mu.Lock()
	t.menu = append([]MenuItem(nil), items...)
	t.mu.Unlock()

	labels := make([]string, 0, len(items))
	for _, it := range items {
		if !it.Separator {
			labels = append(labels, it.Label)
		}
	}
	t.log.Debug("Tray menu updated", zap.Strings("items", labels))
}

// SetTooltip implements Tray.
func (t *LogTray) SetTooltip(text string) {
	t.mu.Lock()
	t.tooltip = text
	t.mu.Unlock()
	t.log.Info("Tray status", zap.String("tooltip", text))
}

// Menu returns a copy of the last rendered menu.
func (t *LogTray) Menu() []MenuItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]MenuItem(nil), t.menu...)
}

// Tooltip returns the last tooltip.
func (t *LogTray) Tooltip() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tooltip
}
