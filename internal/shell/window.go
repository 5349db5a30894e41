package shell

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// Stopper stops the backend.
type Stopper interface {
	Stop(ctx context.Context) lifecycle.Snapshot
}

// Window tracks the main window. Closing it hides it; only Quit ends the
// application.
type Window struct {
	stopper Stopper
	log     *zap.Logger

	mu       sync.Mutex
	visible  bool
	focused  bool
	quitting bool

	quitOnce sync.Once
	done     chan struct{}
}

// NewWindow creates a visible window.
func NewWindow(stopper Stopper, logger *zap.Logger) *Window {
	return &Window{
		stopper: stopper,
		log:     logging.OrNop(logger),
		visible: true,
		done:    make(chan struct{}),
	}
}

// Show brings the window up and focuses it.
func (w *Window) Show() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = true
	w.focused = true
}

// Hide hides the window.
func (w *Window) Hide() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = false
	w.focused = false
}

// Close handles a close request. It hides the window and reports false
// unless the application is quitting.
func (w *Window) Close() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = false
	w.focused = false
	return w.quitting
}

// SetFocused records a focus change reported by the window system.
func (w *Window) SetFocused(focused bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.focused = focused && w.visible
}

// Focused reports whether the window has focus.
func (w *Window) Focused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focused
}

// Visible reports whether the window is shown.
func (w *Window) Visible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

// Quitting reports whether Quit has been called.
func (w *Window) Quitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.quitting
}

// Quit stops the backend and then signals Done. Later calls wait for the
// first one to finish.
func (w *Window) Quit(ctx context.Context) {
	w.mu.Lock()
	w.quitting = true
	w.mu.Unlock()

	w.quitOnce.Do(func() {
		w.log.Info("Quitting, stopping server")
		if w.stopper != nil {
			w.stopper.Stop(ctx)
		}
		w.Close()
		close(w.done)
	})
	<-w.done
}

// Done is closed once Quit has stopped the backend.
func (w *Window) Done() <-chan struct{} {
	return w.done
}
