package launcher

import (
	"context"

	"github.com/GriffinCanCode/DeskShell/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/resilience"
)

// Guarded wraps a launcher in a circuit breaker so a backend that keeps
// failing to start is not relaunched in a tight loop. While the breaker is
// open, Start fails with resilience.ErrCircuitOpen without touching the
// inner launcher.
type Guarded struct {
	inner   lifecycle.Launcher
	breaker *resilience.Breaker
}

// NewGuarded wraps inner with breaker.
func NewGuarded(inner lifecycle.Launcher, breaker *resilience.Breaker) *Guarded {
	return &Guarded{inner: inner, breaker: breaker}
}

// Start runs the inner Start through the breaker.
func (g *Guarded) Start(ctx context.Context) (string, error) {
	return resilience.Call(g.breaker, func() (string, error) {
		return g.inner.Start(ctx)
	})
}

// Stop stops the inner launcher.
func (g *Guarded) Stop(ctx context.Context) {
	g.inner.Stop(ctx)
}

// Exited forwards the inner launcher's exit notifications.
func (g *Guarded) Exited() <-chan error {
	if n, ok := g.inner.(lifecycle.ExitNotifier); ok {
		return n.Exited()
	}
	return nil
}

// Breaker returns the guarding breaker.
func (g *Guarded) Breaker() *resilience.Breaker {
	return g.breaker
}
