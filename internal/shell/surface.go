package shell

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/httpclient"
	"github.com/GriffinCanCode/DeskShell/backend/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// Surface displays the server's web UI.
type Surface interface {
	Load(ctx context.Context, url string) error
}

// HTTPSurface is a headless Surface: loading a URL means fetching it and
// getting a 2xx back. It also serves as the controller's fallback Loader.
type HTTPSurface struct {
	client *httpclient.Client
	log    *zap.Logger

	mu      sync.Mutex
	current string
}

// NewHTTPSurface creates an HTTPSurface using client.
func NewHTTPSurface(client *httpclient.Client, logger *zap.Logger) *HTTPSurface {
	return &HTTPSurface{client: client, log: logging.OrNop(logger)}
}

// Load fetches url and records it as the current page on success.
func (s *HTTPSurface) Load(ctx context.Context, url string) error {
	if err := s.client.Probe(ctx, url); err != nil {
		s.log.Warn("Failed to load server URL", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("load %s: %w", url, err)
	}

	s.mu.Lock()
	s.current = url
	s.mu.Unlock()

	s.log.Info("Loaded server URL", zap.String("url", url))
	return nil
}

// Current returns the last successfully loaded URL.
func (s *HTTPSurface) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
