package launcher

import (
	"context"
	"errors"
)

// External stands in for a launcher when the backend runs elsewhere. Start
// hands back the configured endpoint and Stop does nothing.
type External struct {
	URL string
}

// NewExternal creates an External launcher for url.
func NewExternal(url string) *External {
	return &External{URL: url}
}

// Start returns the external endpoint.
func (e *External) Start(context.Context) (string, error) {
	if e.URL == "" {
		return "", errors.New("no external server URL configured")
	}
	return e.URL, nil
}

// Stop is a no-op.
func (e *External) Stop(context.Context) {}
