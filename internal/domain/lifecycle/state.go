package lifecycle

import (
	"net"
	"net/url"
	"time"
)

// Status is the backend lifecycle status.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusStarted  Status = "started"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusStopped, StatusStarting, StatusStarted, StatusFailed:
		return true
	}
	return false
}

// Snapshot is an immutable view of the server state.
// URL is non-empty exactly when Status is StatusStarted.
type Snapshot struct {
	Status    Status    `json:"status"`
	URL       string    `json:"url,omitempty"`
	LastError string    `json:"error,omitempty"`
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Fallback marks a Started state reached through the local fallback.
	Fallback bool `json:"fallback,omitempty"`
	// LoadFailed marks a Failed state caused by the surface failing to
	// load the endpoint rather than by the launcher.
	LoadFailed bool `json:"loadFailed,omitempty"`
}

// Port returns the port of the URL, or "" when there is none.
func (s Snapshot) Port() string {
	if s.URL == "" {
		return ""
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return u.Port()
}

// Event types carried on the broadcast channel.
const (
	EventServerStatus  = "server:status"
	EventInstallStatus = "install:status"
)

// Event is one message on the broadcast channel.
type Event struct {
	Type  string    `json:"type"`
	Data  any       `json:"data"`
	State *Snapshot `json:"state,omitempty"`
}

// NormalizeURL rewrites a wildcard bind host to localhost so a client can
// dereference it. Anything unparsable is returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	host := u.Hostname()
	switch host {
	case "0.0.0.0", "::", "0:0:0:0:0:0:0:0":
	default:
		return raw
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort("localhost", port)
	} else {
		u.Host = "localhost"
	}
	return u.String()
}
