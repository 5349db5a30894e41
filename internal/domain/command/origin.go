package command

import (
	"net"
	"net/url"
	"strings"
)

// OriginPolicy decides which request origins count as pages on this
// machine.
type OriginPolicy struct {
	// AllowOpaque trusts the opaque "null" origin. File pages send it, but
	// so do sandboxed frames and data: URLs opened by any remote site.
	AllowOpaque bool
}

// TrustedOrigin reports whether origin is trusted under the default
// policy.
func TrustedOrigin(origin string) bool {
	return OriginPolicy{}.Trusted(origin)
}

// Trusted reports whether origin belongs to a page on this machine: a
// file page without a remote host, or an http(s) page served from
// localhost, a loopback address, or the wildcard address. Hosts are
// compared exactly, so "localhost.evil.com" is not trusted. An empty
// origin is never trusted.
func (p OriginPolicy) Trusted(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	if origin == "null" {
		return p.AllowOpaque
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	switch strings.ToLower(u.Scheme) {
	case "file":
		return host == "" || host == "localhost"
	case "http", "https":
	default:
		return false
	}

	switch host {
	case "localhost", "0.0.0.0", "::":
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}
