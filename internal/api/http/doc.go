// Package http exposes the command surface over HTTP.
//
//	POST /api/command   {"command": "...", "payload": ...} -> {"result": ...}
//	GET  /api/commands  canonical command names
//	GET  /health        daemon health and the server snapshot
//
// Access denied maps to 403, unknown commands and bad payloads to 400.
package http
