// Package middleware holds the gin middleware in front of the command
// surface: CORS, per-IP rate limiting, request IDs with access logging, and
// the trusted-origin guard used by the log stream.
package middleware
