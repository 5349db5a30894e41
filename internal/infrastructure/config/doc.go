// Package config provides 12-factor configuration management for the shell daemon.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: command surface listener (port, host)
//   - Backend: how the supervised backend process is launched and probed
//   - Install: installation gate directory and install/remove commands
//   - External: externally-supplied endpoint mode and its local fallback
//   - Launch: crash-loop guard thresholds
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting of the command surface
//   - Shell: application name and version shown in the tray
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Command surface on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST
//   - BACKEND_COMMAND, BACKEND_ARGS, BACKEND_HOST, BACKEND_PORT, BACKEND_USE_PTY
//   - INSTALL_DIR, INSTALL_COMMAND, REMOVE_COMMAND
//   - EXTERNAL_MODE, EXTERNAL_URL, FALLBACK_URL
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
