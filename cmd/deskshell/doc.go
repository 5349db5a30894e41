// Package main is the entry point of the desktop shell daemon.
//
// The daemon supervises a locally installed web backend (Open WebUI by
// default), keeps a tray menu in step with its lifecycle, and exposes a
// local command surface to UI pages.
//
// Architecture:
//
//	UI page ──HTTP/WS──▶ command surface ──▶ lifecycle controller ──▶ launcher ──▶ backend
//	                                              │
//	                                              └──▶ broadcast hubs ──▶ tray, /ws/events, /ws/logs
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for local use
//
// Usage:
//
//	# Supervise the locally installed backend
//	./deskshell -port 7860
//
//	# Attach to a backend running elsewhere
//	./deskshell -external https://webui.example.com
//
//	# Development mode (colored logs, debug level)
//	./deskshell -dev
//
// Signals:
//   - SIGINT, SIGTERM: stop the backend, then exit
package main
