// Package main is deskshellctl, a command line client for the desktop
// shell daemon's command surface.
//
// Usage:
//
//	deskshellctl status
//	deskshellctl start
//	deskshellctl call notification '{"title":"Hi","body":"from the CLI"}'
//	deskshellctl logs
//
// The daemon address defaults to http://127.0.0.1:7860 and can be set with
// --addr or DESKSHELL_ADDR.
package main
