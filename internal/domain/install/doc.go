// Package install is the installation gate.
//
// A backend counts as installed when install.toml in the install directory
// parses, names a version, and points at an executable that still exists.
// The check reads the filesystem on every call since the backend can be
// removed by hand while the shell is running. Watch turns such out-of-band
// changes into notifications.
package install
