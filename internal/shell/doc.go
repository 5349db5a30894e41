// Package shell is the presentation layer around the lifecycle controller:
// the window, the tray menu, and the surface that displays the server.
//
// Shell.Run subscribes to the controller and, for every transition,
// rebuilds the tray menu and loads a newly started URL. A load failure is
// handed back to the controller, which may switch to the local fallback.
// BuildMenu is a pure function of the snapshot so it can be tested without
// a desktop.
package shell
