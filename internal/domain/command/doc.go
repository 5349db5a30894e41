/*
Package command is the contract between UI processes and the lifecycle.

Every request is self-contained: a command name, an optional JSON payload
and the origin of the page that sent it. Commands:

	install          privileged  bool     install, then start on success
	install-status               bool     fresh installation gate read
	remove           privileged  null     remove; the server keeps running
	server-status                string   stopped|starting|started|failed
	server-start     privileged  null     start
	server-stop      privileged  null     stop
	server-url                   string   current URL, null unless started
	info                         object   platform, version, app
	notification                 null     desktop notification {title, body}
	window-focused               object   {isFocused}

The colon forms (server:start, install:status, ...) are accepted as aliases.
Privileged commands are refused with ErrAccessDenied unless the surface's
OriginPolicy accepts the caller's origin. The opaque "null" origin is only
accepted when the policy opts in.
*/
package command
