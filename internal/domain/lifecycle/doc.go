/*
Package lifecycle owns the backend server state and its transitions.

# State machine

	Stopped --> Starting --> Started | Failed
	Started --> Stopped
	Started --> Started | Failed (external load failure, see Fallback)
	Failed  --> Starting | Stopped
	Starting --> Stopped        (stop while a start is in flight)

The Controller is the only writer. Every transition is stored atomically and
published on the event hub under one lock, so an observer that calls Query
after receiving an event never sees an older state. Query itself is a plain
atomic load and never waits on a running launch.

# Start

Concurrent Start calls share one launcher attempt. A Start after a Stop
always begins a new attempt, even if the superseded one is still running.
A wildcard bind address such as http://0.0.0.0:8080 is rewritten to
http://localhost:8080.

# Fallback

In external mode the controller begins Started on the external URL. When the
surface reports that URL failed to load, the controller tries the local
fallback exactly once for that load attempt. The status stays Started on
the external URL while the fallback loads, then moves to Started on the
fallback URL or to Failed. A second failure is terminal until the next
explicit Start.
*/
package lifecycle
