/*
Package resilience provides a circuit breaker used as a crash-loop guard.

# Overview

The backend launcher is wrapped in a Breaker. A backend that keeps failing to
come up trips the breaker, and further start requests fail fast with
ErrCircuitOpen until the cooldown elapses. One trial launch is then allowed;
its outcome closes or reopens the breaker.

# Usage

	guard := resilience.New("launcher", resilience.Settings{
		Timeout:     30 * time.Second,
		ReadyToTrip: resilience.ConsecutiveFailures(5),
	})

	url, err := resilience.Call(guard, func() (string, error) {
		return launcher.Start(ctx)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience
