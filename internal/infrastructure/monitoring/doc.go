/*
Package monitoring provides Prometheus metrics for the shell daemon.

# Overview

Every Metrics value owns its own registry, so tests and embedded daemons do
not collide on the global default registry.

# Metrics

  - deskshell_http_*: request count, latency and sizes per route
  - deskshell_server_transitions_total{to}: server state transitions
  - deskshell_server_up: 1 while the server is started
  - deskshell_launch_duration_seconds{result}: backend launch time
  - deskshell_commands_total{command,outcome}: command surface requests
  - deskshell_subscribers{channel}: live broadcast subscribers
  - deskshell_uptime_seconds

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	ctrl := lifecycle.NewController(lifecycle.Options{Metrics: metrics, ...})
*/
package monitoring
