package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for launch attempts.
const (
	LaunchOK    = "ok"
	LaunchError = "error"
)

// Metrics holds all Prometheus metrics of one daemon instance.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Server lifecycle metrics
	Transitions    *prometheus.CounterVec
	ServerUp       prometheus.Gauge
	LaunchDuration *prometheus.HistogramVec

	// Command surface metrics
	Commands *prometheus.CounterVec

	// Broadcast metrics
	Subscribers *prometheus.GaugeVec

	startTime time.Time
}

// NewMetrics creates a metrics collector backed by its own registry, so
// several instances can live in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskshell_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskshell_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskshell_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_server_transitions_total",
				Help: "Total number of server state transitions by target status",
			},
			[]string{"to"},
		),
		ServerUp: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "deskshell_server_up",
				Help: "Whether the server is started (1) or not (0)",
			},
		),
		LaunchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskshell_launch_duration_seconds",
				Help:    "Backend launch duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"result"},
		),

		Commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskshell_commands_total",
				Help: "Total number of command surface requests by outcome",
			},
			[]string{"command", "outcome"},
		),

		Subscribers: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deskshell_subscribers",
				Help: "Number of live broadcast subscribers",
			},
			[]string{"channel"},
		),
	}

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "deskshell_uptime_seconds",
			Help: "Daemon uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordTransition counts a server transition and tracks whether the
// server is up.
func (m *Metrics) RecordTransition(status string) {
	m.Transitions.WithLabelValues(status).Inc()
	if status == "started" {
		m.ServerUp.Set(1)
	} else {
		m.ServerUp.Set(0)
	}
}

// RecordLaunch records how long a launch attempt took.
func (m *Metrics) RecordLaunch(d time.Duration, err error) {
	result := LaunchOK
	if err != nil {
		result = LaunchError
	}
	m.LaunchDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RecordCommand counts a command surface request.
func (m *Metrics) RecordCommand(command, outcome string) {
	m.Commands.WithLabelValues(command, outcome).Inc()
}

// SetSubscribers sets the subscriber gauge of a channel.
func (m *Metrics) SetSubscribers(channel string, n int) {
	m.Subscribers.WithLabelValues(channel).Set(float64(n))
}

// Uptime returns how long the metrics have been collected.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
