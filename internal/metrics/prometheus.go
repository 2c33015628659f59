// ABOUTME: Prometheus metrics for the receiver
// ABOUTME: Implements receiver.Observer and exposes a private registry over HTTP
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/micreceiver/micreceiver-go/pkg/receiver"
)

// timeSince is replaced in tests
var timeSince = time.Since

// Metrics holds all receiver metrics
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionErrors   prometheus.Counter
	SessionDuration prometheus.Histogram
	AcceptErrors    prometheus.Counter

	// Audio metrics
	BytesReceived prometheus.Counter
	DroppedBytes  prometheus.Counter
	Underruns     prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "micreceiver_active_sessions",
			Help: "Current number of connected senders",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "micreceiver_sessions_total",
			Help: "Total number of sessions started",
		}),
		SessionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "micreceiver_session_errors_total",
			Help: "Total number of sessions that ended with an error",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "micreceiver_session_duration_seconds",
			Help:    "Duration of sessions",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
		AcceptErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "micreceiver_accept_errors_total",
			Help: "Total number of failed accepts",
		}),

		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "micreceiver_received_bytes_total",
			Help: "Total audio bytes read from senders",
		}),
		DroppedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "micreceiver_dropped_bytes_total",
			Help: "Total audio bytes discarded because a jitter buffer was full",
		}),
		Underruns: factory.NewCounter(prometheus.CounterOpts{
			Name: "micreceiver_underruns_total",
			Help: "Total device callbacks that found the jitter buffer short",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "micreceiver_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
	}
}

// Registry returns the registry holding these metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionStarted implements receiver.Observer
func (m *Metrics) SessionStarted(receiver.SessionInfo) {
	m.ActiveSessions.Inc()
	m.SessionsTotal.Inc()
}

// SessionData implements receiver.Observer
func (m *Metrics) SessionData(_ receiver.SessionInfo, n int) {
	m.BytesReceived.Add(float64(n))
}

// SessionEnded implements receiver.Observer
func (m *Metrics) SessionEnded(info receiver.SessionInfo, err error) {
	m.ActiveSessions.Dec()
	if err != nil {
		m.SessionErrors.Inc()
	}
	if !info.Started.IsZero() {
		m.SessionDuration.Observe(timeSince(info.Started).Seconds())
	}
	m.DroppedBytes.Add(float64(info.Sink.Dropped))
	m.Underruns.Add(float64(info.Sink.Underruns))
}

// AcceptFailed implements receiver.Observer
func (m *Metrics) AcceptFailed(error) {
	m.AcceptErrors.Inc()
}

// RecordHTTPRequest counts one HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int) {
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
}
