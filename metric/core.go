package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "busmux"

// Drop reasons for MessagesDropped
const (
	DropNotConnected = "not_connected"
	DropRateLimited  = "rate_limited"
	DropEncoding     = "encoding"
	DropInvalidTopic = "invalid_topic"
	DropTransport    = "transport"
	DropClosed       = "closed"
)

// Metrics contains the connection manager metrics
type Metrics struct {
	ConnectionState    prometheus.Gauge
	Connected          prometheus.Gauge
	Reconnects         prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	MessagesReceived   prometheus.Counter
	MessagesDispatched prometheus.Counter
	MessagesPublished  prometheus.Counter
	MessagesDropped    *prometheus.CounterVec
	CallbackFailures   prometheus.Counter
	Subscriptions      prometheus.Gauge
	DispatchDuration   prometheus.Histogram
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "state",
				Help:      "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting, 4=errored)",
			},
		),

		Connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "connected",
				Help:      "Broker connection status (0=disconnected, 1=connected)",
			},
		),

		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "reconnects_total",
				Help:      "Total number of reconnection attempts reported by the transport",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"type"},
		),

		MessagesReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of messages received from the broker",
			},
		),

		MessagesDispatched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "dispatched_total",
				Help:      "Total number of subscriber callback invocations",
			},
		),

		MessagesPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "published_total",
				Help:      "Total number of messages handed to the transport",
			},
		),

		MessagesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "dropped_total",
				Help:      "Total number of publishes dropped before reaching the transport",
			},
			[]string{"reason"},
		),

		CallbackFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "callbacks",
				Name:      "failures_total",
				Help:      "Total number of subscriber callbacks that panicked",
			},
		),

		Subscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "subscriptions",
				Name:      "active",
				Help:      "Number of registered subscription patterns",
			},
		),

		DispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Time spent dispatching one inbound message to all matching subscribers",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// Collectors returns every metric for registration
func (c *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ConnectionState,
		c.Connected,
		c.Reconnects,
		c.ErrorsTotal,
		c.MessagesReceived,
		c.MessagesDispatched,
		c.MessagesPublished,
		c.MessagesDropped,
		c.CallbackFailures,
		c.Subscriptions,
		c.DispatchDuration,
	}
}

// RecordConnectionState updates the connection state gauges
func (c *Metrics) RecordConnectionState(state int, connected bool) {
	c.ConnectionState.Set(float64(state))
	value := 0.0
	if connected {
		value = 1.0
	}
	c.Connected.Set(value)
}

// RecordReconnect increments the reconnection counter
func (c *Metrics) RecordReconnect() {
	c.Reconnects.Inc()
}

// RecordError increments the error counter
func (c *Metrics) RecordError(errorType string) {
	c.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// RecordMessageReceived increments the received message counter
func (c *Metrics) RecordMessageReceived() {
	c.MessagesReceived.Inc()
}

// RecordDispatch records a dispatched message and its duration
func (c *Metrics) RecordDispatch(callbacks int, duration time.Duration) {
	c.MessagesDispatched.Add(float64(callbacks))
	c.DispatchDuration.Observe(duration.Seconds())
}

// RecordMessagePublished increments the published message counter
func (c *Metrics) RecordMessagePublished() {
	c.MessagesPublished.Inc()
}

// RecordMessageDropped increments the dropped message counter
func (c *Metrics) RecordMessageDropped(reason string) {
	c.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordCallbackFailure increments the callback failure counter
func (c *Metrics) RecordCallbackFailure() {
	c.CallbackFailures.Inc()
}

// RecordSubscriptions sets the number of active subscription patterns
func (c *Metrics) RecordSubscriptions(n int) {
	c.Subscriptions.Set(float64(n))
}
