package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "robofleet"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	hubPublished  *prometheus.CounterVec
	hubDropped    prometheus.Counter
	connections   *prometheus.GaugeVec
	tasksExecuted *prometheus.CounterVec
	outboxSent    *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers a fresh set of collectors with reg and panics on
// duplicate registration.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hubPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "published_total",
			Help:      "Events published to hub groups.",
		}, []string{"event"}),
		hubDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "dropped_total",
			Help:      "Frames dropped because a subscriber queue was full.",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Open realtime connections by endpoint kind.",
		}, []string{"kind"}),
		tasksExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "executed_total",
			Help:      "Deferred task executions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		outboxSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "messages_total",
			Help:      "Outbox drain attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.hubPublished, m.hubDropped, m.connections, m.tasksExecuted, m.outboxSent)
	return m
}

func (m *Metrics) Published(event string) {
	if m == nil {
		return
	}
	m.hubPublished.WithLabelValues(event).Inc()
}

func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.hubDropped.Inc()
}

func (m *Metrics) ConnOpened(kind string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(kind).Inc()
}

func (m *Metrics) ConnClosed(kind string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(kind).Dec()
}

func (m *Metrics) TaskExecuted(kind, outcome string) {
	if m == nil {
		return
	}
	m.tasksExecuted.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) OutboxResult(result string) {
	if m == nil {
		return
	}
	m.outboxSent.WithLabelValues(result).Inc()
}
