package security

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsBuffered prometheus.Counter
	EventsDropped  prometheus.Counter
	FlushFailures  prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		EventsBuffered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_audit_security_events_buffered_total",
			Help: "Security audit events accepted into the ring buffer",
		}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_audit_security_events_dropped_total",
			Help: "Security audit events overwritten before they were flushed",
		}),
		FlushFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_audit_security_flush_failures_total",
			Help: "Security audit events the downstream publisher refused",
		}),
	}
}

func (m *Metrics) incBuffered() {
	if m == nil {
		return
	}
	m.EventsBuffered.Inc()
}

func (m *Metrics) incDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

func (m *Metrics) incFlushFailure() {
	if m == nil {
		return
	}
	m.FlushFailures.Inc()
}
