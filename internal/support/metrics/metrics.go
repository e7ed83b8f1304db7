package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Submitted     prometheus.Counter
	Resolved      prometheus.Counter
	ReplyFailures prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Submitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_support_queries_submitted_total",
			Help: "Total number of support queries submitted",
		}),
		Resolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_support_queries_resolved_total",
			Help: "Total number of support queries resolved",
		}),
		ReplyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_support_reply_failures_total",
			Help: "Replies that could not be mailed to the asker",
		}),
	}
}

func (m *Metrics) IncrementSubmitted() {
	if m == nil {
		return
	}
	m.Submitted.Inc()
}

func (m *Metrics) IncrementResolved() {
	if m == nil {
		return
	}
	m.Resolved.Inc()
}

func (m *Metrics) IncrementReplyFailure() {
	if m == nil {
		return
	}
	m.ReplyFailures.Inc()
}
