package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers payment creation and resolution outcomes.
type Metrics struct {
	Created         prometheus.Counter
	Resolutions     *prometheus.CounterVec
	Declines        *prometheus.CounterVec
	ResolveDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Created: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_payments_created_total",
			Help: "Total number of pending payments created",
		}),
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "securecard_payment_resolutions_total",
			Help: "Payment resolutions by outcome",
		}, []string{"outcome"}),
		Declines: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "securecard_payment_declines_total",
			Help: "Payments refused by the selected card, by reason",
		}, []string{"reason"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "securecard_payment_resolve_duration_seconds",
			Help:    "Duration of payment resolutions including locks",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.Created.Inc()
}

func (m *Metrics) IncrementResolution(outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementDecline(reason string) {
	if m == nil {
		return
	}
	m.Declines.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveResolve(start time.Time) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
