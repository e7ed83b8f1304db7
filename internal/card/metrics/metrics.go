package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the card registry.
type Metrics struct {
	CardsCreated     prometheus.Counter
	CardsDeactivated prometheus.Counter
	BalanceChanges   *prometheus.CounterVec
	ChargeRejections *prometheus.CounterVec
	ChargeDuration   prometheus.Histogram
}

// New creates the card metrics and registers them with the default registry.
func New() *Metrics {
	return &Metrics{
		CardsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_cards_created_total",
			Help: "Total number of cards issued from accepted applications",
		}),
		CardsDeactivated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_cards_deactivated_total",
			Help: "Total number of cards deactivated",
		}),
		BalanceChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "securecard_card_balance_changes_total",
			Help: "Balance changes by transaction kind",
		}, []string{"kind"}),
		ChargeRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "securecard_card_charge_rejections_total",
			Help: "Charges refused by the balance invariant, by reason",
		}, []string{"reason"}),
		ChargeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "securecard_card_charge_duration_seconds",
			Help:    "Duration of Charge operations including the card lock",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.CardsCreated.Inc()
}

func (m *Metrics) IncrementDeactivated() {
	if m == nil {
		return
	}
	m.CardsDeactivated.Inc()
}

func (m *Metrics) IncrementBalanceChange(kind string) {
	if m == nil {
		return
	}
	m.BalanceChanges.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementChargeRejected(reason string) {
	if m == nil {
		return
	}
	m.ChargeRejections.WithLabelValues(reason).Inc()
}

// ObserveCharge records the duration of a Charge call started at start.
func (m *Metrics) ObserveCharge(start time.Time) {
	if m == nil {
		return
	}
	m.ChargeDuration.Observe(time.Since(start).Seconds())
}
