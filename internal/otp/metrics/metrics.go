package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks challenge issuance and verification outcomes.
type Metrics struct {
	Issued        *prometheus.CounterVec
	Verifications *prometheus.CounterVec
	MailFailures  prometheus.Counter
	Throttled     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Issued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "securecard_otp_issued_total",
			Help: "OTP challenges issued by purpose",
		}, []string{"purpose"}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "securecard_otp_verifications_total",
			Help: "OTP verification attempts by outcome",
		}, []string{"outcome"}),
		MailFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_otp_mail_failures_total",
			Help: "OTP codes that could not be mailed",
		}),
		Throttled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_otp_throttled_total",
			Help: "OTP issue requests refused by the per-target throttle",
		}),
	}
}

func (m *Metrics) IncrementIssued(purpose string) {
	if m == nil {
		return
	}
	m.Issued.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementVerification(outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementMailFailure() {
	if m == nil {
		return
	}
	m.MailFailures.Inc()
}

func (m *Metrics) IncrementThrottled() {
	if m == nil {
		return
	}
	m.Throttled.Inc()
}
