package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registrations and logins.
type Metrics struct {
	RegistrationsStarted   prometheus.Counter
	RegistrationsCompleted prometheus.Counter
	Logins                 *prometheus.CounterVec
	UsersDeleted           prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		RegistrationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_registrations_started_total",
			Help: "Registrations that were sent a confirmation code",
		}),
		RegistrationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_registrations_completed_total",
			Help: "Users created by a verified registration",
		}),
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "securecard_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		UsersDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "securecard_users_deleted_total",
			Help: "Users deleted by admins",
		}),
	}
}

func (m *Metrics) IncrementRegistrationStarted() {
	if m == nil {
		return
	}
	m.RegistrationsStarted.Inc()
}

func (m *Metrics) IncrementRegistrationCompleted() {
	if m == nil {
		return
	}
	m.RegistrationsCompleted.Inc()
}

func (m *Metrics) IncrementLogin(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementDeleted() {
	if m == nil {
		return
	}
	m.UsersDeleted.Inc()
}
