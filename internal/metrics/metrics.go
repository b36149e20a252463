// Package metrics exposes the bot's Prometheus counters.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "secretar",
			Name:      "updates_total",
			Help:      "Count of processed Telegram updates by kind.",
		},
		[]string{"kind"},
	)

	sendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "secretar",
			Name:      "sends_total",
			Help:      "Count of outgoing Telegram sends by outcome.",
		},
		[]string{"outcome"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "secretar",
			Name:      "domain_events_total",
			Help:      "Count of published domain events by type.",
		},
		[]string{"type"},
	)

	notificationsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "secretar",
			Name:      "notifications_delivered_total",
			Help:      "Count of queued notifications delivered at role entry.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(updatesTotal, sendsTotal, eventsTotal, notificationsDelivered)
	})
}

func IncUpdate(kind string) {
	updatesTotal.WithLabelValues(kind).Inc()
}

func IncSend(outcome string) {
	sendsTotal.WithLabelValues(outcome).Inc()
}

func IncEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

func AddNotificationsDelivered(n int) {
	notificationsDelivered.Add(float64(n))
}
