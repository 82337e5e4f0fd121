// Package metrics exposes operational counters. It is the observability
// consumer of the notification event stream: terminal delivery failures
// surface here and nowhere else.
package metrics

import (
	"net/http"

	"github.com/envsyncd/envsyncd/internal/notify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	notificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envsyncd_notifications_delivered_total",
		Help: "Notification jobs delivered, by payload name.",
	}, []string{"name"})

	notificationsExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "envsyncd_notifications_exhausted_total",
		Help: "Notification jobs dropped after exhausting all attempts, by payload name.",
	}, []string{"name"})
)

// ObserveNotifications drains the dispatcher event stream into counters. It
// returns once the stream closes.
func ObserveNotifications(events <-chan notify.Event) {
	for e := range events {
		switch e.Kind {
		case notify.EventCompleted:
			notificationsDelivered.WithLabelValues(string(e.Name)).Inc()
		case notify.EventFailed:
			notificationsExhausted.WithLabelValues(string(e.Name)).Inc()
		}
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
