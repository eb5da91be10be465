// Package metrics exposes Prometheus collectors for the scheduler and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Notification kinds.
const (
	KindPrayer   = "prayer"
	KindReminder = "reminder"
)

var (
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mubarakway_notifications_sent_total",
			Help: "Prayer notifications delivered to Telegram",
		},
		[]string{"kind", "prayer"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mubarakway_notifications_failed_total",
			Help: "Prayer notifications Telegram did not accept",
		},
		[]string{"kind"},
	)

	UsersChecked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mubarakway_scheduler_users_checked_total",
			Help: "Users evaluated by the notification scheduler",
		},
	)

	CalculationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mubarakway_prayer_calculation_errors_total",
			Help: "Prayer time calculations that failed",
		},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mubarakway_scheduler_tick_duration_seconds",
			Help:    "Duration of one scheduler pass over all users",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
	)

	ResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mubarakway_notification_resets_total",
			Help: "Daily clears of the notified prayer set",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mubarakway_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordSent counts a delivered notification.
func RecordSent(kind, prayerKey string) {
	NotificationsSent.WithLabelValues(kind, prayerKey).Inc()
}

// RecordFailed counts a notification that could not be sent.
func RecordFailed(kind string) {
	NotificationsFailed.WithLabelValues(kind).Inc()
}

// RecordTick observes the duration of a scheduler pass.
func RecordTick(d time.Duration) {
	TickDuration.Observe(d.Seconds())
}

// RecordHTTPRequestDuration observes an HTTP request.
func RecordHTTPRequestDuration(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
