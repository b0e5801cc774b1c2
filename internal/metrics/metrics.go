// Package metrics declares the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverycart_orders_submitted_total",
			Help: "Orders accepted by the checkout, by payment method.",
		},
		[]string{"payment_method"},
	)

	SubmitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverycart_submit_rejections_total",
			Help: "Checkout submissions refused before reaching the database, by reason.",
		},
		[]string{"code"},
	)

	Prompts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverycart_payment_prompts_total",
			Help: "Payment dialogs raised for customers.",
		},
		[]string{"prompt"},
	)

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverycart_retry_attempts_total",
			Help: "Retried network calls, by operation.",
		},
		[]string{"operation"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliverycart_notifications_total",
			Help: "Messaging webhook deliveries, by workflow and outcome.",
		},
		[]string{"workflow", "outcome"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deliverycart_http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms.",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "route", "status"},
	)

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deliverycart_checkout_sessions",
		Help: "Checkout sessions currently held in memory.",
	})
)
