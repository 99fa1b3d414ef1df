// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated registry served on /metrics.
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lockerlink_http_requests_total", Help: "HTTP requests by route and status."},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "lockerlink_http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)

	// CallbackOutcomes counts assignment-update callbacks by result code and reported status.
	CallbackOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lockerlink_callbacks_total", Help: "Assignment-update callbacks by result and status."},
		[]string{"result", "status"},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lockerlink_webhook_deliveries_total", Help: "Outbound webhook deliveries by topic and outcome."},
		[]string{"topic", "outcome"},
	)
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "lockerlink_webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"topic"},
	)
	WebhooksFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lockerlink_webhooks_filtered_total", Help: "Order events suppressed by a delivery filter."},
		[]string{"topic"},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lockerlink_notifications_total", Help: "Pickup notifications by outcome."},
		[]string{"outcome"},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on Registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests,
			HTTPDuration,
			CallbackOutcomes,
			WebhookDeliveries,
			WebhookLatency,
			WebhooksFiltered,
			NotificationsSent,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
