package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "community", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "community", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "community", Name: "http_requests_total", Help: "HTTP requests by method, route and status."},
		[]string{"method", "route", "status"},
	)
	// outcome is one of sent, simulated, skipped
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "community", Name: "notifications_total", Help: "Notification sends by kind and outcome."},
		[]string{"kind", "outcome"},
	)
	ImageOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "community", Name: "image_operations_total", Help: "Image storage operations by op and outcome."},
		[]string{"op", "outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(HTTPRequests)
	reg.MustRegister(Notifications)
	reg.MustRegister(ImageOperations)
}
