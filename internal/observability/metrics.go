package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "voyago", Name: "rides_created_total", Help: "Total ride requests created"})
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "voyago", Name: "ride_transitions_total", Help: "Ride state transitions by target status"},
		[]string{"to"},
	)
	LegsScheduled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "voyago", Name: "itinerary_legs_scheduled_total", Help: "Itinerary legs generated"})
	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{Namespace: "voyago", Name: "notification_failures_total", Help: "Best-effort notification deliveries that failed"})
	LocationUpdates = promauto.NewCounter(prometheus.CounterOpts{Namespace: "voyago", Name: "driver_location_updates_total", Help: "Total driver location reports accepted"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "voyago", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "voyago",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
