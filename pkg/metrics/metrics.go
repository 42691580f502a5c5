package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result
	// (success|failure|blocked_unverified).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiksha_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// WebhookDeliveries counts payment webhook deliveries by outcome
	// (settled|duplicate|ignored|rejected|error).
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shiksha_webhook_deliveries_total",
			Help: "Total number of payment webhook deliveries",
		},
		[]string{"outcome"},
	)

	// Settlements counts completed payment settlements.
	Settlements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shiksha_settlements_total",
			Help: "Total number of completed payment settlements",
		},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shiksha_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shiksha_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
