package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// TokensIssued counts issued tokens by kind (access|refresh|email_verification).
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_tokens_issued_total",
			Help: "Total number of tokens issued",
		},
		[]string{"kind"},
	)

	// TokenRedemptions counts refresh and confirmation attempts by outcome.
	TokenRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_token_redemptions_total",
			Help: "Total number of token redemption attempts",
		},
		[]string{"kind", "result"},
	)

	// MailJobs counts mail job outcomes (sent|retry|dead).
	MailJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_mail_jobs_total",
			Help: "Total number of processed mail jobs",
		},
		[]string{"result"},
	)

	// EventsDropped counts domain events rejected by the in-process bus.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_events_dropped_total",
			Help: "Total number of events the bus could not accept",
		},
		[]string{"event"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
