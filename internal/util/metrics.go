package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutSessionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_created_total",
		Help: "Total number of provider checkout sessions opened",
	}, []string{"purpose"})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Total number of rejected or failed checkout attempts",
	}, []string{"reason"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_latency_seconds",
		Help:    "Latency of payment provider API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	PaymentConfirmationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_confirmations_total",
		Help: "Confirmation requests by channel and outcome",
	}, []string{"channel", "outcome"})

	PaymentTerminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_terminal_transitions_total",
		Help: "Payment records moved to a terminal state",
	}, []string{"status"})

	WebhookRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_webhook_rejected_total",
		Help: "Webhook deliveries rejected for a bad signature",
	})

	EntitlementUnlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_unlocks_total",
		Help: "Entitlement flags flipped from false to true",
	}, []string{"target"})

	InviteMaterializationFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invite_materialization_failed_total",
		Help: "Paid invites whose content could not be materialized",
	})

	InviteMaterializationAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invite_materialization_abandoned_total",
		Help: "Paid invites whose materialization retries were exhausted",
	})

	SlugCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slug_collisions_total",
		Help: "Slug candidates already claimed by another account",
	})

	SlugAllocationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slug_allocation_latency_seconds",
		Help:    "Latency of slug allocation",
		Buckets: prometheus.DefBuckets,
	})

	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_failures_total",
		Help: "Notifications that could not be dispatched or delivered",
	}, []string{"kind"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Notifications delivered by the worker",
	}, []string{"kind"})

	KafkaDeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_messages_dead_lettered_total",
		Help: "Messages given up on after handler retries",
	}, []string{"topic"})

	RSVPSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rsvp_submissions_total",
		Help: "Guest responses stored",
	}, []string{"attending"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
