// Package telemetry holds Prometheus business metrics. HTTP-level metrics
// live in the middleware package.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability.
type BusinessMetrics struct {
	// Subscription funnel
	SubscriptionsRequested *prometheus.CounterVec
	SubscriptionsActivated prometheus.Counter
	SubscriptionsCancelled prometheus.Counter

	// Payment flow
	CheckoutsCreated      prometheus.Counter
	PaymentsConfirmed     *prometheus.CounterVec
	ConfirmationMismatch  prometheus.Counter
	DuplicateConfirmation prometheus.Counter
	PollerTimeouts        prometheus.Counter
	PollerAttempts        prometheus.Histogram

	// Webhooks
	WebhookReceived *prometheus.CounterVec
	WebhookRejected prometheus.Counter

	// Ledger
	LedgerEntries   *prometheus.CounterVec
	RevenueCents    *prometheus.CounterVec
	LedgerConflicts prometheus.Counter
}

// NewBusinessMetrics creates and registers all business metrics.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "hakot"
	}

	subsystem := "business"

	return &BusinessMetrics{
		SubscriptionsRequested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscriptions_requested_total",
				Help:      "Total subscription requests, including rejected ones",
			},
			[]string{"outcome"}, // outcome: created, already_subscribed, plan_unavailable
		),
		SubscriptionsActivated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscriptions_activated_total",
				Help:      "Total subscriptions activated by a confirmed payment",
			},
		),
		SubscriptionsCancelled: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscriptions_cancelled_total",
				Help:      "Total subscriptions cancelled",
			},
		),
		CheckoutsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkouts_created_total",
				Help:      "Total gateway checkout sources created",
			},
		),
		PaymentsConfirmed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payments_confirmed_total",
				Help:      "Total payment confirmations that committed",
			},
			[]string{"trigger"}, // trigger: redirect, poller, webhook
		),
		ConfirmationMismatch: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "confirmation_mismatch_total",
				Help:      "Total confirmations rejected because the gateway did not report paid",
			},
		),
		DuplicateConfirmation: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duplicate_confirmation_total",
				Help:      "Total confirmations replayed against an already completed payment",
			},
		),
		PollerTimeouts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "poller_timeouts_total",
				Help:      "Total polls that exhausted their attempt budget",
			},
		),
		PollerAttempts: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "poller_attempts",
				Help:      "Poll attempts used before a terminal gateway status",
				Buckets:   []float64{1, 2, 3, 5, 10, 20, 30},
			},
		),
		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Total gateway notifications received",
			},
			[]string{"transaction_status"},
		),
		WebhookRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_rejected_total",
				Help:      "Total gateway notifications rejected for a bad signature",
			},
		),
		LedgerEntries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ledger_entries_total",
				Help:      "Total ledger entries appended",
			},
			[]string{"kind"}, // kind: debit, credit
		),
		RevenueCents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "revenue_cents_total",
				Help:      "Total payment credits recorded, in cents",
			},
			[]string{"method"}, // method: gateway, cash, bank_transfer
		),
		LedgerConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "ledger_conflicts_total",
				Help:      "Total appends rejected because the reference was already recorded",
			},
		),
	}
}
