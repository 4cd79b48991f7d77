// Package events publishes domain events to NATS JetStream. Publishing is
// best effort: a failed publish is logged by the caller and never blocks
// or rolls back the payment commit that produced it.
package events

import (
	"time"

	"github.com/google/uuid"
)

// SubjectSubscriptionActivated is the JetStream subject for activations.
const SubjectSubscriptionActivated = "billing.subscription.activated"

// SubscriptionActivated is emitted after a payment confirmation commits.
// Downstream consumers schedule collection routes from it.
type SubscriptionActivated struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	PlanID         uuid.UUID `json:"plan_id"`
	SourceID       string    `json:"source_id"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	ActivatedAt    time.Time `json:"activated_at"`
}
