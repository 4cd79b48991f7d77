package domain

import (
	"time"

	"github.com/google/uuid"
)

// IntentStatus is the lifecycle state of one payment attempt.
type IntentStatus string

const (
	IntentCreated   IntentStatus = "created"
	IntentPending   IntentStatus = "pending"
	IntentCompleted IntentStatus = "completed"
	IntentFailed    IntentStatus = "failed"
	IntentExpired   IntentStatus = "expired"
)

// Terminal reports whether the intent can no longer change state.
func (s IntentStatus) Terminal() bool {
	return s == IntentCompleted || s == IntentFailed || s == IntentExpired
}

// PaymentIntent tracks one attempt to pay for a subscription via the
// external gateway. SourceID is gateway-issued and globally unique; at most
// one non-terminal intent may reference a subscription at a time.
type PaymentIntent struct {
	SourceID       string
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	AmountCents    int64
	Currency       string
	CheckoutURL    string
	Status         IntentStatus
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

// PendingIntent is the durable single-slot correlation record for a user's
// in-flight payment. It lets a restarted process resume polling, and is
// cleared only after a successful confirmation commit.
type PendingIntent struct {
	UserID         uuid.UUID
	SourceID       string
	SubscriptionID uuid.UUID
	CreatedAt      time.Time
	ClaimedAt      *time.Time
}

// PaymentMethod is the channel a payment arrived through.
type PaymentMethod string

const (
	MethodGateway      PaymentMethod = "gateway"
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)
