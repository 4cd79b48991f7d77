package gateway

import (
	"context"
	"time"
)

// Provider defines the interface for the external payment gateway.
// Implementations can use Midtrans, PayMongo, Stripe, etc.
//
// The reported status is informational only until the confirmation handler
// re-fetches it: a caller-asserted "success" is never sufficient to
// activate a subscription.
type Provider interface {
	// CreateSource creates a payment source for a checkout. The returned
	// source id is the correlation key for the whole payment flow and the
	// checkout URL is where the payer completes the payment.
	CreateSource(ctx context.Context, params CreateSourceParams) (*Source, error)

	// GetStatus fetches the current status of a source from the gateway.
	GetStatus(ctx context.Context, sourceID string) (SourceStatus, error)
}

// NotificationVerifier authenticates asynchronous gateway notifications.
type NotificationVerifier interface {
	// VerifyNotification checks the notification's signature against the
	// gateway credentials. Returns ErrInvalidSignature on mismatch.
	VerifyNotification(n Notification) error
}

// SourceStatus is the gateway-side state of a payment source.
type SourceStatus string

const (
	StatusPending SourceStatus = "pending"
	StatusPaid    SourceStatus = "paid"
	StatusFailed  SourceStatus = "failed"
	StatusExpired SourceStatus = "expired"
)

// Terminal reports whether the gateway will no longer change this status.
func (s SourceStatus) Terminal() bool {
	return s == StatusPaid || s == StatusFailed || s == StatusExpired
}

// CreateSourceParams contains parameters for creating a payment source.
type CreateSourceParams struct {
	// AmountCents is the amount in the smallest currency unit.
	AmountCents int64

	// Currency code (ISO 4217) - e.g., "idr", "php"
	Currency string

	// Description appears on the payer's checkout page.
	Description string

	// RedirectURL is where the gateway sends the payer after checkout.
	RedirectURL string

	// Metadata for correlation (always include subscription_id, user_id).
	Metadata map[string]string
}

// Source represents a created payment source.
type Source struct {
	// ID is the gateway correlation id for this payment attempt.
	ID string

	// CheckoutURL is the hosted payment page for the payer.
	CheckoutURL string

	// Status at creation time, normally pending.
	Status SourceStatus

	CreatedAt time.Time
}

// Notification is an asynchronous gateway callback about a source.
type Notification struct {
	SourceID          string
	StatusCode        string
	GrossAmount       string
	SignatureKey      string
	TransactionStatus string
}
