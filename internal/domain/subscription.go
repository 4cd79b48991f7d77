package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the lifecycle state of a collection subscription.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

// Blocking reports whether a subscription in this state prevents the user
// from opening another one. At most one blocking subscription per user.
func (s SubscriptionStatus) Blocking() bool {
	return s == SubscriptionPending || s == SubscriptionActive || s == SubscriptionSuspended
}

// Subscription is a resident's collection-service subscription.
// It is created pending and becomes active only through a confirmed payment.
type Subscription struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	PlanID    uuid.UUID
	Status    SubscriptionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvoiceStatus is the payment state of an invoice.
type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "unpaid"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
	InvoicePartial InvoiceStatus = "partial"
)

// Invoice is created together with its subscription and transitions to paid
// only inside the same commit that activates the subscription.
type Invoice struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	AmountCents    int64
	Currency       string
	Status         InvoiceStatus
	CreatedAt      time.Time
}

// Plan is a collection-service price plan.
type Plan struct {
	ID          uuid.UUID
	Name        string
	Description string
	PriceCents  int64
	Currency    string
	Active      bool
	CreatedAt   time.Time
}
