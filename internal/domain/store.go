package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStore persists subscriptions, their invoices and payment
// intents. Implementations must make CreateCheckout and CommitActivation
// atomic: either every write in the operation applies or none do.
type SubscriptionStore interface {
	// CreateCheckout creates the pending subscription, its unpaid invoice
	// and the ledger debit for the invoiced amount in one transaction.
	// Fails with ECONFLICT if the user already has a blocking subscription.
	CreateCheckout(ctx context.Context, sub Subscription, inv Invoice, debit AppendEntryParams) error

	// Subscription returns a subscription by id, ENOTFOUND if absent.
	Subscription(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// BlockingByUser returns the user's pending/active/suspended
	// subscription, or nil if the user has none.
	BlockingByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// InvoiceBySubscription returns the invoice opened with the subscription.
	InvoiceBySubscription(ctx context.Context, subID uuid.UUID) (*Invoice, error)

	// Cancel marks a pending or active subscription cancelled.
	Cancel(ctx context.Context, id uuid.UUID) error

	// CreateIntent records a gateway payment intent. SourceID is unique;
	// at most one non-terminal intent per subscription.
	CreateIntent(ctx context.Context, intent PaymentIntent) error

	// IntentBySource returns the intent for a gateway source id.
	IntentBySource(ctx context.Context, sourceID string) (*PaymentIntent, error)

	// CloseIntent moves a non-terminal intent to failed or expired.
	// Completing an intent goes through CommitActivation only.
	CloseIntent(ctx context.Context, sourceID string, status IntentStatus) error

	// CommitActivation performs the single authoritative commit: intent to
	// completed, subscription to active, invoice to paid, and exactly one
	// ledger credit appended. The intent update is status-guarded
	// ("apply only if not already completed"); when a concurrent caller
	// already won, applied is false and no writes occur.
	CommitActivation(ctx context.Context, p ActivationCommit) (entry *LedgerEntry, applied bool, err error)
}

// ActivationCommit carries the validated facts for one confirmation commit.
type ActivationCommit struct {
	SourceID       string
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	AmountCents    int64
	Description    string
	ConfirmedAt    time.Time
}

// AppendEntryParams is one row to append to a user's ledger.
type AppendEntryParams struct {
	UserID      uuid.UUID
	Date        time.Time
	Description string
	Reference   string
	DebitCents  int64
	CreditCents int64
}

// LedgerStore is the append-only financial record. Append computes the
// running balance from the user's prior entry and enforces at most one
// entry per non-empty reference.
type LedgerStore interface {
	Append(ctx context.Context, p AppendEntryParams) (*LedgerEntry, error)
	Entries(ctx context.Context, userID uuid.UUID) ([]LedgerEntry, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
}

// PlanStore resolves price plans.
type PlanStore interface {
	Plan(ctx context.Context, id uuid.UUID) (*Plan, error)
	ActivePlans(ctx context.Context) ([]Plan, error)
}

// PendingIntentStore is the durable single-slot record of a user's
// in-flight payment. Claim is the claim-and-clear discipline: the first
// completion path to claim the slot proceeds to confirmation, later
// claims for the same source report false. Clear removes the slot after a
// successful commit; Release undoes a claim whose confirmation failed so
// the other path (or a retry) can take over.
type PendingIntentStore interface {
	Save(ctx context.Context, intent PendingIntent) error
	Load(ctx context.Context, userID uuid.UUID) (*PendingIntent, error)

	// Open lists every stored slot. Used on startup to resume polling for
	// payments that were in flight when the process stopped.
	Open(ctx context.Context) ([]PendingIntent, error)
	Claim(ctx context.Context, userID uuid.UUID, sourceID string) (bool, error)
	Release(ctx context.Context, userID uuid.UUID, sourceID string) error
	Clear(ctx context.Context, userID uuid.UUID, sourceID string) error
}
