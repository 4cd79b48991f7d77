package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hakotapp/hakot/internal/domain"
)

// CreateCheckout inserts the pending subscription, its unpaid invoice and
// the opening ledger debit as one transaction. A partial unique index on
// open subscriptions enforces at most one blocking subscription per user.
func (s *Store) CreateCheckout(ctx context.Context, sub domain.Subscription, inv domain.Invoice, debit domain.AppendEntryParams) error {
	const op = "subscription.checkout"

	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO subscriptions (id, user_id, plan_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			sub.ID, sub.UserID, sub.PlanID, sub.Status, sub.CreatedAt, sub.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, "subscriptions_one_open_per_user") {
				return domain.Conflict(op, "user already has an open subscription")
			}
			return domain.Internal(err, op, "failed to insert subscription")
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO invoices (id, subscription_id, amount_cents, currency, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			inv.ID, inv.SubscriptionID, inv.AmountCents, inv.Currency, inv.Status, inv.CreatedAt,
		)
		if err != nil {
			return domain.Internal(err, op, "failed to insert invoice")
		}

		_, err = appendEntry(ctx, tx, debit)
		return err
	})
}

// Subscription returns a subscription by id.
func (s *Store) Subscription(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	const op = "subscription.get"

	var sub domain.Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, plan_id, status, created_at, updated_at
		FROM subscriptions
		WHERE id = $1`,
		id,
	).Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(op, "subscription", id.String())
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query subscription")
	}
	return &sub, nil
}

// BlockingByUser returns the user's open subscription, or nil when the
// user has none.
func (s *Store) BlockingByUser(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	const op = "subscription.blocking"

	var sub domain.Subscription
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, plan_id, status, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1 AND status IN ('pending', 'active', 'suspended')
		ORDER BY created_at DESC
		LIMIT 1`,
		userID,
	).Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query open subscription")
	}
	return &sub, nil
}

// InvoiceBySubscription returns the invoice attached to a subscription.
func (s *Store) InvoiceBySubscription(ctx context.Context, subID uuid.UUID) (*domain.Invoice, error) {
	const op = "invoice.get"

	var inv domain.Invoice
	err := s.pool.QueryRow(ctx, `
		SELECT id, subscription_id, amount_cents, currency, status, created_at
		FROM invoices
		WHERE subscription_id = $1`,
		subID,
	).Scan(&inv.ID, &inv.SubscriptionID, &inv.AmountCents, &inv.Currency, &inv.Status, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(op, "invoice", subID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query invoice")
	}
	return &inv, nil
}

// Cancel moves a pending or active subscription to cancelled.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID) error {
	const op = "subscription.cancel"

	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'active')`,
		id,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to cancel subscription")
	}
	if tag.RowsAffected() == 0 {
		sub, getErr := s.Subscription(ctx, id)
		if getErr != nil {
			return getErr
		}
		return domain.Conflict(op, "subscription is "+string(sub.Status)+" and cannot be cancelled")
	}
	return nil
}

// CreateIntent records a payment intent for a checkout source. A partial
// unique index allows at most one open intent per subscription.
func (s *Store) CreateIntent(ctx context.Context, intent domain.PaymentIntent) error {
	const op = "intent.create"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_intents
			(source_id, subscription_id, user_id, amount_cents, currency, checkout_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		intent.SourceID, intent.SubscriptionID, intent.UserID,
		intent.AmountCents, intent.Currency, intent.CheckoutURL, intent.Status, intent.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domain.Conflict(op, "subscription already has an open payment intent")
		}
		return domain.Internal(err, op, "failed to insert payment intent")
	}
	return nil
}

// IntentBySource returns the payment intent for a gateway source id.
func (s *Store) IntentBySource(ctx context.Context, sourceID string) (*domain.PaymentIntent, error) {
	const op = "intent.get"

	var intent domain.PaymentIntent
	err := s.pool.QueryRow(ctx, `
		SELECT source_id, subscription_id, user_id, amount_cents, currency, checkout_url, status, created_at, confirmed_at
		FROM payment_intents
		WHERE source_id = $1`,
		sourceID,
	).Scan(
		&intent.SourceID, &intent.SubscriptionID, &intent.UserID,
		&intent.AmountCents, &intent.Currency, &intent.CheckoutURL,
		&intent.Status, &intent.CreatedAt, &intent.ConfirmedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(op, "payment intent", sourceID)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to query payment intent")
	}
	return &intent, nil
}

// CloseIntent moves a non-terminal intent to failed or expired.
func (s *Store) CloseIntent(ctx context.Context, sourceID string, status domain.IntentStatus) error {
	const op = "intent.close"

	if status != domain.IntentFailed && status != domain.IntentExpired {
		return domain.Invalid(op, "close status must be failed or expired")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE payment_intents
		SET status = $2
		WHERE source_id = $1 AND status NOT IN ('completed', 'failed', 'expired')`,
		sourceID, status,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to close payment intent")
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.IntentBySource(ctx, sourceID); getErr != nil {
			return getErr
		}
		return domain.Conflict(op, "payment intent already terminal")
	}
	return nil
}

// CommitActivation atomically completes the payment: the intent moves to
// completed, the subscription to active, the invoice to paid, and the
// payment credit lands in the ledger. The intent update is guarded on
// status so a concurrent or repeated confirmation becomes a no-op replay,
// reported as applied=false with no error.
func (s *Store) CommitActivation(ctx context.Context, p domain.ActivationCommit) (*domain.LedgerEntry, bool, error) {
	const op = "confirm.commit"

	var (
		entry   *domain.LedgerEntry
		applied bool
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payment_intents
			SET status = 'completed', confirmed_at = $2
			WHERE source_id = $1 AND status NOT IN ('completed', 'failed', 'expired')`,
			p.SourceID, p.ConfirmedAt,
		)
		if err != nil {
			return domain.Internal(err, op, "failed to complete payment intent")
		}
		if tag.RowsAffected() == 0 {
			var status domain.IntentStatus
			err := tx.QueryRow(ctx,
				`SELECT status FROM payment_intents WHERE source_id = $1`,
				p.SourceID,
			).Scan(&status)
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.NotFound(op, "payment intent", p.SourceID)
			}
			if err != nil {
				return domain.Internal(err, op, "failed to query payment intent")
			}
			if status == domain.IntentCompleted {
				return nil
			}
			return domain.Conflict(op, "payment intent already closed")
		}

		_, err = tx.Exec(ctx, `
			UPDATE subscriptions
			SET status = 'active', updated_at = $2
			WHERE id = $1`,
			p.SubscriptionID, p.ConfirmedAt,
		)
		if err != nil {
			return domain.Internal(err, op, "failed to activate subscription")
		}

		_, err = tx.Exec(ctx, `
			UPDATE invoices
			SET status = 'paid'
			WHERE subscription_id = $1`,
			p.SubscriptionID,
		)
		if err != nil {
			return domain.Internal(err, op, "failed to mark invoice paid")
		}

		entry, err = appendEntry(ctx, tx, domain.AppendEntryParams{
			UserID:      p.UserID,
			Date:        p.ConfirmedAt,
			Description: p.Description,
			Reference:   p.SourceID,
			CreditCents: p.AmountCents,
		})
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, applied, nil
}
