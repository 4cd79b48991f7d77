package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/events"
	"github.com/hakotapp/hakot/internal/gateway"
	"github.com/hakotapp/hakot/internal/telemetry"
)

// ConfirmTrigger identifies which completion path called Confirm.
type ConfirmTrigger string

const (
	TriggerRedirect ConfirmTrigger = "redirect"
	TriggerPoller   ConfirmTrigger = "poller"
	TriggerWebhook  ConfirmTrigger = "webhook"
)

// ConfirmationService turns a gateway "paid" status into an activated
// subscription. It is the single authority for activation: every
// completion path (redirect return, poller, webhook) funnels into Confirm,
// and Confirm trusts nothing the caller asserts about the payment.
type ConfirmationService interface {
	// Confirm verifies the payment with the gateway and commits the
	// activation. It is idempotent: confirming an already completed
	// payment succeeds without writing anything.
	Confirm(ctx context.Context, params ConfirmParams) (*Activation, error)
}

// ConfirmParams contains parameters for confirming a payment.
type ConfirmParams struct {
	// SourceID is the gateway correlation id, required.
	SourceID string

	// SubscriptionID cross-checks the caller's claim against the stored
	// intent when non-zero.
	SubscriptionID uuid.UUID

	Trigger ConfirmTrigger
}

// Activation is the outcome of a successful confirmation.
type Activation struct {
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	Status         domain.SubscriptionStatus

	// Duplicate is true when the payment was already confirmed earlier
	// and this call changed nothing.
	Duplicate bool

	// Entry is the ledger credit written by this call, nil on duplicates.
	Entry *domain.LedgerEntry
}

// ActivationPublisher emits the post-commit activation event.
type ActivationPublisher interface {
	SubscriptionActivated(ctx context.Context, event events.SubscriptionActivated) error
}

type confirmationService struct {
	store     domain.SubscriptionStore
	pending   domain.PendingIntentStore
	provider  gateway.Provider
	publisher ActivationPublisher
	metrics   *telemetry.BusinessMetrics
	logger    *slog.Logger
}

// NewConfirmationService creates a confirmation service. publisher may be
// nil when no event bus is configured.
func NewConfirmationService(
	store domain.SubscriptionStore,
	pending domain.PendingIntentStore,
	provider gateway.Provider,
	publisher ActivationPublisher,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
) ConfirmationService {
	return &confirmationService{
		store:     store,
		pending:   pending,
		provider:  provider,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *confirmationService) Confirm(ctx context.Context, params ConfirmParams) (*Activation, error) {
	if params.SourceID == "" {
		return nil, domain.Invalid("confirm", "source id is required")
	}

	intent, err := s.store.IntentBySource(ctx, params.SourceID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	if params.SubscriptionID != uuid.Nil && params.SubscriptionID != intent.SubscriptionID {
		return nil, ErrWrongSubscription
	}

	// Replays are success: the first confirmation already did the work.
	if intent.Status == domain.IntentCompleted {
		return s.duplicate(ctx, intent)
	}
	// A closed intent never activates, whatever the gateway says now.
	if intent.Status.Terminal() {
		s.countMismatch()
		return nil, ErrConfirmationMismatch
	}

	// Claim the slot so only one completion path at a time verifies and
	// commits. The status-guarded commit stays the real safety mechanism;
	// the claim keeps the losers from racing the gateway round trip.
	claimed, err := s.pending.Claim(ctx, intent.UserID, intent.SourceID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// A concurrent path holds the claim, or may already have
		// committed and cleared the slot.
		intent, err = s.store.IntentBySource(ctx, params.SourceID)
		if err != nil {
			return nil, err
		}
		if intent.Status == domain.IntentCompleted {
			return s.duplicate(ctx, intent)
		}
		return nil, ErrConfirmationInProgress
	}

	// Never trust the trigger. The redirect token, the poller's last read
	// and the webhook body are all only hints; the gateway's current
	// status decides.
	status, err := s.provider.GetStatus(ctx, params.SourceID)
	if err != nil {
		if errors.Is(err, gateway.ErrSourceNotFound) {
			s.release(ctx, intent)
			s.countMismatch()
			return nil, ErrConfirmationMismatch
		}
		s.release(ctx, intent)
		return nil, ErrGatewayUnavailable
	}

	switch status {
	case gateway.StatusPaid:
		// fall through to commit
	case gateway.StatusFailed, gateway.StatusExpired:
		s.closeLost(ctx, intent, status)
		s.countMismatch()
		return nil, ErrConfirmationMismatch
	default:
		// Still pending with the gateway: release so a later path can
		// claim and try again.
		s.release(ctx, intent)
		s.countMismatch()
		return nil, ErrConfirmationMismatch
	}

	entry, applied, err := s.store.CommitActivation(ctx, domain.ActivationCommit{
		SourceID:       intent.SourceID,
		SubscriptionID: intent.SubscriptionID,
		UserID:         intent.UserID,
		AmountCents:    intent.AmountCents,
		Description:    fmt.Sprintf("Payment for subscription %s", intent.SubscriptionID),
		ConfirmedAt:    time.Now(),
	})
	if err != nil {
		s.release(ctx, intent)
		return nil, err
	}
	if !applied {
		// A racing confirmation committed between our read and our write.
		intent, err = s.store.IntentBySource(ctx, params.SourceID)
		if err != nil {
			return nil, err
		}
		return s.duplicate(ctx, intent)
	}

	// The commit is durable; everything below is best effort.
	if err := s.pending.Clear(ctx, intent.UserID, intent.SourceID); err != nil {
		s.logger.Warn("failed to clear pending slot", "source_id", intent.SourceID, "error", err)
	}
	s.publishActivated(ctx, intent, entry)

	if s.metrics != nil {
		s.metrics.PaymentsConfirmed.WithLabelValues(string(params.Trigger)).Inc()
		s.metrics.SubscriptionsActivated.Inc()
		s.metrics.LedgerEntries.WithLabelValues("credit").Inc()
		s.metrics.RevenueCents.WithLabelValues(string(domain.MethodGateway)).Add(float64(intent.AmountCents))
	}
	s.logger.Info("payment confirmed",
		"source_id", intent.SourceID,
		"subscription_id", intent.SubscriptionID,
		"amount_cents", intent.AmountCents,
		"trigger", params.Trigger,
	)

	return &Activation{
		SubscriptionID: intent.SubscriptionID,
		UserID:         intent.UserID,
		Status:         domain.SubscriptionActive,
		Entry:          entry,
	}, nil
}

// duplicate reports an already confirmed payment as success.
func (s *confirmationService) duplicate(ctx context.Context, intent *domain.PaymentIntent) (*Activation, error) {
	if s.metrics != nil {
		s.metrics.DuplicateConfirmation.Inc()
	}
	// The slot is normally gone by now; clearing again is harmless and
	// covers a crash between commit and clear.
	if err := s.pending.Clear(ctx, intent.UserID, intent.SourceID); err != nil {
		s.logger.Warn("failed to clear pending slot", "source_id", intent.SourceID, "error", err)
	}
	return &Activation{
		SubscriptionID: intent.SubscriptionID,
		UserID:         intent.UserID,
		Status:         domain.SubscriptionActive,
		Duplicate:      true,
	}, nil
}

// release gives the claim back so a later completion path can retry.
func (s *confirmationService) release(ctx context.Context, intent *domain.PaymentIntent) {
	if err := s.pending.Release(ctx, intent.UserID, intent.SourceID); err != nil {
		s.logger.Warn("failed to release pending slot", "source_id", intent.SourceID, "error", err)
	}
}

// closeLost records a terminally failed or expired gateway status and
// frees the user's pending slot so a fresh attempt can start.
func (s *confirmationService) closeLost(ctx context.Context, intent *domain.PaymentIntent, status gateway.SourceStatus) {
	closed := domain.IntentFailed
	if status == gateway.StatusExpired {
		closed = domain.IntentExpired
	}
	if err := s.store.CloseIntent(ctx, intent.SourceID, closed); err != nil && !domain.IsCode(err, domain.ECONFLICT) {
		s.logger.Warn("failed to close lost intent", "source_id", intent.SourceID, "error", err)
		return
	}
	if err := s.pending.Clear(ctx, intent.UserID, intent.SourceID); err != nil {
		s.logger.Warn("failed to clear pending slot", "source_id", intent.SourceID, "error", err)
	}
}

func (s *confirmationService) publishActivated(ctx context.Context, intent *domain.PaymentIntent, entry *domain.LedgerEntry) {
	if s.publisher == nil {
		return
	}
	sub, err := s.store.Subscription(ctx, intent.SubscriptionID)
	if err != nil {
		s.logger.Warn("failed to load subscription for event", "subscription_id", intent.SubscriptionID, "error", err)
		return
	}
	err = s.publisher.SubscriptionActivated(ctx, events.SubscriptionActivated{
		SubscriptionID: intent.SubscriptionID,
		UserID:         intent.UserID,
		PlanID:         sub.PlanID,
		SourceID:       intent.SourceID,
		AmountCents:    intent.AmountCents,
		Currency:       intent.Currency,
		ActivatedAt:    entry.Date,
	})
	if err != nil {
		s.logger.Warn("failed to publish activation event", "subscription_id", intent.SubscriptionID, "error", err)
	}
}

func (s *confirmationService) countMismatch() {
	if s.metrics != nil {
		s.metrics.ConfirmationMismatch.Inc()
	}
}
