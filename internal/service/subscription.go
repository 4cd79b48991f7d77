package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/gateway"
	"github.com/hakotapp/hakot/internal/telemetry"
)

// SubscriptionService provides business logic for the subscription
// lifecycle up to the payment handoff. Activation happens only through the
// ConfirmationService.
type SubscriptionService interface {
	// RequestSubscription opens a pending subscription with its unpaid
	// invoice. The gateway is not contacted here; StartPayment is the
	// separate follow-up step.
	RequestSubscription(ctx context.Context, params RequestSubscriptionParams) (*SubscriptionReceipt, error)

	// StartPayment creates a gateway checkout for the subscription's
	// invoice, records the payment intent and fills the user's pending
	// payment slot. Calling it again while the checkout is open returns
	// the existing session.
	StartPayment(ctx context.Context, userID, subscriptionID uuid.UUID) (*PaymentSession, error)

	// Current returns the user's open subscription, nil when none exists.
	Current(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)

	// Cancel cancels a pending or active subscription owned by the user.
	Cancel(ctx context.Context, userID, subscriptionID uuid.UUID) error

	// ActivePlans lists plans open for new subscriptions.
	ActivePlans(ctx context.Context) ([]domain.Plan, error)
}

// RequestSubscriptionParams contains parameters for opening a subscription.
type RequestSubscriptionParams struct {
	UserID uuid.UUID
	PlanID uuid.UUID

	// Method is how the user intends to pay. Gateway payments go through
	// StartPayment; cash and bank transfers are recorded by an operator
	// through the ledger service.
	Method domain.PaymentMethod
}

// SubscriptionReceipt identifies the records opened by a request.
type SubscriptionReceipt struct {
	SubscriptionID uuid.UUID
	InvoiceID      uuid.UUID
	AmountCents    int64
	Currency       string
}

// PaymentSession is a live gateway checkout for a subscription invoice.
type PaymentSession struct {
	SourceID    string
	CheckoutURL string
	AmountCents int64
	Currency    string
}

type subscriptionService struct {
	store    domain.SubscriptionStore
	plans    domain.PlanStore
	pending  domain.PendingIntentStore
	provider gateway.Provider
	metrics  *telemetry.BusinessMetrics
	logger   *slog.Logger

	// returnURL is where the gateway redirects the payer after checkout.
	returnURL string
}

// NewSubscriptionService creates a subscription service.
func NewSubscriptionService(
	store domain.SubscriptionStore,
	plans domain.PlanStore,
	pending domain.PendingIntentStore,
	provider gateway.Provider,
	metrics *telemetry.BusinessMetrics,
	logger *slog.Logger,
	returnURL string,
) SubscriptionService {
	return &subscriptionService{
		store:     store,
		plans:     plans,
		pending:   pending,
		provider:  provider,
		metrics:   metrics,
		logger:    logger,
		returnURL: returnURL,
	}
}

func (s *subscriptionService) RequestSubscription(ctx context.Context, params RequestSubscriptionParams) (*SubscriptionReceipt, error) {
	switch params.Method {
	case domain.MethodGateway, domain.MethodCash, domain.MethodBankTransfer:
	default:
		return nil, domain.Invalid("subscription.request", "unknown payment method")
	}

	existing, err := s.store.BlockingByUser(ctx, params.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.countRequest("already_subscribed")
		return nil, ErrAlreadySubscribed
	}

	plan, err := s.plans.Plan(ctx, params.PlanID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			s.countRequest("plan_unavailable")
			return nil, ErrPlanUnavailable
		}
		return nil, err
	}
	if !plan.Active {
		s.countRequest("plan_unavailable")
		return nil, ErrPlanUnavailable
	}
	if plan.PriceCents <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now()
	sub := domain.Subscription{
		ID:        uuid.New(),
		UserID:    params.UserID,
		PlanID:    params.PlanID,
		Status:    domain.SubscriptionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inv := domain.Invoice{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		AmountCents:    plan.PriceCents,
		Currency:       plan.Currency,
		Status:         domain.InvoiceUnpaid,
		CreatedAt:      now,
	}
	debit := domain.AppendEntryParams{
		UserID:      params.UserID,
		Date:        now,
		Description: fmt.Sprintf("Invoice for plan %s", plan.Name),
		Reference:   "inv-" + inv.ID.String(),
		DebitCents:  plan.PriceCents,
	}

	if err := s.store.CreateCheckout(ctx, sub, inv, debit); err != nil {
		// A concurrent request for the same user can slip past the
		// BlockingByUser read; the store's uniqueness guarantee catches it.
		if domain.IsCode(err, domain.ECONFLICT) {
			s.countRequest("already_subscribed")
			return nil, ErrAlreadySubscribed
		}
		return nil, err
	}

	s.countRequest("created")
	if s.metrics != nil {
		s.metrics.LedgerEntries.WithLabelValues("debit").Inc()
	}
	s.logger.Info("subscription requested",
		"subscription_id", sub.ID,
		"user_id", params.UserID,
		"plan_id", params.PlanID,
		"amount_cents", plan.PriceCents,
		"method", params.Method,
	)

	return &SubscriptionReceipt{
		SubscriptionID: sub.ID,
		InvoiceID:      inv.ID,
		AmountCents:    inv.AmountCents,
		Currency:       inv.Currency,
	}, nil
}

func (s *subscriptionService) StartPayment(ctx context.Context, userID, subscriptionID uuid.UUID) (*PaymentSession, error) {
	sub, err := s.store.Subscription(ctx, subscriptionID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotSubscriptionOwner
	}
	if sub.Status != domain.SubscriptionPending {
		return nil, ErrSubscriptionNotPayable
	}

	inv, err := s.store.InvoiceBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	// A still-open checkout for this subscription is reused rather than
	// replaced; the redirect URL stays valid until the gateway expires it.
	if slot, err := s.pending.Load(ctx, userID); err != nil {
		return nil, err
	} else if slot != nil {
		if slot.SubscriptionID != subscriptionID {
			return nil, ErrAlreadySubscribed
		}
		intent, err := s.store.IntentBySource(ctx, slot.SourceID)
		if err != nil {
			return nil, err
		}
		if !intent.Status.Terminal() {
			status, err := s.provider.GetStatus(ctx, slot.SourceID)
			if err == nil && status == gateway.StatusPending {
				return &PaymentSession{
					SourceID:    intent.SourceID,
					CheckoutURL: intent.CheckoutURL,
					AmountCents: intent.AmountCents,
					Currency:    intent.Currency,
				}, nil
			}
		}
		// The old attempt is dead. Free the slot before opening a new one.
		if err := s.pending.Clear(ctx, userID, slot.SourceID); err != nil {
			return nil, err
		}
	}

	source, err := s.provider.CreateSource(ctx, gateway.CreateSourceParams{
		AmountCents: inv.AmountCents,
		Currency:    inv.Currency,
		Description: fmt.Sprintf("Subscription %s", subscriptionID),
		RedirectURL: s.returnURL,
		Metadata: map[string]string{
			"subscription_id": subscriptionID.String(),
			"user_id":         userID.String(),
		},
	})
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidAmount) {
			return nil, ErrInvalidAmount
		}
		s.logger.Error("gateway checkout failed", "subscription_id", subscriptionID, "error", err)
		return nil, ErrGatewayUnavailable
	}

	now := time.Now()
	err = s.store.CreateIntent(ctx, domain.PaymentIntent{
		SourceID:       source.ID,
		SubscriptionID: subscriptionID,
		UserID:         userID,
		AmountCents:    inv.AmountCents,
		Currency:       inv.Currency,
		CheckoutURL:    source.CheckoutURL,
		Status:         domain.IntentCreated,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	err = s.pending.Save(ctx, domain.PendingIntent{
		UserID:         userID,
		SourceID:       source.ID,
		SubscriptionID: subscriptionID,
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CheckoutsCreated.Inc()
	}
	s.logger.Info("payment started",
		"subscription_id", subscriptionID,
		"source_id", source.ID,
		"amount_cents", inv.AmountCents,
	)

	return &PaymentSession{
		SourceID:    source.ID,
		CheckoutURL: source.CheckoutURL,
		AmountCents: inv.AmountCents,
		Currency:    inv.Currency,
	}, nil
}

func (s *subscriptionService) Current(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return s.store.BlockingByUser(ctx, userID)
}

func (s *subscriptionService) Cancel(ctx context.Context, userID, subscriptionID uuid.UUID) error {
	sub, err := s.store.Subscription(ctx, subscriptionID)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			return ErrSubscriptionNotFound
		}
		return err
	}
	if sub.UserID != userID {
		return ErrNotSubscriptionOwner
	}

	if err := s.store.Cancel(ctx, subscriptionID); err != nil {
		return err
	}

	// Any open checkout stays valid with the gateway until it expires on
	// its own. Closing the intent and dropping the slot stops this side
	// from ever confirming it against the cancelled subscription.
	if slot, err := s.pending.Load(ctx, userID); err == nil && slot != nil && slot.SubscriptionID == subscriptionID {
		if err := s.store.CloseIntent(ctx, slot.SourceID, domain.IntentExpired); err != nil && !domain.IsCode(err, domain.ECONFLICT) {
			s.logger.Warn("failed to close intent on cancel", "source_id", slot.SourceID, "error", err)
		}
		if err := s.pending.Clear(ctx, userID, slot.SourceID); err != nil {
			s.logger.Warn("failed to clear pending slot on cancel", "subscription_id", subscriptionID, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.SubscriptionsCancelled.Inc()
	}
	s.logger.Info("subscription cancelled", "subscription_id", subscriptionID, "user_id", userID)
	return nil
}

func (s *subscriptionService) ActivePlans(ctx context.Context) ([]domain.Plan, error) {
	return s.plans.ActivePlans(ctx)
}

func (s *subscriptionService) countRequest(outcome string) {
	if s.metrics != nil {
		s.metrics.SubscriptionsRequested.WithLabelValues(outcome).Inc()
	}
}
