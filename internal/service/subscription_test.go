package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/gateway"
	"github.com/hakotapp/hakot/internal/service"
)

func TestRequestSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("opens pending subscription with unpaid invoice and ledger debit", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()

		receipt, err := env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: userID,
			PlanID: env.plan.ID,
			Method: domain.MethodGateway,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(19900), receipt.AmountCents)

		sub, err := env.store.Subscription(ctx, receipt.SubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionPending, sub.Status)

		inv, err := env.store.InvoiceBySubscription(ctx, receipt.SubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, domain.InvoiceUnpaid, inv.Status)

		// The invoiced amount is owed from the moment of checkout.
		balance, err := env.ledger.Balance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, int64(19900), balance)
	})

	t.Run("rejects second subscription while one is open", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()

		_, err := env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: userID, PlanID: env.plan.ID, Method: domain.MethodGateway,
		})
		require.NoError(t, err)

		_, err = env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: userID, PlanID: env.plan.ID, Method: domain.MethodGateway,
		})
		assert.ErrorIs(t, err, service.ErrAlreadySubscribed)
	})

	t.Run("allows a new subscription after cancelling", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()

		receipt, err := env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: userID, PlanID: env.plan.ID, Method: domain.MethodGateway,
		})
		require.NoError(t, err)
		require.NoError(t, env.subscriptions.Cancel(ctx, userID, receipt.SubscriptionID))

		_, err = env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: userID, PlanID: env.plan.ID, Method: domain.MethodGateway,
		})
		assert.NoError(t, err)
	})

	t.Run("rejects unknown plan", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: uuid.New(), PlanID: uuid.New(), Method: domain.MethodGateway,
		})
		assert.ErrorIs(t, err, service.ErrPlanUnavailable)
	})

	t.Run("rejects inactive plan", func(t *testing.T) {
		env := newTestEnv(t)
		retired := domain.Plan{ID: uuid.New(), Name: "Retired", PriceCents: 900, Currency: "IDR", Active: false}
		env.store.SeedPlan(retired)

		_, err := env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: uuid.New(), PlanID: retired.ID, Method: domain.MethodGateway,
		})
		assert.ErrorIs(t, err, service.ErrPlanUnavailable)
	})

	t.Run("rejects unknown payment method", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: uuid.New(), PlanID: env.plan.ID, Method: "crypto",
		})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
}

func TestStartPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("creates checkout, intent and pending slot", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()
		receipt, session := env.startCheckout(t, userID)

		assert.NotEmpty(t, session.SourceID)
		assert.NotEmpty(t, session.CheckoutURL)
		assert.Equal(t, int64(19900), session.AmountCents)

		intent, err := env.store.IntentBySource(ctx, session.SourceID)
		require.NoError(t, err)
		assert.Equal(t, receipt.SubscriptionID, intent.SubscriptionID)
		assert.Equal(t, domain.IntentCreated, intent.Status)

		slot, err := env.store.Load(ctx, userID)
		require.NoError(t, err)
		require.NotNil(t, slot)
		assert.Equal(t, session.SourceID, slot.SourceID)
	})

	t.Run("reuses an open checkout instead of creating a second", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()
		receipt, first := env.startCheckout(t, userID)

		again, err := env.subscriptions.StartPayment(ctx, userID, receipt.SubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, first.SourceID, again.SourceID)
		assert.Equal(t, first.CheckoutURL, again.CheckoutURL)
	})

	t.Run("opens a fresh checkout after the old one expired", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()
		receipt, first := env.startCheckout(t, userID)

		require.NoError(t, env.provider.SimulateExpired(first.SourceID))

		second, err := env.subscriptions.StartPayment(ctx, userID, receipt.SubscriptionID)
		require.NoError(t, err)
		assert.NotEqual(t, first.SourceID, second.SourceID)
	})

	t.Run("reports gateway unavailable", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()
		receipt, err := env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: userID, PlanID: env.plan.ID, Method: domain.MethodGateway,
		})
		require.NoError(t, err)

		env.provider.CreateSourceFunc = func(ctx context.Context, params gateway.CreateSourceParams) (*gateway.Source, error) {
			return nil, gateway.ErrUnavailable
		}

		_, err = env.subscriptions.StartPayment(ctx, userID, receipt.SubscriptionID)
		assert.ErrorIs(t, err, service.ErrGatewayUnavailable)
	})

	t.Run("rejects another user's subscription", func(t *testing.T) {
		env := newTestEnv(t)
		owner := uuid.New()
		receipt, err := env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
			UserID: owner, PlanID: env.plan.ID, Method: domain.MethodGateway,
		})
		require.NoError(t, err)

		_, err = env.subscriptions.StartPayment(ctx, uuid.New(), receipt.SubscriptionID)
		assert.ErrorIs(t, err, service.ErrNotSubscriptionOwner)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancelling closes the checkout and clears the slot", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()
		receipt, session := env.startCheckout(t, userID)

		require.NoError(t, env.subscriptions.Cancel(ctx, userID, receipt.SubscriptionID))

		sub, err := env.store.Subscription(ctx, receipt.SubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionCancelled, sub.Status)

		slot, err := env.store.Load(ctx, userID)
		require.NoError(t, err)
		assert.Nil(t, slot)

		intent, err := env.store.IntentBySource(ctx, session.SourceID)
		require.NoError(t, err)
		assert.Equal(t, domain.IntentExpired, intent.Status)

		// A late gateway success for the abandoned checkout must not
		// resurrect the cancelled subscription.
		require.NoError(t, env.provider.SimulatePaid(session.SourceID))
		_, err = env.confirmer.Confirm(ctx, service.ConfirmParams{SourceID: session.SourceID, Trigger: service.TriggerWebhook})
		assert.ErrorIs(t, err, service.ErrConfirmationMismatch)

		sub, err = env.store.Subscription(ctx, receipt.SubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, domain.SubscriptionCancelled, sub.Status)
	})

	t.Run("cancelling twice conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()
		receipt, _ := env.startCheckout(t, userID)

		require.NoError(t, env.subscriptions.Cancel(ctx, userID, receipt.SubscriptionID))
		err := env.subscriptions.Cancel(ctx, userID, receipt.SubscriptionID)
		assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	})
}

func TestStartPaymentAfterTimeoutWindow(t *testing.T) {
	// A checkout that the gateway still reports pending stays reusable
	// even if a poll gave up on it earlier; only a terminal gateway status
	// rotates the source.
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()
	receipt, first := env.startCheckout(t, userID)

	again, err := env.subscriptions.StartPayment(ctx, userID, receipt.SubscriptionID)
	require.NoError(t, err)
	require.Equal(t, first.SourceID, again.SourceID)
}
