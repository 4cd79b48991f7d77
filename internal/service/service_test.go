package service_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/gateway"
	"github.com/hakotapp/hakot/internal/memory"
	"github.com/hakotapp/hakot/internal/service"
)

// testEnv wires the services against the in-memory store and the mock
// gateway.
type testEnv struct {
	store    *memory.Store
	provider *gateway.MockProvider

	subscriptions service.SubscriptionService
	confirmer     service.ConfirmationService
	ledger        service.LedgerService

	plan domain.Plan
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	provider := gateway.NewMockProvider()
	logger := slog.New(slog.DiscardHandler)

	plan := domain.Plan{
		ID:         uuid.New(),
		Name:       "Weekly Pickup",
		PriceCents: 19900,
		Currency:   "IDR",
		Active:     true,
		CreatedAt:  time.Now(),
	}
	store.SeedPlan(plan)

	return &testEnv{
		store:         store,
		provider:      provider,
		subscriptions: service.NewSubscriptionService(store, store, store, provider, nil, logger, "http://localhost:3000/payments/return"),
		confirmer:     service.NewConfirmationService(store, store, provider, nil, nil, logger),
		ledger:        service.NewLedgerService(store, nil, logger),
		plan:          plan,
	}
}

// startCheckout runs the full happy path up to the open checkout.
func (env *testEnv) startCheckout(t *testing.T, userID uuid.UUID) (*service.SubscriptionReceipt, *service.PaymentSession) {
	t.Helper()
	ctx := context.Background()

	receipt, err := env.subscriptions.RequestSubscription(ctx, service.RequestSubscriptionParams{
		UserID: userID,
		PlanID: env.plan.ID,
		Method: domain.MethodGateway,
	})
	require.NoError(t, err)

	session, err := env.subscriptions.StartPayment(ctx, userID, receipt.SubscriptionID)
	require.NoError(t, err)

	return receipt, session
}
