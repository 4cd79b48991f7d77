package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/gateway"
	"github.com/hakotapp/hakot/internal/handler"
	"github.com/hakotapp/hakot/internal/memory"
	"github.com/hakotapp/hakot/internal/middleware"
	"github.com/hakotapp/hakot/internal/router"
	"github.com/hakotapp/hakot/internal/service"
)

// noopPoller satisfies handler.PollStarter; tests drive confirmation
// through the redirect and webhook endpoints instead.
type noopPoller struct{}

func (noopPoller) Start(ctx context.Context, intent domain.PendingIntent) {}

type testServer struct {
	router   *router.Router
	store    *memory.Store
	provider *gateway.MockProvider
	plan     domain.Plan
}

func newTestServer(t *testing.T) *testServer {
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
	}
	store.SeedPlan(plan)

	subscriptions := service.NewSubscriptionService(store, store, store, provider, nil, logger, "http://localhost:3000/payments/return")
	confirmer := service.NewConfirmationService(store, store, provider, nil, nil, logger)
	ledger := service.NewLedgerService(store, nil, logger)

	r := router.New(middleware.RequestID, middleware.WithRequestLogger(logger))
	handler.RegisterRoutes(r, handler.Deps{
		Subscriptions: handler.NewSubscriptionHandler(subscriptions, noopPoller{}, context.Background()),
		Payments:      handler.NewPaymentHandler(confirmer, ledger),
		Webhooks:      handler.NewWebhookHandler(provider, confirmer, nil),
	})

	return &testServer{router: r, store: store, provider: provider, plan: plan}
}

func (ts *testServer) do(t *testing.T, method, path string, userID uuid.UUID, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != uuid.Nil {
		req.Header.Set(middleware.UserIDHeader, userID.String())
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

// startCheckout walks a user through subscribe and start-payment, returning
// the gateway source id.
func (ts *testServer) startCheckout(t *testing.T, userID uuid.UUID) (subscriptionID, sourceID string) {
	t.Helper()

	w := ts.do(t, http.MethodPost, "/api/subscriptions", userID, map[string]any{
		"plan_id":        ts.plan.ID,
		"payment_method": "gateway",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	subscriptionID = decodeBody(t, w)["subscription_id"].(string)

	w = ts.do(t, http.MethodPost, "/api/subscriptions/"+subscriptionID+"/payment", userID, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	sourceID = body["source_id"].(string)
	require.NotEmpty(t, body["checkout_url"])
	return subscriptionID, sourceID
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EPAYMENT, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.EGATEWAY, http.StatusBadGateway},
		{domain.ETIMEOUT, http.StatusGatewayTimeout},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, handler.ErrorCodeToHTTPStatus(tt.code), tt.code)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/subscriptions", uuid.Nil, map[string]any{
		"plan_id":        ts.plan.ID,
		"payment_method": "gateway",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	errBody := decodeBody(t, w)["error"].(map[string]any)
	assert.Equal(t, domain.EUNAUTHORIZED, errBody["code"])
}

func TestPlansArePublic(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/plans", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	plans := decodeBody(t, w)["plans"].([]any)
	require.Len(t, plans, 1)
	assert.Equal(t, "Weekly Pickup", plans[0].(map[string]any)["name"])
}

func TestCreateSubscriptionValidation(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()

	t.Run("missing plan", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/subscriptions", userID, map[string]any{
			"payment_method": "gateway",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown payment method", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/subscriptions", userID, map[string]any{
			"plan_id":        ts.plan.ID,
			"payment_method": "crypto",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/subscriptions", userID, map[string]any{
			"plan_id":        ts.plan.ID,
			"payment_method": "gateway",
			"discount":       true,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSubscriptionActivationFlow(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()

	subscriptionID, sourceID := ts.startCheckout(t, userID)
	require.NoError(t, ts.provider.SimulatePaid(sourceID))

	w := ts.do(t, http.MethodPost, "/api/payments/confirm", userID, map[string]any{
		"source_id":       sourceID,
		"subscription_id": subscriptionID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["duplicate"])
	assert.Equal(t, "active", body["subscription_status"])

	w = ts.do(t, http.MethodGet, "/api/subscriptions/current", userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", decodeBody(t, w)["status"])

	w = ts.do(t, http.MethodGet, "/api/ledger/balance", userID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decodeBody(t, w)["balance_cents"])

	t.Run("second confirm reports duplicate", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/payments/confirm", userID, map[string]any{
			"source_id": sourceID,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, decodeBody(t, w)["duplicate"])
	})
}

func TestConfirmUnpaidSource(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()

	_, sourceID := ts.startCheckout(t, userID)

	w := ts.do(t, http.MethodPost, "/api/payments/confirm", userID, map[string]any{
		"source_id": sourceID,
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestReturnEndpoint(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()

	_, sourceID := ts.startCheckout(t, userID)
	require.NoError(t, ts.provider.SimulatePaid(sourceID))

	t.Run("confirms on success claim", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/payments/return?order_id="+sourceID+"&transaction_status=settlement", uuid.Nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, true, decodeBody(t, w)["success"])
	})

	t.Run("failure claim skips the gateway", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/payments/return?order_id="+sourceID+"&transaction_status=pending", uuid.Nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decodeBody(t, w)["success"])
	})

	t.Run("missing order id", func(t *testing.T) {
		w := ts.do(t, http.MethodGet, "/payments/return", uuid.Nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestWebhookEndpoint(t *testing.T) {
	notification := func(orderID string) map[string]any {
		return map[string]any{
			"order_id":           orderID,
			"status_code":        "200",
			"gross_amount":       "199.00",
			"signature_key":      "mock-signature",
			"transaction_status": "settlement",
		}
	}

	t.Run("activates on paid source", func(t *testing.T) {
		ts := newTestServer(t)
		userID := uuid.New()
		_, sourceID := ts.startCheckout(t, userID)
		require.NoError(t, ts.provider.SimulatePaid(sourceID))

		w := ts.do(t, http.MethodPost, "/api/webhooks/midtrans", uuid.Nil, notification(sourceID))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		current := ts.do(t, http.MethodGet, "/api/subscriptions/current", userID, nil)
		assert.Equal(t, "active", decodeBody(t, current)["status"])
	})

	t.Run("unknown source still answers 200", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(t, http.MethodPost, "/api/webhooks/midtrans", uuid.Nil, notification("src-unknown"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unpaid source still answers 200", func(t *testing.T) {
		ts := newTestServer(t)
		userID := uuid.New()
		_, sourceID := ts.startCheckout(t, userID)

		w := ts.do(t, http.MethodPost, "/api/webhooks/midtrans", uuid.Nil, notification(sourceID))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("incomplete notification rejected", func(t *testing.T) {
		ts := newTestServer(t)
		w := ts.do(t, http.MethodPost, "/api/webhooks/midtrans", uuid.Nil, map[string]any{
			"order_id": "src-1",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRecordPaymentEndpoint(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()
	payerID := uuid.New()

	w := ts.do(t, http.MethodPost, "/api/payments", userID, map[string]any{
		"user_id":      payerID,
		"amount_cents": 5000,
		"method":       "cash",
		"reference":    "rcpt-001",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, float64(5000), body["credit_cents"])
	assert.Equal(t, float64(-5000), body["running_balance_cents"])

	t.Run("duplicate reference conflicts", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/payments", userID, map[string]any{
			"user_id":      payerID,
			"amount_cents": 5000,
			"method":       "cash",
			"reference":    "rcpt-001",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestCancelEndpoint(t *testing.T) {
	ts := newTestServer(t)
	userID := uuid.New()

	subscriptionID, _ := ts.startCheckout(t, userID)

	w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/subscriptions/%s/cancel", subscriptionID), userID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("stranger cannot cancel", func(t *testing.T) {
		other := uuid.New()
		otherSub, _ := ts.startCheckout(t, other)
		w := ts.do(t, http.MethodPost, fmt.Sprintf("/api/subscriptions/%s/cancel", otherSub), userID, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
