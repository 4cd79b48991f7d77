package handler

import (
	"net/http"

	"github.com/hakotapp/hakot/internal/middleware"
	"github.com/hakotapp/hakot/internal/router"
)

// Deps bundles the handlers the route table needs.
type Deps struct {
	Subscriptions *SubscriptionHandler
	Payments      *PaymentHandler
	Webhooks      *WebhookHandler
}

// RegisterRoutes wires every endpoint onto the router.
func RegisterRoutes(r *router.Router, deps Deps) {
	// Authenticated resident API.
	api := r.Group(middleware.RequireUser)
	api.Post("/api/subscriptions", deps.Subscriptions.Create)
	api.Post("/api/subscriptions/{id}/payment", deps.Subscriptions.StartPayment)
	api.Post("/api/subscriptions/{id}/cancel", deps.Subscriptions.Cancel)
	api.Get("/api/subscriptions/current", deps.Subscriptions.Current)
	api.Post("/api/payments/confirm", deps.Payments.Confirm)
	api.Post("/api/payments", deps.Payments.Record)
	api.Get("/api/ledger", deps.Payments.Ledger)
	api.Get("/api/ledger/balance", deps.Payments.Balance)

	// Public.
	r.Get("/api/plans", deps.Subscriptions.Plans)

	// The gateway redirects the payer's browser here; there is no session.
	r.Get("/payments/return", deps.Payments.Return)

	// Authenticated by signature, not by user.
	r.Post("/api/webhooks/midtrans", deps.Webhooks.Midtrans)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}
