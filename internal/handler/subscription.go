package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/middleware"
	"github.com/hakotapp/hakot/internal/service"
)

// PollStarter spawns the background fallback poll for a new checkout.
type PollStarter interface {
	Start(ctx context.Context, intent domain.PendingIntent)
}

// SubscriptionHandler serves the subscription endpoints.
type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	poller        PollStarter

	// watchCtx outlives individual requests; background polls must not die
	// with the request that started them.
	watchCtx context.Context
}

// NewSubscriptionHandler creates a subscription handler. watchCtx is the
// process-lifetime context that bounds background polls.
func NewSubscriptionHandler(subscriptions service.SubscriptionService, poller PollStarter, watchCtx context.Context) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		poller:        poller,
		watchCtx:      watchCtx,
	}
}

type createSubscriptionRequest struct {
	PlanID        uuid.UUID `json:"plan_id" validate:"required"`
	PaymentMethod string    `json:"payment_method" validate:"required,oneof=gateway cash bank_transfer"`
}

type createSubscriptionResponse struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	InvoiceID      uuid.UUID `json:"invoice_id"`
	AmountCents    int64     `json:"amount_cents"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
}

// Create handles POST /api/subscriptions.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSubscriptionRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	receipt, err := h.subscriptions.RequestSubscription(r.Context(), service.RequestSubscriptionParams{
		UserID: middleware.GetUserID(r.Context()),
		PlanID: req.PlanID,
		Method: domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	JSONResponse(w, http.StatusCreated, createSubscriptionResponse{
		SubscriptionID: receipt.SubscriptionID,
		InvoiceID:      receipt.InvoiceID,
		AmountCents:    receipt.AmountCents,
		Currency:       receipt.Currency,
		Status:         string(domain.SubscriptionPending),
	})
}

type startPaymentResponse struct {
	SourceID    string `json:"source_id"`
	CheckoutURL string `json:"checkout_url"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// StartPayment handles POST /api/subscriptions/{id}/payment.
func (h *SubscriptionHandler) StartPayment(w http.ResponseWriter, r *http.Request) {
	subscriptionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("", "Subscription id is not a valid uuid"))
		return
	}
	userID := middleware.GetUserID(r.Context())

	session, err := h.subscriptions.StartPayment(r.Context(), userID, subscriptionID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	// The poll races the payer's redirect; whichever confirms first wins.
	h.poller.Start(h.watchCtx, domain.PendingIntent{
		UserID:         userID,
		SourceID:       session.SourceID,
		SubscriptionID: subscriptionID,
		CreatedAt:      time.Now(),
	})

	JSONResponse(w, http.StatusCreated, startPaymentResponse{
		SourceID:    session.SourceID,
		CheckoutURL: session.CheckoutURL,
		AmountCents: session.AmountCents,
		Currency:    session.Currency,
	})
}

type subscriptionResponse struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PlanID         uuid.UUID `json:"plan_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// Current handles GET /api/subscriptions/current.
func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subscriptions.Current(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if sub == nil {
		ErrorResponse(w, r, domain.NotFound("", "subscription", "current"))
		return
	}

	JSONResponse(w, http.StatusOK, subscriptionResponse{
		SubscriptionID: sub.ID,
		PlanID:         sub.PlanID,
		Status:         string(sub.Status),
		CreatedAt:      sub.CreatedAt,
	})
}

// Cancel handles POST /api/subscriptions/{id}/cancel.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	subscriptionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("", "Subscription id is not a valid uuid"))
		return
	}

	if err := h.subscriptions.Cancel(r.Context(), middleware.GetUserID(r.Context()), subscriptionID); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, map[string]string{"status": string(domain.SubscriptionCancelled)})
}

type planResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
}

// Plans handles GET /api/plans.
func (h *SubscriptionHandler) Plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.subscriptions.ActivePlans(r.Context())
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, planResponse{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			PriceCents:  p.PriceCents,
			Currency:    p.Currency,
		})
	}
	JSONResponse(w, http.StatusOK, map[string]any{"plans": out})
}
