package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/middleware"
	"github.com/hakotapp/hakot/internal/service"
)

// PaymentHandler serves payment confirmation and the ledger endpoints.
type PaymentHandler struct {
	confirmer service.ConfirmationService
	ledger    service.LedgerService
}

// NewPaymentHandler creates a payment handler.
func NewPaymentHandler(confirmer service.ConfirmationService, ledger service.LedgerService) *PaymentHandler {
	return &PaymentHandler{
		confirmer: confirmer,
		ledger:    ledger,
	}
}

type confirmRequest struct {
	SourceID       string    `json:"source_id" validate:"required"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
}

type confirmResponse struct {
	Success            bool   `json:"success"`
	Duplicate          bool   `json:"duplicate"`
	SubscriptionID     string `json:"subscription_id"`
	SubscriptionStatus string `json:"subscription_status"`
}

// Confirm handles POST /api/payments/confirm.
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	activation, err := h.confirmer.Confirm(r.Context(), service.ConfirmParams{
		SourceID:       req.SourceID,
		SubscriptionID: req.SubscriptionID,
		Trigger:        service.TriggerRedirect,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	JSONResponse(w, http.StatusOK, confirmResponse{
		Success:            true,
		Duplicate:          activation.Duplicate,
		SubscriptionID:     activation.SubscriptionID.String(),
		SubscriptionStatus: string(activation.Status),
	})
}

// Return handles GET /payments/return, the gateway's browser redirect
// after checkout. The query carries the order id and the gateway's claimed
// outcome; the claim is only a hint and Confirm re-verifies it.
func (h *PaymentHandler) Return(w http.ResponseWriter, r *http.Request) {
	sourceID := r.URL.Query().Get("order_id")
	if sourceID == "" {
		ErrorResponse(w, r, domain.Invalid("", "Missing order_id"))
		return
	}

	// Midtrans appends transaction_status to the finish URL. Anything
	// other than a success claim gets a friendly retry message without a
	// gateway round trip.
	claimed := r.URL.Query().Get("transaction_status")
	if claimed != "" && claimed != "settlement" && claimed != "capture" {
		JSONResponse(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Payment not completed. You can retry from the app.",
		})
		return
	}

	activation, err := h.confirmer.Confirm(r.Context(), service.ConfirmParams{
		SourceID: sourceID,
		Trigger:  service.TriggerRedirect,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]any{
		"success":             true,
		"subscription_id":     activation.SubscriptionID,
		"subscription_status": activation.Status,
	})
}

type recordPaymentRequest struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	AmountCents int64     `json:"amount_cents" validate:"required,gt=0"`
	Method      string    `json:"method" validate:"required,oneof=cash bank_transfer"`
	Reference   string    `json:"reference" validate:"required"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}

// Record handles POST /api/payments, an operator recording a payment
// received outside the gateway.
func (h *PaymentHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	entry, err := h.ledger.RecordPayment(r.Context(), service.RecordPaymentParams{
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Method:      domain.PaymentMethod(req.Method),
		Reference:   req.Reference,
		Date:        req.Date,
		Description: req.Description,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSONResponse(w, http.StatusCreated, toLedgerEntry(entry))
}

type ledgerEntryResponse struct {
	EntryID             int64     `json:"entry_id"`
	Date                time.Time `json:"date"`
	Description         string    `json:"description"`
	Reference           string    `json:"reference,omitempty"`
	DebitCents          int64     `json:"debit_cents"`
	CreditCents         int64     `json:"credit_cents"`
	RunningBalanceCents int64     `json:"running_balance_cents"`
}

func toLedgerEntry(e *domain.LedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		EntryID:             e.EntryID,
		Date:                e.Date,
		Description:         e.Description,
		Reference:           e.Reference,
		DebitCents:          e.DebitCents,
		CreditCents:         e.CreditCents,
		RunningBalanceCents: e.RunningBalanceCents,
	}
}

// Ledger handles GET /api/ledger.
func (h *PaymentHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	entries, err := h.ledger.Entries(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	out := make([]ledgerEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toLedgerEntry(&entries[i]))
	}
	JSONResponse(w, http.StatusOK, map[string]any{"entries": out})
}

// Balance handles GET /api/ledger/balance.
func (h *PaymentHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}
	JSONResponse(w, http.StatusOK, map[string]int64{"balance_cents": balance})
}
