package handler

import (
	"errors"
	"net/http"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/gateway"
	"github.com/hakotapp/hakot/internal/middleware"
	"github.com/hakotapp/hakot/internal/service"
	"github.com/hakotapp/hakot/internal/telemetry"
)

// WebhookHandler receives asynchronous gateway notifications, the third
// completion trigger alongside the redirect return and the poller.
type WebhookHandler struct {
	verifier  gateway.NotificationVerifier
	confirmer service.ConfirmationService
	metrics   *telemetry.BusinessMetrics
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(verifier gateway.NotificationVerifier, confirmer service.ConfirmationService, metrics *telemetry.BusinessMetrics) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		confirmer: confirmer,
		metrics:   metrics,
	}
}

type midtransNotification struct {
	OrderID           string `json:"order_id" validate:"required"`
	StatusCode        string `json:"status_code" validate:"required"`
	GrossAmount       string `json:"gross_amount" validate:"required"`
	SignatureKey      string `json:"signature_key" validate:"required"`
	TransactionStatus string `json:"transaction_status" validate:"required"`
}

// Midtrans handles POST /api/webhooks/midtrans.
//
// Notifications are redelivered until the gateway sees a 2xx, so every
// outcome the service already knows how to handle answers 200, including
// confirmations that turn out to be duplicates or mismatches.
func (h *WebhookHandler) Midtrans(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLogger(r.Context())

	var n midtransNotification
	if err := DecodeJSON(r, &n); err != nil {
		ErrorResponse(w, r, err)
		return
	}

	err := h.verifier.VerifyNotification(gateway.Notification{
		SourceID:          n.OrderID,
		StatusCode:        n.StatusCode,
		GrossAmount:       n.GrossAmount,
		SignatureKey:      n.SignatureKey,
		TransactionStatus: n.TransactionStatus,
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.WebhookRejected.Inc()
		}
		logger.Warn("webhook signature rejected", "order_id", n.OrderID)
		ErrorResponse(w, r, domain.Unauthorized("webhook.midtrans", "Invalid notification signature"))
		return
	}

	if h.metrics != nil {
		h.metrics.WebhookReceived.WithLabelValues(n.TransactionStatus).Inc()
	}

	// The notification body is untrusted even with a valid signature;
	// Confirm re-fetches the status from the gateway before acting.
	_, err = h.confirmer.Confirm(r.Context(), service.ConfirmParams{
		SourceID: n.OrderID,
		Trigger:  service.TriggerWebhook,
	})
	switch {
	case err == nil:
	case errors.Is(err, service.ErrConfirmationMismatch):
		// Not paid (yet, or ever). Nothing to retry.
		logger.Info("webhook for unpaid source", "order_id", n.OrderID, "transaction_status", n.TransactionStatus)
	case errors.Is(err, service.ErrPaymentNotFound):
		logger.Warn("webhook for unknown source", "order_id", n.OrderID)
	default:
		// Transient failure. A non-2xx makes the gateway redeliver.
		ErrorResponse(w, r, err)
		return
	}

	JSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
