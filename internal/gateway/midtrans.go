package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
)

// MidtransConfig contains configuration for the Midtrans provider.
type MidtransConfig struct {
	// ServerKey is the Midtrans merchant server key.
	ServerKey string

	// Production selects the live environment; sandbox otherwise.
	Production bool
}

// MidtransProvider implements Provider using Midtrans Snap for checkout
// creation and the Core API for status checks.
type MidtransProvider struct {
	serverKey string
	snap      snap.Client
	core      coreapi.Client
}

// Compile-time checks.
var (
	_ Provider             = (*MidtransProvider)(nil)
	_ NotificationVerifier = (*MidtransProvider)(nil)
)

// NewMidtransProvider creates a Midtrans-backed gateway provider.
func NewMidtransProvider(cfg MidtransConfig) (*MidtransProvider, error) {
	if cfg.ServerKey == "" {
		return nil, fmt.Errorf("midtrans: server key is required")
	}

	env := midtrans.Sandbox
	if cfg.Production {
		env = midtrans.Production
	}

	p := &MidtransProvider{serverKey: cfg.ServerKey}
	p.snap.New(cfg.ServerKey, env)
	p.core.New(cfg.ServerKey, env)
	return p, nil
}

// CreateSource creates a Snap transaction and returns its redirect URL as
// the checkout URL. The source id doubles as the Midtrans order id so that
// status checks and notifications correlate directly.
func (p *MidtransProvider) CreateSource(ctx context.Context, params CreateSourceParams) (*Source, error) {
	if params.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	// Midtrans gross amount is in whole currency units; an amount that is
	// not a whole multiple would be silently truncated below.
	if params.AmountCents%100 != 0 {
		return nil, ErrInvalidAmount
	}

	sourceID := "src-" + uuid.New().String()

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  sourceID,
			GrossAmt: params.AmountCents / 100,
		},
		CreditCard: &snap.CreditCardDetails{
			Secure: true,
		},
		EnabledPayments: snap.AllSnapPaymentType,
	}
	if params.RedirectURL != "" {
		req.Callbacks = &snap.Callbacks{Finish: params.RedirectURL}
	}
	if params.Description != "" {
		req.Items = &[]midtrans.ItemDetails{
			{
				ID:    params.Metadata["subscription_id"],
				Name:  params.Description,
				Price: params.AmountCents / 100,
				Qty:   1,
			},
		}
	}

	resp, midErr := p.snap.CreateTransaction(req)
	if midErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, midErr.GetMessage())
	}

	return &Source{
		ID:          sourceID,
		CheckoutURL: resp.RedirectURL,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}, nil
}

// GetStatus fetches the transaction status from the Midtrans Core API and
// maps it onto the provider-neutral source status.
func (p *MidtransProvider) GetStatus(ctx context.Context, sourceID string) (SourceStatus, error) {
	resp, midErr := p.core.CheckTransaction(sourceID)
	if midErr != nil {
		if midErr.StatusCode == 404 {
			return "", ErrSourceNotFound
		}
		return "", fmt.Errorf("%w: %s", ErrUnavailable, midErr.GetMessage())
	}

	return mapTransactionStatus(resp.TransactionStatus, resp.FraudStatus), nil
}

// VerifyNotification checks the Midtrans notification signature:
// SHA512(order_id + status_code + gross_amount + server_key).
func (p *MidtransProvider) VerifyNotification(n Notification) error {
	input := n.SourceID + n.StatusCode + n.GrossAmount + p.serverKey
	expected := fmt.Sprintf("%x", sha512.Sum512([]byte(input)))

	if subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// mapTransactionStatus translates Midtrans transaction/fraud status pairs
// into the provider-neutral status set.
func mapTransactionStatus(txStatus, fraudStatus string) SourceStatus {
	switch txStatus {
	case "settlement":
		return StatusPaid
	case "capture":
		// Card payments report capture; only accept counts as paid.
		if fraudStatus == "accept" || fraudStatus == "" {
			return StatusPaid
		}
		return StatusPending
	case "deny", "cancel":
		return StatusFailed
	case "expire":
		return StatusExpired
	default:
		return StatusPending
	}
}
