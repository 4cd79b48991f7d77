package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/telemetry"
)

// LedgerService exposes the append-only financial record. Gateway credits
// arrive through the confirmation commit; this service handles
// operator-recorded payments and reads.
type LedgerService interface {
	// RecordPayment appends a credit for a cash or bank-transfer payment
	// received outside the gateway. The reference deduplicates retries of
	// the same physical payment.
	RecordPayment(ctx context.Context, params RecordPaymentParams) (*domain.LedgerEntry, error)

	// Entries returns the user's full ledger in (date, entry id) order.
	Entries(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error)

	// Balance returns the user's current balance. Positive means the user
	// owes money.
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
}

// RecordPaymentParams contains parameters for an operator-recorded payment.
type RecordPaymentParams struct {
	UserID      uuid.UUID
	AmountCents int64
	Method      domain.PaymentMethod
	Reference   string
	Date        time.Time
	Description string
}

type ledgerService struct {
	ledger  domain.LedgerStore
	metrics *telemetry.BusinessMetrics
	logger  *slog.Logger
}

// NewLedgerService creates a ledger service.
func NewLedgerService(ledger domain.LedgerStore, metrics *telemetry.BusinessMetrics, logger *slog.Logger) LedgerService {
	return &ledgerService{
		ledger:  ledger,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *ledgerService) RecordPayment(ctx context.Context, params RecordPaymentParams) (*domain.LedgerEntry, error) {
	if params.AmountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if params.Method != domain.MethodCash && params.Method != domain.MethodBankTransfer {
		return nil, domain.Invalid("ledger.record", "method must be cash or bank_transfer")
	}
	if params.Reference == "" {
		return nil, domain.Invalid("ledger.record", "reference is required")
	}

	date := params.Date
	if date.IsZero() {
		date = time.Now()
	}
	description := params.Description
	if description == "" {
		description = "Payment received (" + string(params.Method) + ")"
	}

	entry, err := s.ledger.Append(ctx, domain.AppendEntryParams{
		UserID:      params.UserID,
		Date:        date,
		Description: description,
		Reference:   params.Reference,
		CreditCents: params.AmountCents,
	})
	if err != nil {
		if domain.IsCode(err, domain.ECONFLICT) {
			if s.metrics != nil {
				s.metrics.LedgerConflicts.Inc()
			}
			return nil, ErrDuplicateReference
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.LedgerEntries.WithLabelValues("credit").Inc()
		s.metrics.RevenueCents.WithLabelValues(string(params.Method)).Add(float64(params.AmountCents))
	}
	s.logger.Info("payment recorded",
		"user_id", params.UserID,
		"amount_cents", params.AmountCents,
		"method", params.Method,
		"reference", params.Reference,
	)
	return entry, nil
}

func (s *ledgerService) Entries(ctx context.Context, userID uuid.UUID) ([]domain.LedgerEntry, error) {
	return s.ledger.Entries(ctx, userID)
}

func (s *ledgerService) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}
