package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakotapp/hakot/internal/domain"
	"github.com/hakotapp/hakot/internal/service"
)

func TestRecordPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("credits the ledger", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()

		entry, err := env.ledger.RecordPayment(ctx, service.RecordPaymentParams{
			UserID:      userID,
			AmountCents: 5000,
			Method:      domain.MethodCash,
			Reference:   "receipt-0042",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5000), entry.CreditCents)
		assert.Equal(t, int64(-5000), entry.RunningBalanceCents)
	})

	t.Run("rejects a duplicate reference", func(t *testing.T) {
		env := newTestEnv(t)
		userID := uuid.New()

		params := service.RecordPaymentParams{
			UserID:      userID,
			AmountCents: 5000,
			Method:      domain.MethodBankTransfer,
			Reference:   "transfer-7",
		}
		_, err := env.ledger.RecordPayment(ctx, params)
		require.NoError(t, err)

		_, err = env.ledger.RecordPayment(ctx, params)
		assert.ErrorIs(t, err, service.ErrDuplicateReference)

		entries, err := env.ledger.Entries(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		env := newTestEnv(t)

		for _, amount := range []int64{0, -100} {
			_, err := env.ledger.RecordPayment(ctx, service.RecordPaymentParams{
				UserID:      uuid.New(),
				AmountCents: amount,
				Method:      domain.MethodCash,
				Reference:   "x",
			})
			assert.ErrorIs(t, err, service.ErrInvalidAmount)
		}
	})

	t.Run("rejects the gateway method", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.ledger.RecordPayment(ctx, service.RecordPaymentParams{
			UserID:      uuid.New(),
			AmountCents: 100,
			Method:      domain.MethodGateway,
			Reference:   "x",
		})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	})
}

func TestLedgerRunningBalance(t *testing.T) {
	// Invoice debit followed by a matching credit settles to zero, and
	// every stored running balance equals the replayed prefix sum.
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := env.store.Append(ctx, domain.AppendEntryParams{
		UserID: userID, Date: base, Description: "Invoice", Reference: "inv-1", DebitCents: 19900,
	})
	require.NoError(t, err)
	_, err = env.store.Append(ctx, domain.AppendEntryParams{
		UserID: userID, Date: base.Add(time.Hour), Description: "Payment", Reference: "pay-1", CreditCents: 19900,
	})
	require.NoError(t, err)

	entries, err := env.ledger.Entries(ctx, userID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(19900), entries[0].RunningBalanceCents)
	assert.Equal(t, int64(0), entries[1].RunningBalanceCents)

	var replayed int64
	for _, e := range entries {
		replayed = replayed - e.CreditCents + e.DebitCents
		assert.Equal(t, e.RunningBalanceCents, replayed)
	}

	balance, err := env.ledger.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestLedgerRejectsBackdatedEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	now := time.Now()
	_, err := env.store.Append(ctx, domain.AppendEntryParams{
		UserID: userID, Date: now, Description: "Invoice", DebitCents: 1000,
	})
	require.NoError(t, err)

	_, err = env.store.Append(ctx, domain.AppendEntryParams{
		UserID: userID, Date: now.Add(-24 * time.Hour), Description: "Late payment", CreditCents: 1000,
	})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}
