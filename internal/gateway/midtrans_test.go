package gateway

import (
	"context"
	"crypto/sha512"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMidtransProviderRequiresServerKey(t *testing.T) {
	_, err := NewMidtransProvider(MidtransConfig{})
	assert.Error(t, err)
}

func TestCreateSourceRejectsBadAmounts(t *testing.T) {
	p, err := NewMidtransProvider(MidtransConfig{ServerKey: "SB-Mid-server-test"})
	require.NoError(t, err)

	for _, amount := range []int64{0, -100, 19950, 99} {
		_, err := p.CreateSource(context.Background(), CreateSourceParams{
			AmountCents: amount,
			Currency:    "IDR",
		})
		assert.ErrorIs(t, err, ErrInvalidAmount, "amount %d", amount)
	}
}

func TestVerifyNotification(t *testing.T) {
	p, err := NewMidtransProvider(MidtransConfig{ServerKey: "SB-Mid-server-test"})
	require.NoError(t, err)

	n := Notification{
		SourceID:          "src-order-1",
		StatusCode:        "200",
		GrossAmount:       "199.00",
		TransactionStatus: "settlement",
	}
	n.SignatureKey = fmt.Sprintf("%x", sha512.Sum512([]byte(n.SourceID+n.StatusCode+n.GrossAmount+"SB-Mid-server-test")))

	assert.NoError(t, p.VerifyNotification(n))

	t.Run("tampered amount", func(t *testing.T) {
		bad := n
		bad.GrossAmount = "1.00"
		assert.ErrorIs(t, p.VerifyNotification(bad), ErrInvalidSignature)
	})

	t.Run("missing signature", func(t *testing.T) {
		bad := n
		bad.SignatureKey = ""
		assert.ErrorIs(t, p.VerifyNotification(bad), ErrInvalidSignature)
	})
}

func TestMapTransactionStatus(t *testing.T) {
	tests := []struct {
		txStatus    string
		fraudStatus string
		want        SourceStatus
	}{
		{"settlement", "", StatusPaid},
		{"capture", "accept", StatusPaid},
		{"capture", "", StatusPaid},
		{"capture", "challenge", StatusPending},
		{"deny", "", StatusFailed},
		{"cancel", "", StatusFailed},
		{"expire", "", StatusExpired},
		{"pending", "", StatusPending},
		{"authorize", "", StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.txStatus+"/"+tt.fraudStatus, func(t *testing.T) {
			assert.Equal(t, tt.want, mapTransactionStatus(tt.txStatus, tt.fraudStatus))
		})
	}
}

func TestSourceStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusPaid.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusExpired.Terminal())
}
