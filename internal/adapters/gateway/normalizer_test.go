package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/affiliate-ledger/internal/domain"
)

func TestNormalizePaymentEvent(t *testing.T) {
	body := []byte(`{"id":" evt_1 ","type":"Invoice.Paid","data":{"user_id":"user-1","amount":19.99,"currency":"eur","kind":"Credits","occurred_at":"2026-02-01T10:00:00Z"}}`)
	in, ok, err := Normalize("Stripe", body)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "evt_1", in.ProviderEventID)
	assert.Equal(t, "stripe", in.Gateway)
	assert.Equal(t, "user-1", in.UserID)
	assert.Equal(t, "19.99", in.Amount.StringFixed(domain.MoneyScale))
	assert.Equal(t, "eur", in.Currency)
	assert.Equal(t, domain.PaymentKindCredits, in.Kind)
	assert.True(t, in.OccurredAt.Equal(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)))
}

func TestNormalizeIgnoresNonPaymentEvents(t *testing.T) {
	_, ok, err := Normalize("stripe", []byte(`{"id":"evt_2","type":"customer.updated","data":{}}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNormalizeRejectsBadBodies(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"type":"payment.succeeded","data":{"user_id":"u","amount":5}}`,
		`{"id":"evt_3","type":"payment.succeeded","data":{"user_id":"u","amount":"abc"}}`,
		`{"id":"evt_4","type":"payment.succeeded","data":{"user_id":"u","amount":5,"occurred_at":"yesterday"}}`,
	}
	for _, body := range bodies {
		_, ok, err := Normalize("stripe", []byte(body))
		assert.ErrorIs(t, err, domain.ErrInvalidInput, body)
		assert.False(t, ok, body)
	}
}
