package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionPayout(t *testing.T) {
	cases := []struct {
		from, to PayoutStatus
		ok       bool
	}{
		{PayoutStatusPending, PayoutStatusApproved, true},
		{PayoutStatusPending, PayoutStatusRejected, true},
		{PayoutStatusApproved, PayoutStatusPaid, true},
		{PayoutStatusPending, PayoutStatusPaid, false},
		{PayoutStatusApproved, PayoutStatusRejected, false},
		{PayoutStatusRejected, PayoutStatusApproved, false},
		{PayoutStatusPaid, PayoutStatusPending, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransitionPayout(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, PayoutStatusPaid.Terminal())
	assert.True(t, PayoutStatusRejected.Terminal())
	assert.False(t, PayoutStatusApproved.Terminal())
}

func TestPayoutTransitionValidate(t *testing.T) {
	at := time.Now()
	err := PayoutTransition{PayoutRequestID: "pr-1", From: PayoutStatusPaid, To: PayoutStatusPending, At: at}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	err = PayoutTransition{From: PayoutStatusPending, To: PayoutStatusApproved, At: at}.Validate()
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.NoError(t, PayoutTransition{PayoutRequestID: "pr-1", From: PayoutStatusPending, To: PayoutStatusApproved, At: at}.Validate())
}

func TestPayoutFee(t *testing.T) {
	fee, net := PayoutFee(decimal.NewFromInt(100), decimal.Zero)
	assert.True(t, fee.IsZero())
	assert.Equal(t, "100.00", net.StringFixed(MoneyScale))

	fee, net = PayoutFee(decimal.RequireFromString("55.55"), decimal.RequireFromString("2.5"))
	assert.Equal(t, "1.39", fee.StringFixed(MoneyScale))
	assert.Equal(t, "54.16", net.StringFixed(MoneyScale))
}

func TestNewBalanceSubtractsDebitsAndApprovedPayouts(t *testing.T) {
	b := NewBalance("aff-1", decimal.NewFromInt(80), decimal.NewFromInt(5), decimal.NewFromInt(50), decimal.Zero, time.Now())
	assert.Equal(t, "30.00", b.Available.StringFixed(MoneyScale))

	held := NewBalance("aff-1", decimal.NewFromInt(100), decimal.Zero, decimal.NewFromInt(20), decimal.NewFromInt(60), time.Now())
	assert.Equal(t, "20.00", held.Available.StringFixed(MoneyScale))
	assert.Equal(t, "60.00", held.Reserved.StringFixed(MoneyScale))
	assert.Equal(t, "80.00", b.TotalEarned.StringFixed(MoneyScale))
	assert.Equal(t, "5.00", b.PendingEarned.StringFixed(MoneyScale))
	assert.Equal(t, "USD", b.Currency)
}

func TestPayoutValidationErrorUnwrapsToInvalidInput(t *testing.T) {
	var err error = &PayoutValidationError{Reason: "amount exceeds available balance", Balance: decimal.NewFromInt(30), MinimumAmount: decimal.NewFromInt(50)}
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "balance 30.00")
	assert.Contains(t, err.Error(), "minimum 50.00")
}

func TestAffiliateCanRefer(t *testing.T) {
	aff := Affiliate{AffiliateID: "aff-1", UserID: "owner-1"}
	assert.ErrorIs(t, aff.CanRefer("owner-1"), ErrSelfReferral)
	assert.NoError(t, aff.CanRefer("user-2"))
}
