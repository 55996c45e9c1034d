package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

func TestPayoutBelowBalanceIsRejectedWithContext(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.fund(aff, "user-1", "30.00")

	owner := application.Actor{SubjectID: "owner-1"}
	_, err := f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(50))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	var verr *domain.PayoutValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "30.00", verr.Balance.StringFixed(domain.MoneyScale))
	assert.Equal(t, "50.00", verr.MinimumAmount.StringFixed(domain.MoneyScale))

	rows, err := f.svc.Payouts.ListForActor(f.ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPayoutAmountValidation(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.fund(aff, "user-1", "100.00")

	owner := application.Actor{SubjectID: "owner-1"}
	for _, amount := range []string{"0", "-5", "49.99", "60.001", "100.01"} {
		_, err := f.svc.Payouts.Request(f.ctx, owner, decimal.RequireFromString(amount))
		var verr *domain.PayoutValidationError
		assert.True(t, errors.As(err, &verr), amount)
	}
}

func TestPayoutLifecycleDebitsOnPayment(t *testing.T) {
	f := newFixture(t, func(c *application.Config) { c.PayoutFeePercent = decimal.RequireFromString("2.5") })
	aff := f.approvedAffiliate("owner-1", "creator")
	f.fund(aff, "user-1", "100.00")

	owner := application.Actor{SubjectID: "owner-1", RequestID: "req-1"}
	req, err := f.svc.Payouts.Request(f.ctx, owner, decimal.RequireFromString("60.00"))
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, req.Status)
	assert.Equal(t, "1.50", req.Fee.StringFixed(domain.MoneyScale))
	assert.Equal(t, "58.50", req.NetAmount.StringFixed(domain.MoneyScale))
	assert.Equal(t, "100.00", f.available(aff.AffiliateID), "requesting reserves nothing")

	_, err = f.svc.Payouts.Approve(f.ctx, owner, req.PayoutRequestID, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Payouts.MarkPaid(f.ctx, adminActor, req.PayoutRequestID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	approved, err := f.svc.Payouts.Approve(f.ctx, adminActor, req.PayoutRequestID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, "40.00", f.available(aff.AffiliateID), "approved amount is held")

	paid, err := f.svc.Payouts.MarkPaid(f.ctx, adminActor, req.PayoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, "40.00", f.available(aff.AffiliateID))

	stored, err := f.repos.Affiliates.GetByID(f.ctx, aff.AffiliateID)
	require.NoError(t, err)
	assert.Equal(t, "60.00", stored.TotalWithdrawn.StringFixed(domain.MoneyScale))

	_, err = f.svc.Payouts.Reject(f.ctx, adminActor, req.PayoutRequestID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	actions := make([]string, 0)
	for _, row := range f.repos.AuditLogs.List(req.PayoutRequestID) {
		actions = append(actions, row.Action)
	}
	assert.Equal(t, []string{"payout.approved", "payout.paid"}, actions)

	events := f.repos.Outbox.EventTypes()
	assert.Contains(t, events, domain.EventAffiliatePayoutRequested)
	assert.Contains(t, events, domain.EventAffiliatePayoutApproved)
	assert.Contains(t, events, domain.EventAffiliatePayoutPaid)
}

func TestRejectRequiresNotesAndPendingStatus(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.fund(aff, "user-1", "80.00")

	req, err := f.svc.Payouts.Request(f.ctx, application.Actor{SubjectID: "owner-1"}, decimal.NewFromInt(50))
	require.NoError(t, err)

	_, err = f.svc.Payouts.Reject(f.ctx, adminActor, req.PayoutRequestID, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	rejected, err := f.svc.Payouts.Reject(f.ctx, adminActor, req.PayoutRequestID, "missing tax form")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusRejected, rejected.Status)
	assert.Equal(t, "missing tax form", rejected.AdminNotes)
	assert.Equal(t, "80.00", f.available(aff.AffiliateID))

	_, err = f.svc.Payouts.Approve(f.ctx, adminActor, req.PayoutRequestID, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestUnknownPayoutIDIsInvalidInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Payouts.Approve(f.ctx, adminActor, "pr_missing", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.ErrorIs(t, err, domain.ErrUnknownReference)
}

func TestApproveRechecksBalanceAgainstApprovedPayouts(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.fund(aff, "user-1", "100.00")

	owner := application.Actor{SubjectID: "owner-1"}
	first, err := f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(60))
	require.NoError(t, err)
	second, err := f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(60))
	require.NoError(t, err, "pending requests hold nothing")

	_, err = f.svc.Payouts.Approve(f.ctx, adminActor, first.PayoutRequestID, "")
	require.NoError(t, err)
	assert.Equal(t, "40.00", f.available(aff.AffiliateID))

	_, err = f.svc.Payouts.Approve(f.ctx, adminActor, second.PayoutRequestID, "")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	stuck, err := f.repos.Payouts.GetByID(f.ctx, second.PayoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, stuck.Status)
	assert.Nil(t, stuck.ApprovedAt)

	_, err = f.svc.Payouts.MarkPaid(f.ctx, adminActor, first.PayoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, "40.00", f.available(aff.AffiliateID), "paying moves the hold into a debit")

	balance, err := f.svc.Ledger.BalanceOf(f.ctx, aff.AffiliateID)
	require.NoError(t, err)
	assert.True(t, balance.Reserved.IsZero())
	assert.Equal(t, "60.00", balance.TotalDebited.StringFixed(domain.MoneyScale))

	// More earnings arrive, and the rejected-at-approve request now fits.
	f.fund(aff, "user-2", "30.00")
	approved, err := f.svc.Payouts.Approve(f.ctx, adminActor, second.PayoutRequestID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusApproved, approved.Status)
	assert.Equal(t, "10.00", f.available(aff.AffiliateID))
}

func TestApprovedPayoutsNeverExceedBalance(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.fund(aff, "user-1", "60.00")

	owner := application.Actor{SubjectID: "owner-1"}
	ids := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		req, err := f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(50))
		require.NoError(t, err)
		ids = append(ids, req.PayoutRequestID)
	}

	approved := 0
	for _, id := range ids {
		if _, err := f.svc.Payouts.Approve(f.ctx, adminActor, id, ""); err == nil {
			approved++
		}
	}
	assert.Equal(t, 1, approved)
	assert.Equal(t, "10.00", f.available(aff.AffiliateID))
	assert.False(t, decimal.RequireFromString(f.available(aff.AffiliateID)).IsNegative())
}

func TestPayoutRequestIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.fund(aff, "user-1", "100.00")

	owner := application.Actor{SubjectID: "owner-1", IdempotencyKey: "key-1"}
	first, err := f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(50))
	require.NoError(t, err)
	replay, err := f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, first.PayoutRequestID, replay.PayoutRequestID)

	_, err = f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(70))
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	rows, err := f.svc.Payouts.ListForActor(f.ctx, owner)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

type flakyPayouts struct {
	ports.PayoutRepository
	failures int
}

func (p *flakyPayouts) Create(ctx context.Context, row domain.PayoutRequest) error {
	if p.failures > 0 {
		p.failures--
		return errors.New("connection reset")
	}
	return p.PayoutRepository.Create(ctx, row)
}

func TestPayoutRequestRetryAfterStoreFailureReusesKey(t *testing.T) {
	flaky := &flakyPayouts{failures: 1}
	f := newFixtureWithDeps(t, func(d *application.Dependencies) {
		flaky.PayoutRepository = d.Payouts
		d.Payouts = flaky
	})
	aff := f.approvedAffiliate("owner-1", "creator")
	f.fund(aff, "user-1", "100.00")

	owner := application.Actor{SubjectID: "owner-1", IdempotencyKey: "key-retry"}
	_, err := f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(50))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrConflict)

	created, err := f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutStatusPending, created.Status)

	replay, err := f.svc.Payouts.Request(f.ctx, owner, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, created.PayoutRequestID, replay.PayoutRequestID)

	rows, err := f.svc.Payouts.ListForActor(f.ctx, owner)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestPayoutRequiresApprovedAffiliate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Payouts.Request(f.ctx, application.Actor{SubjectID: "stranger"}, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.ApplyAffiliate(f.ctx, application.Actor{SubjectID: "owner-1"}, "pending")
	require.NoError(t, err)
	_, err = f.svc.Payouts.Request(f.ctx, application.Actor{SubjectID: "owner-1"}, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Payouts.ListPending(f.ctx, application.Actor{SubjectID: "owner-1"}, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestApplyAffiliateRules(t *testing.T) {
	f := newFixture(t)
	owner := application.Actor{SubjectID: "owner-1"}

	_, err := f.svc.ApplyAffiliate(f.ctx, owner, "a b")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	aff, err := f.svc.ApplyAffiliate(f.ctx, owner, "Creator")
	require.NoError(t, err)
	assert.Equal(t, "creator", aff.Code)
	assert.Equal(t, domain.AffiliateStatusPending, aff.Status)

	_, err = f.svc.ApplyAffiliate(f.ctx, owner, "other")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.ReviewAffiliate(f.ctx, owner, aff.AffiliateID, true, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.ReviewAffiliate(f.ctx, adminActor, "aff_missing", true, "")
	assert.ErrorIs(t, err, domain.ErrUnknownReference)

	dash, err := f.svc.GetDashboard(f.ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "50.00", dash.MinimumPayout.StringFixed(domain.MoneyScale))
	assert.Zero(t, dash.TotalClicks)
}
