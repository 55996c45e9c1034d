package application_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

func TestClickSignupAndPaymentsCreditTheLockedAffiliate(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")

	click := f.svc.TrackClick(f.ctx, application.TrackClickInput{Code: "Creator", LandingURL: "/pricing", ClientIP: "203.0.113.9"})
	require.True(t, click.Tracked)
	assert.Equal(t, "https://platform.test/pricing", click.RedirectURL)

	f.setDay(2)
	signup, err := f.svc.RegisterSignup(f.ctx, application.Actor{SubjectID: "user-1"}, application.SignupInput{ClickID: click.ClickID})
	require.NoError(t, err)
	assert.Equal(t, aff.AffiliateID, signup.AffiliateID)
	assert.False(t, signup.Locked)

	stored, err := f.repos.Clicks.GetByID(f.ctx, click.ClickID)
	require.NoError(t, err)
	assert.True(t, stored.ConvertedToSignup)
	assert.Equal(t, "user-1", stored.ConvertedUserID)

	f.setDay(10)
	first := f.pay("evt-day-10", "user-1", "50.00")
	assert.True(t, first.CommissionCreated)
	assert.Equal(t, aff.AffiliateID, first.AffiliateID)

	user, err := f.repos.Users.GetByID(f.ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, aff.AffiliateID, user.ReferrerAffiliateID)
	ref, err := f.repos.Referrals.Get(f.ctx, aff.AffiliateID, "user-1")
	require.NoError(t, err)
	assert.True(t, ref.SubscriptionCommissionEnabled)
	assert.Equal(t, domain.ReferralSourceClick, ref.Source)
	assert.True(t, ref.FirstSeenAt.Equal(day0))

	f.setDay(200)
	second := f.pay("evt-day-200", "user-1", "50.00")
	assert.True(t, second.CommissionCreated)

	entries, err := f.svc.Ledger.List(f.ctx, aff.AffiliateID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "5.00", e.Amount.StringFixed(domain.MoneyScale))
		assert.Equal(t, domain.CommissionRuleSubscription, e.Rule)
	}
	assert.Equal(t, "10.00", f.available(aff.AffiliateID))
	assert.Contains(t, f.repos.Outbox.EventTypes(), domain.EventAffiliateReferralLocked)
	assert.Contains(t, f.repos.Outbox.EventTypes(), domain.EventAffiliateClickTracked)
}

func TestPaymentOutsideLockInWindowEarnsNothing(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.signup("user-1", "creator")

	f.setDay(40)
	res := f.pay("evt-late", "user-1", "100.00")
	assert.Equal(t, application.IngestStatusProcessed, res.Status)
	assert.False(t, res.CommissionCreated)
	assert.Empty(t, res.AffiliateID)

	user, err := f.repos.Users.GetByID(f.ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, user.IsLocked())
	ref, err := f.repos.Referrals.Get(f.ctx, aff.AffiliateID, "user-1")
	require.NoError(t, err)
	assert.False(t, ref.SubscriptionCommissionEnabled)
	assert.Equal(t, "0.00", f.available(aff.AffiliateID))

	unreconciled, err := f.svc.ListUnreconciledPayments(f.ctx, adminActor, 0)
	require.NoError(t, err)
	require.Len(t, unreconciled, 1)
	assert.Equal(t, "evt-late", unreconciled[0].ProviderEventID)
}

func TestLockedAttributionIgnoresLaterCodes(t *testing.T) {
	f := newFixture(t)
	first := f.approvedAffiliate("owner-1", "first")
	f.approvedAffiliate("owner-2", "second")

	f.signup("user-1", "first")
	f.setDay(1)
	f.pay("evt-1", "user-1", "20.00")

	again, err := f.svc.RegisterSignup(f.ctx, application.Actor{SubjectID: "user-1"}, application.SignupInput{ReferralCode: "second"})
	require.NoError(t, err)
	assert.Equal(t, first.AffiliateID, again.AffiliateID)
	assert.True(t, again.Locked)

	attr, err := f.svc.Resolver.Resolve(f.ctx, application.ResolveInput{UserID: "user-1", CandidateCode: "second"})
	require.NoError(t, err)
	assert.Equal(t, first.AffiliateID, attr.AffiliateID)
	assert.True(t, attr.Locked)
}

func TestFirstReferralWinsBeforeLock(t *testing.T) {
	f := newFixture(t)
	first := f.approvedAffiliate("owner-1", "first")
	f.approvedAffiliate("owner-2", "second")

	f.signup("user-1", "first")
	f.setDay(3)
	res := f.signup("user-1", "second")
	assert.Equal(t, first.AffiliateID, res.AffiliateID)
	require.NotNil(t, res.SignupAt)
	assert.True(t, res.SignupAt.Equal(day0), "signup time is immutable")
}

func TestSelfReferralAndUnknownCodesAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.approvedAffiliate("owner-1", "creator")

	self := f.signup("owner-1", "creator")
	assert.Empty(t, self.AffiliateID)

	unknown := f.signup("user-2", "no-such-code")
	assert.Empty(t, unknown.AffiliateID)

	malformed := f.signup("user-3", "!!")
	assert.Empty(t, malformed.AffiliateID)

	click := f.svc.TrackClick(f.ctx, application.TrackClickInput{Code: "missing", LandingURL: "https://evil.example/phish"})
	assert.False(t, click.Tracked)
	assert.Empty(t, click.ClickID)
	assert.Equal(t, "https://platform.test", click.RedirectURL)
}

func TestPendingAffiliateCodeDoesNotResolve(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ApplyAffiliate(f.ctx, application.Actor{SubjectID: "owner-1"}, "pending")
	require.NoError(t, err)

	res := f.signup("user-1", "pending")
	assert.Empty(t, res.AffiliateID)
}

func TestFreeReferralBonusIsPaidOnce(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.signup("user-1", "creator")

	f.setDay(3)
	actor := application.Actor{SubjectID: "user-1"}
	first, err := f.svc.RecordMilestone(f.ctx, actor, application.MilestoneInput{Milestone: "first_post"})
	require.NoError(t, err)
	assert.True(t, first.CommissionCreated)

	second, err := f.svc.RecordMilestone(f.ctx, actor, application.MilestoneInput{Milestone: "second_post"})
	require.NoError(t, err)
	assert.False(t, second.CommissionCreated)

	assert.Equal(t, "0.10", f.available(aff.AffiliateID))
	ref, err := f.repos.Referrals.Get(f.ctx, aff.AffiliateID, "user-1")
	require.NoError(t, err)
	assert.True(t, ref.FreeReferralEarned)
}

func TestFreeReferralOutsideWindow(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.signup("user-1", "creator")

	f.setDay(20)
	res, err := f.svc.RecordMilestone(f.ctx, application.Actor{SubjectID: "user-1"}, application.MilestoneInput{Milestone: "first_post"})
	require.NoError(t, err)
	assert.False(t, res.CommissionCreated)
	assert.Equal(t, "0.00", f.available(aff.AffiliateID))
}

func TestSignupForAnotherUserRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RegisterSignup(f.ctx, application.Actor{SubjectID: "user-1"}, application.SignupInput{UserID: "user-2"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	res, err := f.svc.RegisterSignup(f.ctx, adminActor, application.SignupInput{UserID: "user-2"})
	require.NoError(t, err)
	assert.Equal(t, "user-2", res.UserID)
}

func TestZeroAmountPaymentDoesNotLock(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.signup("user-1", "creator")

	f.setDay(2)
	res := f.pay("evt-zero", "user-1", "0.00")
	assert.Equal(t, application.IngestStatusProcessed, res.Status)
	assert.False(t, res.CommissionCreated)

	user, err := f.repos.Users.GetByID(f.ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, user.IsLocked())

	f.setDay(5)
	paid := f.pay("evt-real", "user-1", "20.00")
	assert.True(t, paid.CommissionCreated)
	assert.Equal(t, aff.AffiliateID, paid.AffiliateID)
	user, err = f.repos.Users.GetByID(f.ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, user.IsLocked())
}

func TestClickMetadataIsTruncatedOnRuneBoundary(t *testing.T) {
	f := newFixture(t)
	f.approvedAffiliate("owner-1", "creator")

	agent := "x" + strings.Repeat("é", 600)
	click := f.svc.TrackClick(f.ctx, application.TrackClickInput{Code: "creator", UserAgent: agent, LandingURL: "/pricing"})
	require.True(t, click.Tracked)

	stored, err := f.repos.Clicks.GetByID(f.ctx, click.ClickID)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(stored.UserAgent))
	assert.LessOrEqual(t, len(stored.UserAgent), 512)
	assert.True(t, strings.HasPrefix(agent, stored.UserAgent))
	assert.Equal(t, 511, len(stored.UserAgent))
}

func TestPaymentWithoutSignupIsNotAttributed(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")

	attr, err := f.svc.Resolver.Resolve(f.ctx, application.ResolveInput{UserID: "user-1", CandidateCode: "creator"})
	require.NoError(t, err)
	assert.Equal(t, aff.AffiliateID, attr.AffiliateID)

	f.setDay(1)
	res := f.pay("evt-no-signup", "user-1", "50.00")
	assert.False(t, res.CommissionCreated)
	_, err = f.repos.Users.GetByID(f.ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no signup row and no lock")
	assert.Equal(t, "0.00", f.available(aff.AffiliateID))
}
