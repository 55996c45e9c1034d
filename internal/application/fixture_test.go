package application_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/affiliate-ledger/internal/adapters/memory"
	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

var day0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

var adminActor = application.Actor{SubjectID: "admin-1", Role: "admin", RequestID: "req-admin"}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	svc   *application.Service
	repos *memory.Repositories

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, mutate ...func(*application.Config)) *fixture {
	t.Helper()
	return newFixtureWithDeps(t, nil, mutate...)
}

// newFixtureWithDeps lets a test swap dependencies before the service is built.
func newFixtureWithDeps(t *testing.T, wrap func(*application.Dependencies), mutate ...func(*application.Config)) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), repos: memory.NewRepositories(), now: day0}
	cfg := application.Config{
		PublicBaseURL:           "https://platform.test",
		CommissionRatePercent:   decimal.NewFromInt(10),
		FreeReferralBonusAmount: decimal.RequireFromString("0.10"),
		LockInWindowDays:        30,
		FreeReferralWindowDays:  14,
		MinimumPayoutAmount:     decimal.NewFromInt(50),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	deps := application.Dependencies{
		Config:      cfg,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:       f.clock,
		EventStore:  f.repos.Events,
		Users:       f.repos.Users,
		Affiliates:  f.repos.Affiliates,
		Links:       f.repos.Links,
		Clicks:      f.repos.Clicks,
		Referrals:   f.repos.Referrals,
		Payments:    f.repos.Payments,
		Ledger:      f.repos.Ledger,
		Payouts:     f.repos.Payouts,
		AuditLogs:   f.repos.AuditLogs,
		Idempotency: f.repos.Idempotency,
		Outbox:      f.repos.Outbox,
	}
	if wrap != nil {
		wrap(&deps)
	}
	f.svc = application.NewService(deps)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) setDay(days int) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = day0.Add(time.Duration(days) * 24 * time.Hour)
	return f.now
}

// approvedAffiliate applies for code as ownerID and approves the application.
func (f *fixture) approvedAffiliate(ownerID, code string) domain.Affiliate {
	f.t.Helper()
	aff, err := f.svc.ApplyAffiliate(f.ctx, application.Actor{SubjectID: ownerID}, code)
	require.NoError(f.t, err)
	aff, err = f.svc.ReviewAffiliate(f.ctx, adminActor, aff.AffiliateID, true, "")
	require.NoError(f.t, err)
	return aff
}

func (f *fixture) signup(userID, code string) application.SignupResult {
	f.t.Helper()
	res, err := f.svc.RegisterSignup(f.ctx, application.Actor{SubjectID: userID}, application.SignupInput{ReferralCode: code})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) pay(eventID, userID, amount string) application.IngestResult {
	f.t.Helper()
	res, err := f.svc.Ingestion.Ingest(f.ctx, application.IngestInput{
		ProviderEventID: eventID,
		Gateway:         "stripe",
		UserID:          userID,
		Amount:          decimal.RequireFromString(amount),
		Currency:        "usd",
		OccurredAt:      f.clock(),
	})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) available(affiliateID string) string {
	f.t.Helper()
	balance, err := f.svc.Ledger.BalanceOf(f.ctx, affiliateID)
	require.NoError(f.t, err)
	return balance.Available.StringFixed(domain.MoneyScale)
}

// fund gives the affiliate an available balance of amount by having a fresh
// referred user pay ten times that inside the window.
func (f *fixture) fund(aff domain.Affiliate, userID, amount string) {
	f.t.Helper()
	f.signup(userID, aff.Code)
	gross := decimal.RequireFromString(amount).Mul(decimal.NewFromInt(10))
	res := f.pay("evt-fund-"+userID, userID, gross.StringFixed(domain.MoneyScale))
	require.True(f.t, res.CommissionCreated)
}
