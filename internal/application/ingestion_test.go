package application_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

func TestIngestIsIdempotentPerProviderEvent(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.signup("user-1", "creator")

	first := f.pay("evt-1", "user-1", "50.00")
	require.True(t, first.CommissionCreated)

	again := f.pay("evt-1", "user-1", "50.00")
	assert.True(t, again.Duplicate)
	assert.Equal(t, application.IngestStatusDuplicate, again.Status)
	assert.False(t, again.CommissionCreated)

	entries, err := f.svc.Ledger.List(f.ctx, aff.AffiliateID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "5.00", f.available(aff.AffiliateID))
}

func TestConcurrentIngestOfOneEventProcessesOnce(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.signup("user-1", "creator")

	const workers = 16
	results := make([]application.IngestResult, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Ingestion.Ingest(f.ctx, application.IngestInput{
				ProviderEventID: "evt-race",
				Gateway:         "stripe",
				UserID:          "user-1",
				Amount:          decimal.NewFromInt(50),
			})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	processed := 0
	for _, res := range results {
		if res.Status == application.IngestStatusProcessed {
			processed++
		}
	}
	assert.Equal(t, 1, processed)
	assert.Equal(t, "5.00", f.available(aff.AffiliateID))
}

func TestIngestWithoutReferralRecordsPaymentOnly(t *testing.T) {
	f := newFixture(t)
	res := f.pay("evt-organic", "organic-user", "30.00")
	assert.Equal(t, application.IngestStatusProcessed, res.Status)
	assert.False(t, res.CommissionCreated)

	payment, err := f.repos.Payments.GetByProviderEventID(f.ctx, "evt-organic")
	require.NoError(t, err)
	assert.Equal(t, "USD", payment.Currency)
	assert.Equal(t, domain.PaymentKindSubscription, payment.Kind)
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	cases := []application.IngestInput{
		{UserID: "user-1", Amount: decimal.NewFromInt(1)},
		{ProviderEventID: "evt-1", Amount: decimal.NewFromInt(1)},
		{ProviderEventID: "evt-1", UserID: "user-1", Amount: decimal.NewFromInt(-1)},
		{ProviderEventID: "evt-1", UserID: "user-1", Amount: decimal.NewFromInt(1), Kind: "refund"},
	}
	for _, in := range cases {
		_, err := f.svc.Ingestion.Ingest(f.ctx, in)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
	// Rejected input never reaches the event store.
	res := f.pay("evt-1", "user-1", "10.00")
	assert.False(t, res.Duplicate)
}

func TestHoldPeriodDelaysAvailability(t *testing.T) {
	f := newFixture(t, func(c *application.Config) { c.CommissionHoldDays = 7 })
	aff := f.approvedAffiliate("owner-1", "creator")
	f.signup("user-1", "creator")
	f.pay("evt-1", "user-1", "100.00")

	balance, err := f.svc.Ledger.BalanceOf(f.ctx, aff.AffiliateID)
	require.NoError(t, err)
	assert.True(t, balance.Available.IsZero())
	assert.Equal(t, "10.00", balance.PendingEarned.StringFixed(domain.MoneyScale))

	f.setDay(3)
	n, err := f.svc.ReleaseMaturedCommissions(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.setDay(8)
	n, err = f.svc.ReleaseMaturedCommissions(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "10.00", f.available(aff.AffiliateID))
}

func TestHandleCanonicalEventIngestsBillingPayments(t *testing.T) {
	f := newFixture(t)
	aff := f.approvedAffiliate("owner-1", "creator")
	f.signup("user-1", "creator")

	data, err := json.Marshal(contracts.BillingPaymentSucceededPayload{
		ProviderEventID: "in_123",
		Gateway:         "stripe",
		UserID:          "user-1",
		Amount:          "12.34",
		Currency:        "usd",
		Kind:            "credits",
	})
	require.NoError(t, err)
	envelope := contracts.EventEnvelope{
		EventID:       "env-1",
		EventType:     domain.EventBillingPaymentSucceeded,
		OccurredAt:    day0,
		SourceService: "billing-service",
		SchemaVersion: "v1",
		Data:          data,
	}

	res, err := f.svc.HandleCanonicalEvent(f.ctx, envelope)
	require.NoError(t, err)
	assert.True(t, res.CommissionCreated)
	assert.Equal(t, "1.23", f.available(aff.AffiliateID))

	res, err = f.svc.HandleCanonicalEvent(f.ctx, envelope)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	envelope.EventType = "billing.refund.issued"
	_, err = f.svc.HandleCanonicalEvent(f.ctx, envelope)
	assert.ErrorIs(t, err, domain.ErrUnsupportedEvent)

	envelope.EventType = domain.EventBillingPaymentSucceeded
	envelope.SchemaVersion = ""
	_, err = f.svc.HandleCanonicalEvent(f.ctx, envelope)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
