package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

// EventStore is the append-only record of provider event ids. RecordIfNew is
// atomic: concurrent calls with one key see exactly one isNew=true.
type EventStore interface {
	RecordIfNew(ctx context.Context, providerEventID, source string, at time.Time) (bool, error)
}

type UserRepository interface {
	// Register inserts the user when absent. An existing signup time is never
	// overwritten; a missing one is filled in.
	Register(ctx context.Context, row domain.User) (domain.User, error)
	GetByID(ctx context.Context, userID string) (domain.User, error)
	// LockReferrer sets referrer_affiliate_id only when it is still empty and
	// returns the stored row, so the first writer always wins.
	LockReferrer(ctx context.Context, userID, affiliateID string, at time.Time) (domain.User, error)
}

type AffiliateRepository interface {
	Create(ctx context.Context, row domain.Affiliate, link domain.ReferralLink) error
	GetByID(ctx context.Context, affiliateID string) (domain.Affiliate, error)
	GetByUserID(ctx context.Context, userID string) (domain.Affiliate, error)
	UpdateStatus(ctx context.Context, affiliateID string, from, to domain.AffiliateStatus, reviewedBy string, at time.Time) (domain.Affiliate, error)
}

type ReferralLinkRepository interface {
	GetByCode(ctx context.Context, code string) (domain.ReferralLink, error)
	IncrementClicks(ctx context.Context, code string) error
	SumClicksByAffiliate(ctx context.Context, affiliateID string) (int64, error)
}

type ClickRepository interface {
	Append(ctx context.Context, row domain.Click) error
	GetByID(ctx context.Context, clickID string) (domain.Click, error)
	// MarkConverted flips converted_to_signup once; false means it was already set.
	MarkConverted(ctx context.Context, clickID, userID string, at time.Time) (bool, error)
}

type ReferralRepository interface {
	// CreateIfAbsent relies on the (affiliate_id, user_id) unique key; an
	// existing row is returned unchanged with created=false.
	CreateIfAbsent(ctx context.Context, row domain.Referral) (domain.Referral, bool, error)
	Get(ctx context.Context, affiliateID, userID string) (domain.Referral, error)
	EarliestForUser(ctx context.Context, userID string) (domain.Referral, error)
	CountByAffiliate(ctx context.Context, affiliateID string) (int64, error)
}

type PaymentEventRepository interface {
	Create(ctx context.Context, row domain.PaymentEvent) error
	GetByProviderEventID(ctx context.Context, providerEventID string) (domain.PaymentEvent, error)
	ListUnreconciled(ctx context.Context, limit int) ([]domain.PaymentEvent, error)
}

type LedgerRepository interface {
	// AppendCommission inserts the entry and applies mark to the referral in one
	// transaction. A second entry for the same payment id fails with
	// domain.ErrDuplicateCommission.
	AppendCommission(ctx context.Context, entry domain.CommissionEntry, mark domain.ReferralMark) error
	ListCommissions(ctx context.Context, affiliateID string, limit int) ([]domain.CommissionEntry, error)
	Balance(ctx context.Context, affiliateID string, at time.Time) (domain.Balance, error)
	// Debit locks the affiliate, re-checks the balance, records the debit and
	// moves the payout from approved to paid atomically.
	Debit(ctx context.Context, in domain.DebitInput) (domain.PayoutRequest, error)
	ReleaseMatured(ctx context.Context, now time.Time, limit int) (int, error)
}

type PayoutRepository interface {
	Create(ctx context.Context, row domain.PayoutRequest) error
	GetByID(ctx context.Context, payoutRequestID string) (domain.PayoutRequest, error)
	ListByAffiliate(ctx context.Context, affiliateID string) ([]domain.PayoutRequest, error)
	ListByStatus(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutRequest, error)
	Transition(ctx context.Context, t domain.PayoutTransition) (domain.PayoutRequest, error)
}

type AuditLogRepository interface {
	Append(ctx context.Context, row domain.AuditLog) error
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
	// Release drops a reservation that was never completed.
	Release(ctx context.Context, key string) error
}

type OutboxRecord struct {
	RecordID     string
	EventType    string
	PartitionKey string
	Envelope     contracts.EventEnvelope
	RetryCount   int
	CreatedAt    time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, record OutboxRecord) error
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, recordID string, at time.Time) error
	MarkFailed(ctx context.Context, recordID, errMsg string, at time.Time) error
}

// CodeCache holds the immutable code -> affiliate mapping.
type CodeCache interface {
	GetAffiliateID(ctx context.Context, code string) (string, bool, error)
	SetAffiliateID(ctx context.Context, code, affiliateID string, ttl time.Duration) error
}

type Metrics interface {
	IngestOutcome(outcome string)
	CommissionCreated(rule string, amount decimal.Decimal)
	PayoutTransition(to string)
	ClickTracked(valid bool)
}
