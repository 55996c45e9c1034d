package application

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

type Config struct {
	ServiceName   string
	PublicBaseURL string

	CommissionRatePercent   decimal.Decimal
	FreeReferralBonusAmount decimal.Decimal
	LockInWindowDays        int
	FreeReferralWindowDays  int
	CommissionHoldDays      int
	MinimumPayoutAmount     decimal.Decimal
	PayoutFeePercent        decimal.Decimal

	CodeCacheTTL         time.Duration
	IdempotencyTTL       time.Duration
	OutboxFlushBatchSize int
}

func (c Config) LockInWindow() time.Duration {
	return time.Duration(c.LockInWindowDays) * 24 * time.Hour
}

func (c Config) CommissionConfig() domain.CommissionConfig {
	return domain.CommissionConfig{
		RatePercent:        c.CommissionRatePercent,
		FreeReferralBonus:  c.FreeReferralBonusAmount,
		FreeReferralWindow: time.Duration(c.FreeReferralWindowDays) * 24 * time.Hour,
		HoldPeriod:         time.Duration(c.CommissionHoldDays) * 24 * time.Hour,
	}
}

type Actor struct {
	SubjectID      string
	Role           string
	RequestID      string
	IdempotencyKey string
}

type ResolveInput struct {
	UserID        string
	CandidateCode string
	ClickID       string
	// SeenAt is when the user first met the code, e.g. the click time.
	SeenAt time.Time
	// PaidAt is set when resolution happens for a payment; the lock-in window
	// is enforced only then.
	PaidAt *time.Time
	// PaidAmount must be positive for a payment to lock the referrer.
	PaidAmount decimal.Decimal
}

// Attribution is the resolver outcome. An empty AffiliateID is the null result.
type Attribution struct {
	AffiliateID string
	Referral    *domain.Referral
	Locked      bool
	NewlyLocked bool
}

func (a Attribution) Found() bool { return a.AffiliateID != "" }

type IngestInput struct {
	ProviderEventID string
	Gateway         string
	UserID          string
	Amount          decimal.Decimal
	Currency        string
	Kind            domain.PaymentKind
	OccurredAt      time.Time
}

const (
	IngestStatusProcessed = "processed"
	IngestStatusDuplicate = "duplicate"
	IngestStatusIgnored   = "ignored"
)

type IngestResult struct {
	Status            string `json:"status"`
	Duplicate         bool   `json:"duplicate"`
	CommissionCreated bool   `json:"commission_created"`
	CommissionID      string `json:"commission_id,omitempty"`
	AffiliateID       string `json:"affiliate_id,omitempty"`
}

type TrackClickInput struct {
	Code        string
	LandingURL  string
	ReferrerURL string
	ClientIP    string
	UserAgent   string
}

type TrackClickResult struct {
	ClickID     string
	RedirectURL string
	Tracked     bool
}

type SignupInput struct {
	UserID       string
	SignupAt     time.Time
	ReferralCode string
	ClickID      string
}

type SignupResult struct {
	UserID      string     `json:"user_id"`
	SignupAt    *time.Time `json:"signup_at,omitempty"`
	AffiliateID string     `json:"affiliate_id,omitempty"`
	Locked      bool       `json:"locked"`
}

type MilestoneInput struct {
	UserID     string
	Milestone  string
	OccurredAt time.Time
}

type MilestoneResult struct {
	CommissionCreated bool   `json:"commission_created"`
	CommissionID      string `json:"commission_id,omitempty"`
}

type Dashboard struct {
	Affiliate      domain.Affiliate
	Balance        domain.Balance
	TotalClicks    int64
	TotalReferrals int64
	MinimumPayout  decimal.Decimal
	PayoutFee      decimal.Decimal
}

type Dependencies struct {
	Config Config
	Logger *slog.Logger
	Clock  func() time.Time

	EventStore  ports.EventStore
	Users       ports.UserRepository
	Affiliates  ports.AffiliateRepository
	Links       ports.ReferralLinkRepository
	Clicks      ports.ClickRepository
	Referrals   ports.ReferralRepository
	Payments    ports.PaymentEventRepository
	Ledger      ports.LedgerRepository
	Payouts     ports.PayoutRepository
	AuditLogs   ports.AuditLogRepository
	Idempotency ports.IdempotencyRepository
	Outbox      ports.OutboxRepository

	CodeCache ports.CodeCache
	Metrics   ports.Metrics
	Policy    AuthorizationPolicy
}
