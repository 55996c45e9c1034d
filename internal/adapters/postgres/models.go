package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

type processedEventModel struct {
	ProviderEventID string    `gorm:"column:provider_event_id;primaryKey"`
	Source          string    `gorm:"column:source"`
	RecordedAt      time.Time `gorm:"column:recorded_at"`
}

func (processedEventModel) TableName() string { return "processed_events" }

type userModel struct {
	UserID              string     `gorm:"column:user_id;primaryKey"`
	SignupAt            *time.Time `gorm:"column:signup_at"`
	ReferrerAffiliateID *string    `gorm:"column:referrer_affiliate_id"`
	LockedAt            *time.Time `gorm:"column:locked_at"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
}

func (userModel) TableName() string { return "ledger_users" }

type affiliateModel struct {
	AffiliateID    string          `gorm:"column:affiliate_id;primaryKey"`
	UserID         string          `gorm:"column:user_id"`
	Code           string          `gorm:"column:code"`
	Status         string          `gorm:"column:status"`
	TotalWithdrawn decimal.Decimal `gorm:"column:total_withdrawn;type:numeric(18,2)"`
	ReviewedBy     string          `gorm:"column:reviewed_by"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (affiliateModel) TableName() string { return "affiliates" }

type referralLinkModel struct {
	Code        string    `gorm:"column:code;primaryKey"`
	AffiliateID string    `gorm:"column:affiliate_id"`
	ClicksCount int64     `gorm:"column:clicks_count"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (referralLinkModel) TableName() string { return "referral_links" }

type clickModel struct {
	ClickID           string     `gorm:"column:click_id;primaryKey"`
	AffiliateID       string     `gorm:"column:affiliate_id"`
	Code              string     `gorm:"column:code"`
	IPHash            string     `gorm:"column:ip_hash"`
	UserAgent         string     `gorm:"column:user_agent"`
	LandingURL        string     `gorm:"column:landing_url"`
	ReferrerURL       string     `gorm:"column:referrer_url"`
	ClickedAt         time.Time  `gorm:"column:clicked_at"`
	ConvertedToSignup bool       `gorm:"column:converted_to_signup"`
	ConvertedUserID   string     `gorm:"column:converted_user_id"`
	ConvertedAt       *time.Time `gorm:"column:converted_at"`
}

func (clickModel) TableName() string { return "referral_clicks" }

type referralModel struct {
	ReferralID                    string     `gorm:"column:referral_id;primaryKey"`
	AffiliateID                   string     `gorm:"column:affiliate_id"`
	UserID                        string     `gorm:"column:user_id"`
	Source                        string     `gorm:"column:source"`
	ClickID                       string     `gorm:"column:click_id"`
	FirstSeenAt                   time.Time  `gorm:"column:first_seen_at"`
	SignupAt                      *time.Time `gorm:"column:signup_at"`
	FreeReferralEarned            bool       `gorm:"column:free_referral_earned"`
	SubscriptionCommissionEnabled bool       `gorm:"column:subscription_commission_enabled"`
}

func (referralModel) TableName() string { return "referrals" }

type paymentEventModel struct {
	ProviderEventID string          `gorm:"column:provider_event_id;primaryKey"`
	Gateway         string          `gorm:"column:gateway"`
	UserID          string          `gorm:"column:user_id"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(18,2)"`
	Currency        string          `gorm:"column:currency"`
	Kind            string          `gorm:"column:kind"`
	OccurredAt      time.Time       `gorm:"column:occurred_at"`
	ProcessedAt     time.Time       `gorm:"column:processed_at"`
}

func (paymentEventModel) TableName() string { return "payment_events" }

type commissionEntryModel struct {
	CommissionID   string          `gorm:"column:commission_id;primaryKey"`
	AffiliateID    string          `gorm:"column:affiliate_id"`
	ReferredUserID string          `gorm:"column:referred_user_id"`
	PaymentEventID string          `gorm:"column:payment_event_id"`
	Rule           string          `gorm:"column:rule"`
	Rate           decimal.Decimal `gorm:"column:rate;type:numeric(9,4)"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(18,2)"`
	Currency       string          `gorm:"column:currency"`
	Status         string          `gorm:"column:status"`
	PayableAt      time.Time       `gorm:"column:payable_at"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
}

func (commissionEntryModel) TableName() string { return "commission_entries" }

type ledgerDebitModel struct {
	DebitID         string          `gorm:"column:debit_id;primaryKey"`
	AffiliateID     string          `gorm:"column:affiliate_id"`
	PayoutRequestID string          `gorm:"column:payout_request_id"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(18,2)"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
}

func (ledgerDebitModel) TableName() string { return "ledger_debits" }

type payoutRequestModel struct {
	PayoutRequestID string          `gorm:"column:payout_request_id;primaryKey"`
	AffiliateID     string          `gorm:"column:affiliate_id"`
	RequestedAmount decimal.Decimal `gorm:"column:requested_amount;type:numeric(18,2)"`
	Fee             decimal.Decimal `gorm:"column:fee;type:numeric(18,2)"`
	NetAmount       decimal.Decimal `gorm:"column:net_amount;type:numeric(18,2)"`
	Currency        string          `gorm:"column:currency"`
	Status          string          `gorm:"column:status"`
	AdminNotes      string          `gorm:"column:admin_notes"`
	ReviewedBy      string          `gorm:"column:reviewed_by"`
	RequestedAt     time.Time       `gorm:"column:requested_at"`
	ApprovedAt      *time.Time      `gorm:"column:approved_at"`
	ProcessedAt     *time.Time      `gorm:"column:processed_at"`
	PaidAt          *time.Time      `gorm:"column:paid_at"`
}

func (payoutRequestModel) TableName() string { return "payout_requests" }

type auditLogModel struct {
	AuditLogID string    `gorm:"column:audit_log_id;primaryKey"`
	EntityType string    `gorm:"column:entity_type"`
	EntityID   string    `gorm:"column:entity_id"`
	Action     string    `gorm:"column:action"`
	ActorID    string    `gorm:"column:actor_id"`
	Notes      string    `gorm:"column:notes"`
	Metadata   string    `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (auditLogModel) TableName() string { return "affiliate_audit_logs" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "affiliate_idempotency" }

type outboxModel struct {
	OutboxID         string     `gorm:"column:outbox_id;primaryKey"`
	EventType        string     `gorm:"column:event_type"`
	PartitionKey     string     `gorm:"column:partition_key"`
	PartitionKeyPath string     `gorm:"column:partition_key_path"`
	Payload          string     `gorm:"column:payload;type:jsonb"`
	SchemaVersion    string     `gorm:"column:schema_version"`
	TraceID          string     `gorm:"column:trace_id"`
	RetryCount       int        `gorm:"column:retry_count"`
	LastError        *string    `gorm:"column:last_error"`
	LastErrorAt      *time.Time `gorm:"column:last_error_at"`
	PublishedAt      *time.Time `gorm:"column:published_at"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
}

func (outboxModel) TableName() string { return "affiliate_outbox" }
