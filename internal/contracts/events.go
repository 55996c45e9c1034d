package contracts

import (
	"encoding/json"
	"time"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	EventClass       string          `json:"event_class,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

// BillingPaymentSucceededPayload is the data of billing.payment.succeeded.
type BillingPaymentSucceededPayload struct {
	ProviderEventID string `json:"provider_event_id"`
	Gateway         string `json:"gateway"`
	UserID          string `json:"user_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Kind            string `json:"kind"`
	OccurredAt      string `json:"occurred_at"`
}

type AffiliateClickTrackedPayload struct {
	AffiliateID string `json:"affiliate_id"`
	ClickID     string `json:"click_id"`
	Code        string `json:"code"`
	ReferrerURL string `json:"referrer_url,omitempty"`
	IPHash      string `json:"ip_hash"`
	TrackedAt   string `json:"tracked_at"`
}

type AffiliateReferralLockedPayload struct {
	AffiliateID string `json:"affiliate_id"`
	UserID      string `json:"user_id"`
	LockedAt    string `json:"locked_at"`
}

type AffiliateCommissionCreatedPayload struct {
	AffiliateID    string `json:"affiliate_id"`
	CommissionID   string `json:"commission_id"`
	ReferredUserID string `json:"referred_user_id"`
	PaymentEventID string `json:"payment_event_id"`
	Rule           string `json:"rule"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
}

type AffiliateApplicationReviewedPayload struct {
	AffiliateID string `json:"affiliate_id"`
	Status      string `json:"status"`
	ReviewedBy  string `json:"reviewed_by"`
	ReviewedAt  string `json:"reviewed_at"`
}

type AffiliatePayoutPayload struct {
	AffiliateID     string `json:"affiliate_id"`
	PayoutRequestID string `json:"payout_request_id"`
	RequestedAmount string `json:"requested_amount"`
	Fee             string `json:"fee,omitempty"`
	NetAmount       string `json:"net_amount,omitempty"`
	Status          string `json:"status"`
	OccurredAt      string `json:"occurred_at"`
}
