package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	PaymentKindCredits      PaymentKind = "credits"
	PaymentKindSubscription PaymentKind = "subscription"
)

func (k PaymentKind) Valid() bool {
	return k == PaymentKindCredits || k == PaymentKindSubscription
}

type PaymentEvent struct {
	ProviderEventID string          `json:"provider_event_id"`
	Gateway         string          `json:"gateway"`
	UserID          string          `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Kind            PaymentKind     `json:"kind"`
	OccurredAt      time.Time       `json:"occurred_at"`
	ProcessedAt     time.Time       `json:"processed_at"`
}

// NormalizedEvent is what a gateway adapter hands to ingestion once the
// provider payload has been verified and decoded.
type NormalizedEvent struct {
	ProviderEventID string          `json:"provider_event_id"`
	Gateway         string          `json:"gateway"`
	Type            string          `json:"type"`
	UserID          string          `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Kind            PaymentKind     `json:"kind"`
	OccurredAt      time.Time       `json:"occurred_at"`
}
