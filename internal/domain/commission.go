package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPayable CommissionStatus = "payable"
)

type CommissionRule string

const (
	CommissionRuleFreeReferral CommissionRule = "free_referral"
	CommissionRuleSubscription CommissionRule = "subscription"
)

type CommissionEntry struct {
	CommissionID   string           `json:"commission_id"`
	AffiliateID    string           `json:"affiliate_id"`
	ReferredUserID string           `json:"referred_user_id"`
	PaymentEventID string           `json:"payment_event_id"`
	Rule           CommissionRule   `json:"rule"`
	Rate           decimal.Decimal  `json:"rate"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       string           `json:"currency"`
	Status         CommissionStatus `json:"status"`
	PayableAt      time.Time        `json:"payable_at"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ReferralMark is the referral flag a commission sets. It is written in the
// same transaction as the entry.
type ReferralMark string

const (
	ReferralMarkNone                ReferralMark = ""
	ReferralMarkFreeReferralEarned  ReferralMark = "free_referral_earned"
	ReferralMarkSubscriptionEnabled ReferralMark = "subscription_commission_enabled"
)

type CommissionTrigger string

const (
	TriggerPayment   CommissionTrigger = "payment"
	TriggerMilestone CommissionTrigger = "milestone"
)

type CommissionConfig struct {
	RatePercent        decimal.Decimal
	FreeReferralBonus  decimal.Decimal
	FreeReferralWindow time.Duration
	HoldPeriod         time.Duration
}

type CommissionInput struct {
	Trigger        CommissionTrigger
	PaymentEventID string
	Amount         decimal.Decimal
	Currency       string
	OccurredAt     time.Time
	SignupAt       *time.Time
	Referral       *Referral
	// Attributed reports whether attribution succeeded for this payment: the
	// user was locked to the referral's affiliate or paid inside the window.
	Attributed bool
	At         time.Time
}

type CommissionDecision struct {
	Entry *CommissionEntry
	Mark  ReferralMark
}

// CalculateCommission applies the free-referral and subscription rules in
// order. A nil Entry means no commission; that is not an error.
func CalculateCommission(in CommissionInput, cfg CommissionConfig) CommissionDecision {
	if in.Referral == nil {
		return CommissionDecision{}
	}
	ref := in.Referral
	switch in.Trigger {
	case TriggerMilestone:
		if ref.FreeReferralEarned || !cfg.FreeReferralBonus.IsPositive() {
			return CommissionDecision{}
		}
		signup := in.SignupAt
		if signup == nil {
			signup = ref.SignupAt
		}
		if signup == nil || !withinWindow(*signup, in.OccurredAt, cfg.FreeReferralWindow) {
			return CommissionDecision{}
		}
		entry := newEntry(in, cfg, CommissionRuleFreeReferral, decimal.Zero, RoundMoney(cfg.FreeReferralBonus))
		entry.PaymentEventID = FreeReferralKey(ref.AffiliateID, ref.UserID)
		return CommissionDecision{Entry: entry, Mark: ReferralMarkFreeReferralEarned}
	case TriggerPayment:
		if !in.Attributed && !ref.SubscriptionCommissionEnabled {
			return CommissionDecision{}
		}
		if !in.Amount.IsPositive() || !cfg.RatePercent.IsPositive() {
			return CommissionDecision{}
		}
		amount := PercentOf(in.Amount, cfg.RatePercent)
		if !amount.IsPositive() {
			return CommissionDecision{}
		}
		decision := CommissionDecision{Entry: newEntry(in, cfg, CommissionRuleSubscription, cfg.RatePercent, amount)}
		if !ref.SubscriptionCommissionEnabled {
			decision.Mark = ReferralMarkSubscriptionEnabled
		}
		return decision
	default:
		return CommissionDecision{}
	}
}

// FreeReferralKey is the ledger idempotency key of the one-off bonus for a pair.
func FreeReferralKey(affiliateID, userID string) string {
	return fmt.Sprintf("free_referral:%s:%s", affiliateID, userID)
}

func newEntry(in CommissionInput, cfg CommissionConfig, rule CommissionRule, rate, amount decimal.Decimal) *CommissionEntry {
	at := in.At
	if at.IsZero() {
		at = in.OccurredAt
	}
	status := CommissionStatusPayable
	payableAt := at
	if cfg.HoldPeriod > 0 {
		status = CommissionStatusPending
		payableAt = at.Add(cfg.HoldPeriod)
	}
	return &CommissionEntry{
		AffiliateID:    in.Referral.AffiliateID,
		ReferredUserID: in.Referral.UserID,
		PaymentEventID: in.PaymentEventID,
		Rule:           rule,
		Rate:           rate,
		Amount:         amount,
		Currency:       NormalizeCurrency(in.Currency),
		Status:         status,
		PayableAt:      payableAt,
		CreatedAt:      at,
	}
}

// WithinWindow reports whether at falls no later than window after start.
func WithinWindow(start, at time.Time, window time.Duration) bool {
	return withinWindow(start, at, window)
}

func withinWindow(start, at time.Time, window time.Duration) bool {
	if at.Before(start) {
		return true
	}
	return at.Sub(start) <= window
}
