package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PayoutStatus string

const (
	PayoutStatusPending  PayoutStatus = "pending"
	PayoutStatusApproved PayoutStatus = "approved"
	PayoutStatusRejected PayoutStatus = "rejected"
	PayoutStatusPaid     PayoutStatus = "paid"
)

type PayoutRequest struct {
	PayoutRequestID string          `json:"payout_request_id"`
	AffiliateID     string          `json:"affiliate_id"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	Fee             decimal.Decimal `json:"fee"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	Currency        string          `json:"currency"`
	Status          PayoutStatus    `json:"status"`
	AdminNotes      string          `json:"admin_notes,omitempty"`
	ReviewedBy      string          `json:"reviewed_by,omitempty"`
	RequestedAt     time.Time       `json:"requested_at"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
}

var payoutEdges = map[PayoutStatus][]PayoutStatus{
	PayoutStatusPending:  {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved: {PayoutStatusPaid},
}

func CanTransitionPayout(from, to PayoutStatus) bool {
	for _, next := range payoutEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s PayoutStatus) Terminal() bool {
	return s == PayoutStatusPaid || s == PayoutStatusRejected
}

// PayoutTransition is a single guarded status change. RequireBalance, when
// positive, must still be covered by the affiliate balance inside the same
// transaction that flips the status.
type PayoutTransition struct {
	PayoutRequestID string
	From            PayoutStatus
	To              PayoutStatus
	ActorID         string
	Notes           string
	RequireBalance  decimal.Decimal
	At              time.Time
}

func (t PayoutTransition) Validate() error {
	if t.PayoutRequestID == "" || t.At.IsZero() {
		return ErrInvalidInput
	}
	if !CanTransitionPayout(t.From, t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	return nil
}

// PayoutFee splits a requested amount into fee and net.
func PayoutFee(requested, feePercent decimal.Decimal) (fee, net decimal.Decimal) {
	if !feePercent.IsPositive() {
		return decimal.Zero, RoundMoney(requested)
	}
	fee = PercentOf(requested, feePercent)
	return fee, RoundMoney(requested.Sub(fee))
}

// PayoutValidationError is returned when a payout request fails the amount
// checks. It carries the figures the affiliate needs to correct the request.
type PayoutValidationError struct {
	Reason        string
	Balance       decimal.Decimal
	MinimumAmount decimal.Decimal
}

func (e *PayoutValidationError) Error() string {
	return fmt.Sprintf("%s (balance %s, minimum %s)", e.Reason, e.Balance.StringFixed(MoneyScale), e.MinimumAmount.StringFixed(MoneyScale))
}

func (e *PayoutValidationError) Unwrap() error { return ErrInvalidInput }

// Balance is the derived wallet of an affiliate.
type Balance struct {
	AffiliateID   string          `json:"affiliate_id"`
	TotalEarned   decimal.Decimal `json:"total_earned"`
	PendingEarned decimal.Decimal `json:"pending_earned"`
	TotalDebited  decimal.Decimal `json:"total_debited"`
	Reserved      decimal.Decimal `json:"reserved"`
	Available     decimal.Decimal `json:"available"`
	Currency      string          `json:"currency"`
	ComputedAt    time.Time       `json:"computed_at"`
}

// NewBalance derives the withdrawable amount: payable commissions minus paid
// payouts minus approved payouts that are not yet paid.
func NewBalance(affiliateID string, payable, pending, debited, reserved decimal.Decimal, at time.Time) Balance {
	available := payable.Sub(debited).Sub(reserved)
	return Balance{
		AffiliateID:   affiliateID,
		TotalEarned:   RoundMoney(payable),
		PendingEarned: RoundMoney(pending),
		TotalDebited:  RoundMoney(debited),
		Reserved:      RoundMoney(reserved),
		Available:     RoundMoney(available),
		Currency:      "USD",
		ComputedAt:    at,
	}
}

type LedgerDebit struct {
	DebitID         string          `json:"debit_id"`
	AffiliateID     string          `json:"affiliate_id"`
	PayoutRequestID string          `json:"payout_request_id"`
	Amount          decimal.Decimal `json:"amount"`
	CreatedAt       time.Time       `json:"created_at"`
}

// DebitInput is the compare-and-debit executed when a payout is marked paid.
type DebitInput struct {
	DebitID         string
	AffiliateID     string
	PayoutRequestID string
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	NetAmount       decimal.Decimal
	ActorID         string
	At              time.Time
}
