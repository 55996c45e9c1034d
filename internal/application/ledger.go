package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

// Ledger is the append-only commission record. Balances are recomputed from
// entries and debits on every read; nothing stores a running total.
type Ledger struct {
	repo    ports.LedgerRepository
	metrics ports.Metrics
	emit    *eventEmitter
	nowFn   func() time.Time
}

// Append records entry and applies mark to its referral in one transaction.
func (l *Ledger) Append(ctx context.Context, entry domain.CommissionEntry, mark domain.ReferralMark) (domain.CommissionEntry, error) {
	if strings.TrimSpace(entry.AffiliateID) == "" || strings.TrimSpace(entry.PaymentEventID) == "" {
		return domain.CommissionEntry{}, fmt.Errorf("%w: commission needs affiliate and payment ids", domain.ErrInvalidInput)
	}
	if !entry.Amount.IsPositive() {
		return domain.CommissionEntry{}, fmt.Errorf("%w: commission amount must be positive", domain.ErrInvalidInput)
	}
	if entry.CommissionID == "" {
		entry.CommissionID = "com_" + uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.nowFn()
	}
	if entry.PayableAt.IsZero() {
		entry.PayableAt = entry.CreatedAt
	}
	if entry.Status == "" {
		entry.Status = domain.CommissionStatusPayable
	}
	entry.Amount = domain.RoundMoney(entry.Amount)
	if err := l.repo.AppendCommission(ctx, entry, mark); err != nil {
		return domain.CommissionEntry{}, err
	}
	l.metrics.CommissionCreated(string(entry.Rule), entry.Amount)
	_ = l.emit.commissionCreated(ctx, entry)
	return entry, nil
}

func (l *Ledger) BalanceOf(ctx context.Context, affiliateID string) (domain.Balance, error) {
	affiliateID = strings.TrimSpace(affiliateID)
	if affiliateID == "" {
		return domain.Balance{}, fmt.Errorf("%w: affiliate_id is required", domain.ErrInvalidInput)
	}
	return l.repo.Balance(ctx, affiliateID, l.nowFn())
}

// Debit is reserved for PayoutWorkflow.MarkPaid. The balance is re-checked by
// the store inside the transaction that records the debit.
func (l *Ledger) Debit(ctx context.Context, in domain.DebitInput) (domain.PayoutRequest, error) {
	if strings.TrimSpace(in.AffiliateID) == "" || strings.TrimSpace(in.PayoutRequestID) == "" {
		return domain.PayoutRequest{}, fmt.Errorf("%w: debit needs affiliate and payout ids", domain.ErrInvalidInput)
	}
	if !in.Amount.IsPositive() {
		return domain.PayoutRequest{}, fmt.Errorf("%w: debit amount must be positive", domain.ErrInvalidInput)
	}
	if in.DebitID == "" {
		in.DebitID = "deb_" + uuid.NewString()
	}
	if in.At.IsZero() {
		in.At = l.nowFn()
	}
	return l.repo.Debit(ctx, in)
}

func (l *Ledger) List(ctx context.Context, affiliateID string, limit int) ([]domain.CommissionEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.repo.ListCommissions(ctx, affiliateID, limit)
}

// ReleaseMatured promotes pending entries whose hold has elapsed.
func (l *Ledger) ReleaseMatured(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	return l.repo.ReleaseMatured(ctx, l.nowFn(), limit)
}

func isDuplicateCommission(err error) bool {
	return errors.Is(err, domain.ErrDuplicateCommission)
}
