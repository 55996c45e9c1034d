package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

type LedgerRepository struct{ s *store }

func (r *LedgerRepository) AppendCommission(_ context.Context, entry domain.CommissionEntry, mark domain.ReferralMark) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.commByKey[entry.PaymentEventID]; ok {
		return domain.ErrDuplicateCommission
	}
	if mark != domain.ReferralMarkNone {
		key := referralKey(entry.AffiliateID, entry.ReferredUserID)
		ref, ok := r.s.referrals[key]
		if !ok {
			return fmt.Errorf("%w: referral %s", domain.ErrNotFound, key)
		}
		switch mark {
		case domain.ReferralMarkFreeReferralEarned:
			if ref.FreeReferralEarned {
				return domain.ErrDuplicateCommission
			}
			ref.FreeReferralEarned = true
		case domain.ReferralMarkSubscriptionEnabled:
			ref.SubscriptionCommissionEnabled = true
		}
		r.s.referrals[key] = ref
	}
	r.s.commByKey[entry.PaymentEventID] = len(r.s.commissions)
	r.s.commissions = append(r.s.commissions, entry)
	return nil
}

func (r *LedgerRepository) ListCommissions(_ context.Context, affiliateID string, limit int) ([]domain.CommissionEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.CommissionEntry, 0)
	for _, row := range r.s.commissions {
		if row.AffiliateID == affiliateID {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *LedgerRepository) Balance(_ context.Context, affiliateID string, at time.Time) (domain.Balance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.balanceLocked(affiliateID, at), nil
}

func (r *LedgerRepository) balanceLocked(affiliateID string, at time.Time) domain.Balance {
	payable, pending, debited, reserved := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, row := range r.s.commissions {
		if row.AffiliateID != affiliateID {
			continue
		}
		if row.Status == domain.CommissionStatusPayable {
			payable = payable.Add(row.Amount)
		} else {
			pending = pending.Add(row.Amount)
		}
	}
	for _, d := range r.s.debits {
		if d.AffiliateID == affiliateID {
			debited = debited.Add(d.Amount)
		}
	}
	for _, p := range r.s.payouts {
		if p.AffiliateID == affiliateID && p.Status == domain.PayoutStatusApproved {
			reserved = reserved.Add(p.RequestedAmount)
		}
	}
	return domain.NewBalance(affiliateID, payable, pending, debited, reserved, at)
}

func (r *LedgerRepository) Debit(_ context.Context, in domain.DebitInput) (domain.PayoutRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.payouts[in.PayoutRequestID]
	if !ok {
		return domain.PayoutRequest{}, domain.ErrNotFound
	}
	if row.Status != domain.PayoutStatusApproved {
		return domain.PayoutRequest{}, fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, row.Status)
	}
	if row.AffiliateID != in.AffiliateID {
		return domain.PayoutRequest{}, domain.ErrInvalidInput
	}
	// The request being settled is still approved, so its own hold is added back.
	balance := r.balanceLocked(in.AffiliateID, in.At)
	available := balance.Available.Add(row.RequestedAmount)
	if available.LessThan(in.Amount) {
		return domain.PayoutRequest{}, fmt.Errorf("%w: available %s, requested %s", domain.ErrInsufficientBalance,
			available.StringFixed(domain.MoneyScale), in.Amount.StringFixed(domain.MoneyScale))
	}
	r.s.debits = append(r.s.debits, domain.LedgerDebit{
		DebitID: in.DebitID, AffiliateID: in.AffiliateID, PayoutRequestID: in.PayoutRequestID,
		Amount: in.Amount, CreatedAt: in.At,
	})
	at := in.At
	row.Status = domain.PayoutStatusPaid
	row.Fee = in.Fee
	row.NetAmount = in.NetAmount
	row.ProcessedAt = &at
	row.PaidAt = &at
	if in.ActorID != "" {
		row.ReviewedBy = in.ActorID
	}
	r.s.payouts[row.PayoutRequestID] = row
	if aff, ok := r.s.affiliates[in.AffiliateID]; ok {
		aff.TotalWithdrawn = aff.TotalWithdrawn.Add(in.Amount)
		aff.UpdatedAt = at
		r.s.affiliates[in.AffiliateID] = aff
	}
	return row, nil
}

func (r *LedgerRepository) ReleaseMatured(_ context.Context, now time.Time, limit int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	released := 0
	for i := range r.s.commissions {
		if limit > 0 && released >= limit {
			break
		}
		row := &r.s.commissions[i]
		if row.Status == domain.CommissionStatusPending && !row.PayableAt.After(now) {
			row.Status = domain.CommissionStatusPayable
			released++
		}
	}
	return released, nil
}

type PayoutRepository struct{ s *store }

func (r *PayoutRepository) Create(_ context.Context, row domain.PayoutRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payouts[row.PayoutRequestID]; ok {
		return domain.ErrConflict
	}
	r.s.payouts[row.PayoutRequestID] = row
	return nil
}

func (r *PayoutRepository) GetByID(_ context.Context, payoutRequestID string) (domain.PayoutRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.payouts[payoutRequestID]
	if !ok {
		return domain.PayoutRequest{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *PayoutRepository) ListByAffiliate(_ context.Context, affiliateID string) ([]domain.PayoutRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.PayoutRequest, 0)
	for _, row := range r.s.payouts {
		if row.AffiliateID == affiliateID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (r *PayoutRepository) ListByStatus(_ context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.PayoutRequest, 0)
	for _, row := range r.s.payouts {
		if row.Status == status {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PayoutRepository) Transition(_ context.Context, t domain.PayoutTransition) (domain.PayoutRequest, error) {
	if err := t.Validate(); err != nil {
		return domain.PayoutRequest{}, err
	}
	if t.To == domain.PayoutStatusPaid {
		return domain.PayoutRequest{}, fmt.Errorf("%w: paid is reached through the ledger debit", domain.ErrInvalidTransition)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.payouts[t.PayoutRequestID]
	if !ok {
		return domain.PayoutRequest{}, domain.ErrNotFound
	}
	if row.Status != t.From {
		return domain.PayoutRequest{}, fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, row.Status)
	}
	if t.RequireBalance.IsPositive() {
		balance := (&LedgerRepository{r.s}).balanceLocked(row.AffiliateID, t.At)
		if balance.Available.LessThan(t.RequireBalance) {
			return domain.PayoutRequest{}, fmt.Errorf("%w: available %s", domain.ErrInsufficientBalance, balance.Available.StringFixed(domain.MoneyScale))
		}
	}
	at := t.At
	row.Status = t.To
	row.ReviewedBy = t.ActorID
	if t.Notes != "" {
		row.AdminNotes = t.Notes
	}
	switch t.To {
	case domain.PayoutStatusApproved:
		row.ApprovedAt = &at
	case domain.PayoutStatusRejected:
		row.ProcessedAt = &at
	}
	r.s.payouts[row.PayoutRequestID] = row
	return row, nil
}
