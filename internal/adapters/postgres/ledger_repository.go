package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type paymentEventRepository struct {
	db *gorm.DB
}

func (r *paymentEventRepository) Create(ctx context.Context, row domain.PaymentEvent) error {
	rec := paymentEventModel{
		ProviderEventID: row.ProviderEventID, Gateway: row.Gateway, UserID: row.UserID, Amount: row.Amount,
		Currency: row.Currency, Kind: string(row.Kind), OccurredAt: row.OccurredAt, ProcessedAt: row.ProcessedAt,
	}
	err := r.db.WithContext(ctx).Create(&rec).Error
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *paymentEventRepository) GetByProviderEventID(ctx context.Context, providerEventID string) (domain.PaymentEvent, error) {
	var rec paymentEventModel
	if err := r.db.WithContext(ctx).Where("provider_event_id = ?", providerEventID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.PaymentEvent{}, domain.ErrNotFound
		}
		return domain.PaymentEvent{}, err
	}
	return toDomainPaymentEvent(rec), nil
}

func (r *paymentEventRepository) ListUnreconciled(ctx context.Context, limit int) ([]domain.PaymentEvent, error) {
	var rows []paymentEventModel
	err := r.db.WithContext(ctx).
		Table("payment_events AS pe").
		Select("pe.*").
		Joins("LEFT JOIN commission_entries ce ON ce.payment_event_id = pe.provider_event_id").
		Where("ce.commission_id IS NULL").
		Order("pe.processed_at asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.PaymentEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainPaymentEvent(row))
	}
	return out, nil
}

type ledgerRepository struct {
	db *gorm.DB
}

func (r *ledgerRepository) AppendCommission(ctx context.Context, entry domain.CommissionEntry, mark domain.ReferralMark) error {
	return storageErr(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ref referralModel
		if mark != domain.ReferralMarkNone {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("affiliate_id = ? AND user_id = ?", entry.AffiliateID, entry.ReferredUserID).
				Take(&ref).Error; err != nil {
				if isNotFound(err) {
					return fmt.Errorf("%w: referral", domain.ErrNotFound)
				}
				return err
			}
			if mark == domain.ReferralMarkFreeReferralEarned && ref.FreeReferralEarned {
				return domain.ErrDuplicateCommission
			}
		}
		rec := commissionEntryModel{
			CommissionID: entry.CommissionID, AffiliateID: entry.AffiliateID, ReferredUserID: entry.ReferredUserID,
			PaymentEventID: entry.PaymentEventID, Rule: string(entry.Rule), Rate: entry.Rate, Amount: entry.Amount,
			Currency: entry.Currency, Status: string(entry.Status), PayableAt: entry.PayableAt, CreatedAt: entry.CreatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateCommission
			}
			return err
		}
		switch mark {
		case domain.ReferralMarkFreeReferralEarned:
			return tx.Model(&referralModel{}).Where("referral_id = ?", ref.ReferralID).Update("free_referral_earned", true).Error
		case domain.ReferralMarkSubscriptionEnabled:
			return tx.Model(&referralModel{}).Where("referral_id = ?", ref.ReferralID).Update("subscription_commission_enabled", true).Error
		}
		return nil
	}))
}

func (r *ledgerRepository) ListCommissions(ctx context.Context, affiliateID string, limit int) ([]domain.CommissionEntry, error) {
	var rows []commissionEntryModel
	if err := r.db.WithContext(ctx).
		Where("affiliate_id = ?", affiliateID).
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.CommissionEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainCommission(row))
	}
	return out, nil
}

func (r *ledgerRepository) Balance(ctx context.Context, affiliateID string, at time.Time) (domain.Balance, error) {
	balance, err := balanceOf(r.db.WithContext(ctx), affiliateID, at)
	return balance, storageErr(err)
}

// balanceOf sums entries, debits and approved-unpaid payouts on tx. Callers that act on the result hold
// the affiliate row lock.
func balanceOf(tx *gorm.DB, affiliateID string, at time.Time) (domain.Balance, error) {
	var payable, pending, debited decimal.Decimal
	if err := tx.Model(&commissionEntryModel{}).
		Select("COALESCE(SUM(amount) FILTER (WHERE status = ?), 0), COALESCE(SUM(amount) FILTER (WHERE status <> ?), 0)",
			string(domain.CommissionStatusPayable), string(domain.CommissionStatusPayable)).
		Where("affiliate_id = ?", affiliateID).
		Row().Scan(&payable, &pending); err != nil {
		return domain.Balance{}, err
	}
	if err := tx.Model(&ledgerDebitModel{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("affiliate_id = ?", affiliateID).
		Row().Scan(&debited); err != nil {
		return domain.Balance{}, err
	}
	var reserved decimal.Decimal
	if err := tx.Model(&payoutRequestModel{}).
		Select("COALESCE(SUM(requested_amount), 0)").
		Where("affiliate_id = ? AND status = ?", affiliateID, string(domain.PayoutStatusApproved)).
		Row().Scan(&reserved); err != nil {
		return domain.Balance{}, err
	}
	return domain.NewBalance(affiliateID, payable, pending, debited, reserved, at), nil
}

func lockAffiliate(tx *gorm.DB, affiliateID string) error {
	var rec affiliateModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("affiliate_id = ?", affiliateID).Take(&rec).Error
	if isNotFound(err) {
		return domain.ErrNotFound
	}
	return err
}

func lockPayout(tx *gorm.DB, payoutRequestID string) (payoutRequestModel, error) {
	var rec payoutRequestModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("payout_request_id = ?", payoutRequestID).Take(&rec).Error
	if isNotFound(err) {
		return rec, domain.ErrNotFound
	}
	return rec, err
}

// Debit serializes on the affiliate row so that two payouts of one affiliate
// can never both pass the balance check.
func (r *ledgerRepository) Debit(ctx context.Context, in domain.DebitInput) (domain.PayoutRequest, error) {
	var out payoutRequestModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockAffiliate(tx, in.AffiliateID); err != nil {
			return err
		}
		rec, err := lockPayout(tx, in.PayoutRequestID)
		if err != nil {
			return err
		}
		if rec.Status != string(domain.PayoutStatusApproved) {
			return fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, rec.Status)
		}
		if rec.AffiliateID != in.AffiliateID {
			return domain.ErrInvalidInput
		}
		balance, err := balanceOf(tx, in.AffiliateID, in.At)
		if err != nil {
			return err
		}
		// rec is still approved here, so its own hold is added back.
		available := balance.Available.Add(rec.RequestedAmount)
		if available.LessThan(in.Amount) {
			return fmt.Errorf("%w: available %s, requested %s", domain.ErrInsufficientBalance,
				available.StringFixed(domain.MoneyScale), in.Amount.StringFixed(domain.MoneyScale))
		}
		if err := tx.Create(&ledgerDebitModel{
			DebitID: in.DebitID, AffiliateID: in.AffiliateID, PayoutRequestID: in.PayoutRequestID,
			Amount: in.Amount, CreatedAt: in.At,
		}).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}
		at := in.At
		rec.Status = string(domain.PayoutStatusPaid)
		rec.Fee = in.Fee
		rec.NetAmount = in.NetAmount
		rec.ProcessedAt = &at
		rec.PaidAt = &at
		if in.ActorID != "" {
			rec.ReviewedBy = in.ActorID
		}
		if err := tx.Model(&payoutRequestModel{}).Where("payout_request_id = ?", rec.PayoutRequestID).Updates(map[string]any{
			"status": rec.Status, "fee": rec.Fee, "net_amount": rec.NetAmount,
			"processed_at": at, "paid_at": at, "reviewed_by": rec.ReviewedBy,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&affiliateModel{}).Where("affiliate_id = ?", in.AffiliateID).Updates(map[string]any{
			"total_withdrawn": gorm.Expr("total_withdrawn + ?", in.Amount),
			"updated_at":      at,
		}).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.PayoutRequest{}, storageErr(err)
	}
	return toDomainPayout(out), nil
}

func (r *ledgerRepository) ReleaseMatured(ctx context.Context, now time.Time, limit int) (int, error) {
	res := r.db.WithContext(ctx).Exec(`
UPDATE commission_entries SET status = ?
WHERE commission_id IN (
    SELECT commission_id FROM commission_entries
    WHERE status = ? AND payable_at <= ?
    ORDER BY payable_at
    LIMIT ?
    FOR UPDATE SKIP LOCKED
)`, string(domain.CommissionStatusPayable), string(domain.CommissionStatusPending), now, limit)
	return int(res.RowsAffected), res.Error
}

type payoutRepository struct {
	db *gorm.DB
}

func (r *payoutRepository) Create(ctx context.Context, row domain.PayoutRequest) error {
	rec := fromDomainPayout(row)
	err := r.db.WithContext(ctx).Create(&rec).Error
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return storageErr(err)
}

func (r *payoutRepository) GetByID(ctx context.Context, payoutRequestID string) (domain.PayoutRequest, error) {
	var rec payoutRequestModel
	if err := r.db.WithContext(ctx).Where("payout_request_id = ?", payoutRequestID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.PayoutRequest{}, domain.ErrNotFound
		}
		return domain.PayoutRequest{}, err
	}
	return toDomainPayout(rec), nil
}

func (r *payoutRepository) ListByAffiliate(ctx context.Context, affiliateID string) ([]domain.PayoutRequest, error) {
	var rows []payoutRequestModel
	if err := r.db.WithContext(ctx).Where("affiliate_id = ?", affiliateID).Order("requested_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainPayouts(rows), nil
}

func (r *payoutRepository) ListByStatus(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutRequest, error) {
	var rows []payoutRequestModel
	if err := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("requested_at asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainPayouts(rows), nil
}

func toDomainPayouts(rows []payoutRequestModel) []domain.PayoutRequest {
	out := make([]domain.PayoutRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainPayout(row))
	}
	return out
}

func (r *payoutRepository) Transition(ctx context.Context, t domain.PayoutTransition) (domain.PayoutRequest, error) {
	if err := t.Validate(); err != nil {
		return domain.PayoutRequest{}, err
	}
	if t.To == domain.PayoutStatusPaid {
		return domain.PayoutRequest{}, fmt.Errorf("%w: paid is reached through the ledger debit", domain.ErrInvalidTransition)
	}
	var out payoutRequestModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The affiliate lock is taken before the payout lock, the same order
		// Debit uses.
		var current payoutRequestModel
		if err := tx.Select("affiliate_id").Where("payout_request_id = ?", t.PayoutRequestID).Take(&current).Error; err != nil {
			if isNotFound(err) {
				return domain.ErrNotFound
			}
			return err
		}
		if t.RequireBalance.IsPositive() {
			if err := lockAffiliate(tx, current.AffiliateID); err != nil {
				return err
			}
		}
		rec, err := lockPayout(tx, t.PayoutRequestID)
		if err != nil {
			return err
		}
		if rec.Status != string(t.From) {
			return fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, rec.Status)
		}
		if t.RequireBalance.IsPositive() {
			balance, err := balanceOf(tx, rec.AffiliateID, t.At)
			if err != nil {
				return err
			}
			if balance.Available.LessThan(t.RequireBalance) {
				return fmt.Errorf("%w: available %s", domain.ErrInsufficientBalance, balance.Available.StringFixed(domain.MoneyScale))
			}
		}
		at := t.At
		updates := map[string]any{"status": string(t.To), "reviewed_by": t.ActorID}
		rec.Status = string(t.To)
		rec.ReviewedBy = t.ActorID
		if t.Notes != "" {
			updates["admin_notes"] = t.Notes
			rec.AdminNotes = t.Notes
		}
		switch t.To {
		case domain.PayoutStatusApproved:
			updates["approved_at"] = at
			rec.ApprovedAt = &at
		case domain.PayoutStatusRejected:
			updates["processed_at"] = at
			rec.ProcessedAt = &at
		}
		if err := tx.Model(&payoutRequestModel{}).Where("payout_request_id = ?", rec.PayoutRequestID).Updates(updates).Error; err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return domain.PayoutRequest{}, storageErr(err)
	}
	return toDomainPayout(out), nil
}

var (
	_ ports.PaymentEventRepository = (*paymentEventRepository)(nil)
	_ ports.LedgerRepository       = (*ledgerRepository)(nil)
	_ ports.PayoutRepository       = (*payoutRepository)(nil)
)
