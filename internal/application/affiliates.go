package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

// ApplyAffiliate registers the caller as a pending affiliate owning code.
func (s *Service) ApplyAffiliate(ctx context.Context, actor Actor, rawCode string) (domain.Affiliate, error) {
	if err := requireSubject(actor); err != nil {
		return domain.Affiliate{}, err
	}
	code, ok := domain.NormalizeAffiliateCode(rawCode)
	if !ok {
		return domain.Affiliate{}, fmt.Errorf("%w: code must match [a-z0-9_-]{3,32}", domain.ErrInvalidInput)
	}
	if _, err := s.affiliates.GetByUserID(ctx, actor.SubjectID); err == nil {
		return domain.Affiliate{}, fmt.Errorf("%w: user already applied", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Affiliate{}, err
	}
	now := s.nowFn()
	row := domain.Affiliate{
		AffiliateID:    "aff_" + uuid.NewString(),
		UserID:         actor.SubjectID,
		Code:           code,
		Status:         domain.AffiliateStatusPending,
		TotalWithdrawn: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	link := domain.ReferralLink{Code: code, AffiliateID: row.AffiliateID, CreatedAt: now}
	if err := s.affiliates.Create(ctx, row, link); err != nil {
		return domain.Affiliate{}, err
	}
	_ = s.appendAudit(ctx, "affiliate", row.AffiliateID, "affiliate.applied", actor.SubjectID, "", map[string]string{"code": code})
	return row, nil
}

// ReviewAffiliate approves or rejects a pending application.
func (s *Service) ReviewAffiliate(ctx context.Context, actor Actor, affiliateID string, approve bool, notes string) (domain.Affiliate, error) {
	if err := requireSubject(actor); err != nil {
		return domain.Affiliate{}, err
	}
	if !s.policy.CanApprovePayouts(actor) {
		return domain.Affiliate{}, domain.ErrForbidden
	}
	affiliateID = strings.TrimSpace(affiliateID)
	if affiliateID == "" {
		return domain.Affiliate{}, fmt.Errorf("%w: affiliate id is required", domain.ErrInvalidInput)
	}
	to := domain.AffiliateStatusRejected
	if approve {
		to = domain.AffiliateStatusApproved
	}
	updated, err := s.affiliates.UpdateStatus(ctx, affiliateID, domain.AffiliateStatusPending, to, actor.SubjectID, s.nowFn())
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Affiliate{}, fmt.Errorf("%w: %w: affiliate %s", domain.ErrInvalidInput, domain.ErrUnknownReference, affiliateID)
	}
	if err != nil {
		return domain.Affiliate{}, err
	}
	_ = s.appendAudit(ctx, "affiliate", updated.AffiliateID, "affiliate."+string(to), actor.SubjectID, strings.TrimSpace(notes), nil)
	_ = s.emit.enqueue(ctx, domain.EventAffiliateApplicationReviewed, actor.RequestID, contracts.AffiliateApplicationReviewedPayload{
		AffiliateID: updated.AffiliateID, Status: string(updated.Status), ReviewedBy: actor.SubjectID,
		ReviewedAt: updated.UpdatedAt.UTC().Format(time.RFC3339),
	}, updated.AffiliateID)
	return updated, nil
}

func (s *Service) GetDashboard(ctx context.Context, actor Actor) (Dashboard, error) {
	aff, err := s.callerAffiliate(ctx, actor)
	if err != nil {
		return Dashboard{}, err
	}
	balance, err := s.Ledger.BalanceOf(ctx, aff.AffiliateID)
	if err != nil {
		return Dashboard{}, err
	}
	clicks, err := s.links.SumClicksByAffiliate(ctx, aff.AffiliateID)
	if err != nil {
		return Dashboard{}, err
	}
	referrals, err := s.referrals.CountByAffiliate(ctx, aff.AffiliateID)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		Affiliate:      aff,
		Balance:        balance,
		TotalClicks:    clicks,
		TotalReferrals: referrals,
		MinimumPayout:  s.cfg.MinimumPayoutAmount,
		PayoutFee:      s.cfg.PayoutFeePercent,
	}, nil
}

func (s *Service) ListCommissions(ctx context.Context, actor Actor, limit int) ([]domain.CommissionEntry, error) {
	aff, err := s.callerAffiliate(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.Ledger.List(ctx, aff.AffiliateID, limit)
}

func (s *Service) callerAffiliate(ctx context.Context, actor Actor) (domain.Affiliate, error) {
	if err := requireSubject(actor); err != nil {
		return domain.Affiliate{}, err
	}
	return s.affiliates.GetByUserID(ctx, actor.SubjectID)
}
