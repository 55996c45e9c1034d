package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/domain"
)

// RegisterSignup stores the user's signup time and records the first referral
// they arrived with. Attribution is not locked here; the first in-window
// payment does that.
func (s *Service) RegisterSignup(ctx context.Context, actor Actor, in SignupInput) (SignupResult, error) {
	if err := requireSubject(actor); err != nil {
		return SignupResult{}, err
	}
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		in.UserID = actor.SubjectID
	}
	if in.UserID != actor.SubjectID && !s.policy.CanApprovePayouts(actor) {
		return SignupResult{}, fmt.Errorf("%w: cannot register another user", domain.ErrForbidden)
	}
	signupAt := in.SignupAt
	if signupAt.IsZero() {
		signupAt = s.nowFn()
	}
	signupAt = signupAt.UTC()

	user, err := s.users.Register(ctx, domain.User{UserID: in.UserID, SignupAt: &signupAt, CreatedAt: s.nowFn()})
	if err != nil {
		return SignupResult{}, err
	}

	code := strings.TrimSpace(in.ReferralCode)
	seenAt := signupAt
	clickID := strings.TrimSpace(in.ClickID)
	if clickID != "" {
		click, clickErr := s.clicks.GetByID(ctx, clickID)
		switch {
		case clickErr == nil:
			if code == "" {
				code = click.Code
			}
			seenAt = click.ClickedAt
			if _, err := s.clicks.MarkConverted(ctx, clickID, in.UserID, s.nowFn()); err != nil {
				return SignupResult{}, err
			}
		case errors.Is(clickErr, domain.ErrNotFound):
			clickID = ""
		default:
			return SignupResult{}, clickErr
		}
	}

	attr, err := s.Resolver.Resolve(ctx, ResolveInput{
		UserID:        in.UserID,
		CandidateCode: code,
		ClickID:       clickID,
		SeenAt:        seenAt,
	})
	if err != nil {
		return SignupResult{}, err
	}
	s.logger.InfoContext(ctx, "signup registered",
		"module", "application.signup",
		"layer", "application",
		"operation", "register_signup",
		"outcome", "success",
		"user_id", in.UserID,
		"affiliate_id", attr.AffiliateID,
	)
	return SignupResult{UserID: user.UserID, SignupAt: user.SignupAt, AffiliateID: attr.AffiliateID, Locked: attr.Locked}, nil
}

// RecordMilestone grants the one-off free-referral bonus when a referred user
// completes a qualifying milestone inside the free-referral window.
func (s *Service) RecordMilestone(ctx context.Context, actor Actor, in MilestoneInput) (MilestoneResult, error) {
	if err := requireSubject(actor); err != nil {
		return MilestoneResult{}, err
	}
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		in.UserID = actor.SubjectID
	}
	if in.UserID != actor.SubjectID && !s.policy.CanApprovePayouts(actor) {
		return MilestoneResult{}, fmt.Errorf("%w: cannot record milestones for another user", domain.ErrForbidden)
	}
	if strings.TrimSpace(in.Milestone) == "" {
		return MilestoneResult{}, fmt.Errorf("%w: milestone is required", domain.ErrInvalidInput)
	}
	occurredAt := in.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.nowFn()
	}

	user, err := s.users.GetByID(ctx, in.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return MilestoneResult{}, nil
	}
	if err != nil {
		return MilestoneResult{}, err
	}
	ref, err := s.creditedReferral(ctx, user)
	if errors.Is(err, domain.ErrNotFound) {
		return MilestoneResult{}, nil
	}
	if err != nil {
		return MilestoneResult{}, err
	}

	decision := domain.CalculateCommission(domain.CommissionInput{
		Trigger:    domain.TriggerMilestone,
		Currency:   "USD",
		OccurredAt: occurredAt.UTC(),
		SignupAt:   user.SignupAt,
		Referral:   &ref,
		At:         s.nowFn(),
	}, s.cfg.CommissionConfig())
	if decision.Entry == nil {
		return MilestoneResult{}, nil
	}
	entry, err := s.Ledger.Append(ctx, *decision.Entry, decision.Mark)
	if isDuplicateCommission(err) {
		return MilestoneResult{}, nil
	}
	if err != nil {
		return MilestoneResult{}, err
	}
	return MilestoneResult{CommissionCreated: true, CommissionID: entry.CommissionID}, nil
}

// creditedReferral is the locked-in referral when there is one, otherwise the
// earliest referral of the user.
func (s *Service) creditedReferral(ctx context.Context, user domain.User) (domain.Referral, error) {
	if user.IsLocked() {
		return s.referrals.Get(ctx, user.ReferrerAffiliateID, user.UserID)
	}
	return s.referrals.EarliestForUser(ctx, user.UserID)
}

// ReleaseMaturedCommissions promotes held commissions to payable. The worker
// calls it on a ticker.
func (s *Service) ReleaseMaturedCommissions(ctx context.Context) (int, error) {
	started := time.Now()
	n, err := s.Ledger.ReleaseMatured(ctx, s.cfg.OutboxFlushBatchSize)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "matured commissions released",
			"module", "application.ledger",
			"layer", "application",
			"operation", "release_matured",
			"outcome", "success",
			"count", n,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
	return n, nil
}
