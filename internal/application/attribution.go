package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

// AttributionResolver decides which affiliate, if any, is credited for a user.
// The first affiliate a user was associated with wins, and a successful
// in-window payment locks that affiliate onto the user permanently.
type AttributionResolver struct {
	users      ports.UserRepository
	affiliates ports.AffiliateRepository
	links      ports.ReferralLinkRepository
	referrals  ports.ReferralRepository
	cache      ports.CodeCache

	lockInWindow time.Duration
	cacheTTL     time.Duration

	emit   *eventEmitter
	logger *slog.Logger
	nowFn  func() time.Time
}

func (r *AttributionResolver) Resolve(ctx context.Context, in ResolveInput) (Attribution, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return Attribution{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	user, err := r.users.GetByID(ctx, in.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		user = domain.User{UserID: in.UserID}
	case err != nil:
		return Attribution{}, err
	}

	if user.IsLocked() {
		return r.lockedAttribution(ctx, user)
	}

	ref, err := r.referrals.EarliestForUser(ctx, in.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		created, ok, createErr := r.referralFromCode(ctx, user, in)
		if createErr != nil {
			return Attribution{}, createErr
		}
		if !ok {
			return Attribution{}, nil
		}
		ref = created
	case err != nil:
		return Attribution{}, err
	}

	if in.PaidAt == nil {
		return Attribution{AffiliateID: ref.AffiliateID, Referral: &ref}, nil
	}

	signupAt := user.SignupAt
	if signupAt == nil {
		signupAt = ref.SignupAt
	}
	if signupAt == nil || !domain.WithinWindow(*signupAt, *in.PaidAt, r.lockInWindow) {
		// Outside the window: no credit and no lock, but the referral is handed
		// back so an already-enabled sticky flag can still be honoured.
		r.logger.DebugContext(ctx, "payment outside lock-in window",
			"module", "application.attribution",
			"layer", "application",
			"operation", "resolve",
			"outcome", "not_attributed",
			"user_id", in.UserID,
			"affiliate_id", ref.AffiliateID,
		)
		return Attribution{Referral: &ref}, nil
	}
	if !in.PaidAmount.IsPositive() {
		// A zero-amount payment earns nothing and does not lock.
		return Attribution{Referral: &ref}, nil
	}

	locked, err := r.users.LockReferrer(ctx, in.UserID, ref.AffiliateID, r.nowFn())
	if err != nil {
		return Attribution{}, err
	}
	if locked.ReferrerAffiliateID != ref.AffiliateID {
		return r.lockedAttribution(ctx, locked)
	}
	_ = r.emit.referralLocked(ctx, locked)
	return Attribution{AffiliateID: ref.AffiliateID, Referral: &ref, Locked: true, NewlyLocked: true}, nil
}

func (r *AttributionResolver) lockedAttribution(ctx context.Context, user domain.User) (Attribution, error) {
	out := Attribution{AffiliateID: user.ReferrerAffiliateID, Locked: true}
	ref, err := r.referrals.Get(ctx, user.ReferrerAffiliateID, user.UserID)
	switch {
	case err == nil:
		out.Referral = &ref
	case !errors.Is(err, domain.ErrNotFound):
		return Attribution{}, err
	}
	return out, nil
}

// referralFromCode creates the first referral for a user from the candidate
// code. ok is false when the code does not credit anyone; bad codes from
// untrusted sources never fail the call.
func (r *AttributionResolver) referralFromCode(ctx context.Context, user domain.User, in ResolveInput) (domain.Referral, bool, error) {
	if strings.TrimSpace(in.CandidateCode) == "" {
		return domain.Referral{}, false, nil
	}
	aff, err := r.LookupCode(ctx, in.CandidateCode)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownReference) {
			r.logger.DebugContext(ctx, "referral code ignored",
				"module", "application.attribution",
				"layer", "application",
				"operation", "resolve",
				"outcome", "unknown_code",
				"user_id", user.UserID,
			)
			return domain.Referral{}, false, nil
		}
		return domain.Referral{}, false, err
	}
	if err := aff.CanRefer(user.UserID); errors.Is(err, domain.ErrSelfReferral) {
		r.logger.InfoContext(ctx, "self referral rejected",
			"module", "application.attribution",
			"layer", "application",
			"operation", "resolve",
			"outcome", "self_referral",
			"user_id", user.UserID,
			"affiliate_id", aff.AffiliateID,
		)
		return domain.Referral{}, false, nil
	}
	seenAt := in.SeenAt
	if seenAt.IsZero() {
		seenAt = r.nowFn()
	}
	source := domain.ReferralSourceCode
	if in.ClickID != "" {
		source = domain.ReferralSourceClick
	}
	ref, _, err := r.referrals.CreateIfAbsent(ctx, domain.Referral{
		ReferralID:  "ref_" + uuid.NewString(),
		AffiliateID: aff.AffiliateID,
		UserID:      user.UserID,
		Source:      source,
		ClickID:     in.ClickID,
		FirstSeenAt: seenAt,
		SignupAt:    user.SignupAt,
	})
	if err != nil {
		return domain.Referral{}, false, err
	}
	return ref, true, nil
}

// LookupCode maps a referral code to an affiliate that may earn. Anything
// else, malformed codes included, is domain.ErrUnknownReference.
func (r *AttributionResolver) LookupCode(ctx context.Context, raw string) (domain.Affiliate, error) {
	code, ok := domain.NormalizeAffiliateCode(raw)
	if !ok {
		return domain.Affiliate{}, domain.ErrUnknownReference
	}
	affiliateID := ""
	if r.cache != nil {
		if id, hit, err := r.cache.GetAffiliateID(ctx, code); err == nil && hit {
			affiliateID = id
		}
	}
	if affiliateID == "" {
		link, err := r.links.GetByCode(ctx, code)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Affiliate{}, domain.ErrUnknownReference
		}
		if err != nil {
			return domain.Affiliate{}, err
		}
		affiliateID = link.AffiliateID
		if r.cache != nil {
			_ = r.cache.SetAffiliateID(ctx, code, affiliateID, r.cacheTTL)
		}
	}
	aff, err := r.affiliates.GetByID(ctx, affiliateID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Affiliate{}, domain.ErrUnknownReference
	}
	if err != nil {
		return domain.Affiliate{}, err
	}
	if !aff.CanEarn() {
		return domain.Affiliate{}, domain.ErrUnknownReference
	}
	return aff, nil
}
