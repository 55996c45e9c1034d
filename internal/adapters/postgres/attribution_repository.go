package postgres

import (
	"context"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type eventStore struct {
	db *gorm.DB
}

// RecordIfNew relies on the primary key: exactly one concurrent insert of an
// id affects a row.
func (r *eventStore) RecordIfNew(ctx context.Context, providerEventID, source string, at time.Time) (bool, error) {
	rec := processedEventModel{ProviderEventID: providerEventID, Source: source, RecordedAt: at}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, storageErr(res.Error)
	}
	return res.RowsAffected == 1, nil
}

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) Register(ctx context.Context, row domain.User) (domain.User, error) {
	var out userModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := userModel{UserID: row.UserID, SignupAt: row.SignupAt, CreatedAt: row.CreatedAt}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
			return err
		}
		if row.SignupAt != nil {
			if err := tx.Model(&userModel{}).
				Where("user_id = ? AND signup_at IS NULL", row.UserID).
				Update("signup_at", *row.SignupAt).Error; err != nil {
				return err
			}
		}
		return tx.Where("user_id = ?", row.UserID).Take(&out).Error
	})
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(out), nil
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return toDomainUser(rec), nil
}

// LockReferrer is a conditional update; a concurrent winner is read back.
func (r *userRepository) LockReferrer(ctx context.Context, userID, affiliateID string, at time.Time) (domain.User, error) {
	var out userModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := userModel{UserID: userID, CreatedAt: at}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
			return err
		}
		if err := tx.Model(&userModel{}).
			Where("user_id = ? AND referrer_affiliate_id IS NULL", userID).
			Updates(map[string]any{"referrer_affiliate_id": affiliateID, "locked_at": at}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Take(&out).Error
	})
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(out), nil
}

type affiliateRepository struct {
	db *gorm.DB
}

func (r *affiliateRepository) Create(ctx context.Context, row domain.Affiliate, link domain.ReferralLink) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := affiliateModel{
			AffiliateID: row.AffiliateID, UserID: row.UserID, Code: row.Code, Status: string(row.Status),
			TotalWithdrawn: row.TotalWithdrawn, ReviewedBy: row.ReviewedBy, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		return tx.Create(&referralLinkModel{Code: link.Code, AffiliateID: link.AffiliateID, CreatedAt: link.CreatedAt}).Error
	})
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *affiliateRepository) GetByID(ctx context.Context, affiliateID string) (domain.Affiliate, error) {
	return r.take(ctx, "affiliate_id = ?", affiliateID)
}

func (r *affiliateRepository) GetByUserID(ctx context.Context, userID string) (domain.Affiliate, error) {
	return r.take(ctx, "user_id = ?", userID)
}

func (r *affiliateRepository) take(ctx context.Context, query string, arg string) (domain.Affiliate, error) {
	var rec affiliateModel
	if err := r.db.WithContext(ctx).Where(query, arg).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Affiliate{}, domain.ErrNotFound
		}
		return domain.Affiliate{}, err
	}
	return toDomainAffiliate(rec), nil
}

func (r *affiliateRepository) UpdateStatus(ctx context.Context, affiliateID string, from, to domain.AffiliateStatus, reviewedBy string, at time.Time) (domain.Affiliate, error) {
	var rec affiliateModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("affiliate_id = ?", affiliateID).
			Take(&rec).Error; err != nil {
			if isNotFound(err) {
				return domain.ErrNotFound
			}
			return err
		}
		if rec.Status != string(from) {
			return domain.ErrConflict
		}
		rec.Status = string(to)
		rec.ReviewedBy = reviewedBy
		rec.UpdatedAt = at
		return tx.Model(&affiliateModel{}).Where("affiliate_id = ?", affiliateID).Updates(map[string]any{
			"status": rec.Status, "reviewed_by": reviewedBy, "updated_at": at,
		}).Error
	})
	if err != nil {
		return domain.Affiliate{}, err
	}
	return toDomainAffiliate(rec), nil
}

type referralLinkRepository struct {
	db *gorm.DB
}

func (r *referralLinkRepository) GetByCode(ctx context.Context, code string) (domain.ReferralLink, error) {
	var rec referralLinkModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.ReferralLink{}, domain.ErrNotFound
		}
		return domain.ReferralLink{}, err
	}
	return toDomainReferralLink(rec), nil
}

func (r *referralLinkRepository) IncrementClicks(ctx context.Context, code string) error {
	res := r.db.WithContext(ctx).Model(&referralLinkModel{}).
		Where("code = ?", code).
		UpdateColumn("clicks_count", gorm.Expr("clicks_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *referralLinkRepository) SumClicksByAffiliate(ctx context.Context, affiliateID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&referralLinkModel{}).
		Select("COALESCE(SUM(clicks_count), 0)").
		Where("affiliate_id = ?", affiliateID).
		Row().Scan(&total)
	return total, err
}

type clickRepository struct {
	db *gorm.DB
}

func (r *clickRepository) Append(ctx context.Context, row domain.Click) error {
	rec := clickModel{
		ClickID: row.ClickID, AffiliateID: row.AffiliateID, Code: row.Code, IPHash: row.IPHash,
		UserAgent: row.UserAgent, LandingURL: row.LandingURL, ReferrerURL: row.ReferrerURL, ClickedAt: row.ClickedAt,
	}
	err := r.db.WithContext(ctx).Create(&rec).Error
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *clickRepository) GetByID(ctx context.Context, clickID string) (domain.Click, error) {
	var rec clickModel
	if err := r.db.WithContext(ctx).Where("click_id = ?", clickID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Click{}, domain.ErrNotFound
		}
		return domain.Click{}, err
	}
	return toDomainClick(rec), nil
}

func (r *clickRepository) MarkConverted(ctx context.Context, clickID, userID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&clickModel{}).
		Where("click_id = ? AND converted_to_signup = FALSE", clickID).
		Updates(map[string]any{"converted_to_signup": true, "converted_user_id": userID, "converted_at": at})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := r.GetByID(ctx, clickID); err != nil {
		return false, err
	}
	return false, nil
}

type referralRepository struct {
	db *gorm.DB
}

func (r *referralRepository) CreateIfAbsent(ctx context.Context, row domain.Referral) (domain.Referral, bool, error) {
	rec := referralModel{
		ReferralID: row.ReferralID, AffiliateID: row.AffiliateID, UserID: row.UserID, Source: string(row.Source),
		ClickID: row.ClickID, FirstSeenAt: row.FirstSeenAt, SignupAt: row.SignupAt,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "affiliate_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		return domain.Referral{}, false, res.Error
	}
	if res.RowsAffected == 1 {
		return toDomainReferral(rec), true, nil
	}
	existing, err := r.Get(ctx, row.AffiliateID, row.UserID)
	return existing, false, err
}

func (r *referralRepository) Get(ctx context.Context, affiliateID, userID string) (domain.Referral, error) {
	var rec referralModel
	if err := r.db.WithContext(ctx).Where("affiliate_id = ? AND user_id = ?", affiliateID, userID).Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Referral{}, domain.ErrNotFound
		}
		return domain.Referral{}, err
	}
	return toDomainReferral(rec), nil
}

func (r *referralRepository) EarliestForUser(ctx context.Context, userID string) (domain.Referral, error) {
	var rec referralModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("first_seen_at asc, referral_id asc").
		Take(&rec).Error; err != nil {
		if isNotFound(err) {
			return domain.Referral{}, domain.ErrNotFound
		}
		return domain.Referral{}, err
	}
	return toDomainReferral(rec), nil
}

func (r *referralRepository) CountByAffiliate(ctx context.Context, affiliateID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&referralModel{}).Where("affiliate_id = ?", affiliateID).Count(&n).Error
	return n, err
}

var (
	_ ports.EventStore             = (*eventStore)(nil)
	_ ports.UserRepository         = (*userRepository)(nil)
	_ ports.AffiliateRepository    = (*affiliateRepository)(nil)
	_ ports.ReferralLinkRepository = (*referralLinkRepository)(nil)
	_ ports.ClickRepository        = (*clickRepository)(nil)
	_ ports.ReferralRepository     = (*referralRepository)(nil)
)
