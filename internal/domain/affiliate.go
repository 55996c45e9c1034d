package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type AffiliateStatus string

const (
	AffiliateStatusPending  AffiliateStatus = "pending"
	AffiliateStatusApproved AffiliateStatus = "approved"
	AffiliateStatusRejected AffiliateStatus = "rejected"
)

type Affiliate struct {
	AffiliateID    string          `json:"affiliate_id"`
	UserID         string          `json:"user_id"`
	Code           string          `json:"code"`
	Status         AffiliateStatus `json:"status"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	ReviewedBy     string          `json:"reviewed_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (a Affiliate) CanEarn() bool { return a.Status == AffiliateStatusApproved }

// User is the slice of a platform user this subsystem owns: signup time and the
// locked-in referrer.
type User struct {
	UserID              string     `json:"user_id"`
	SignupAt            *time.Time `json:"signup_at,omitempty"`
	ReferrerAffiliateID string     `json:"referrer_affiliate_id,omitempty"`
	LockedAt            *time.Time `json:"locked_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

func (u User) IsLocked() bool { return u.ReferrerAffiliateID != "" }

// CanRefer reports ErrSelfReferral when userID owns the affiliate account.
func (a Affiliate) CanRefer(userID string) error {
	if a.UserID == userID {
		return ErrSelfReferral
	}
	return nil
}

type ReferralLink struct {
	Code        string    `json:"code"`
	AffiliateID string    `json:"affiliate_id"`
	ClicksCount int64     `json:"clicks_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type Click struct {
	ClickID           string     `json:"click_id"`
	AffiliateID       string     `json:"affiliate_id"`
	Code              string     `json:"code"`
	IPHash            string     `json:"ip_hash"`
	UserAgent         string     `json:"user_agent"`
	LandingURL        string     `json:"landing_url"`
	ReferrerURL       string     `json:"referrer_url"`
	ClickedAt         time.Time  `json:"clicked_at"`
	ConvertedToSignup bool       `json:"converted_to_signup"`
	ConvertedUserID   string     `json:"converted_user_id,omitempty"`
	ConvertedAt       *time.Time `json:"converted_at,omitempty"`
}

type ReferralSource string

const (
	ReferralSourceClick ReferralSource = "click"
	ReferralSourceCode  ReferralSource = "code"
)

type Referral struct {
	ReferralID                    string         `json:"referral_id"`
	AffiliateID                   string         `json:"affiliate_id"`
	UserID                        string         `json:"user_id"`
	Source                        ReferralSource `json:"source"`
	ClickID                       string         `json:"click_id,omitempty"`
	FirstSeenAt                   time.Time      `json:"first_seen_at"`
	SignupAt                      *time.Time     `json:"signup_at,omitempty"`
	FreeReferralEarned            bool           `json:"free_referral_earned"`
	SubscriptionCommissionEnabled bool           `json:"subscription_commission_enabled"`
}

type AuditLog struct {
	AuditLogID string            `json:"audit_log_id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Action     string            `json:"action"`
	ActorID    string            `json:"actor_id"`
	Notes      string            `json:"notes,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

var affiliateCodePattern = regexp.MustCompile(`^[a-z0-9_-]{3,32}$`)

// NormalizeAffiliateCode lower-cases and trims a code. ok is false when the
// result is not a well-formed code.
func NormalizeAffiliateCode(raw string) (string, bool) {
	code := strings.ToLower(strings.TrimSpace(raw))
	return code, affiliateCodePattern.MatchString(code)
}
