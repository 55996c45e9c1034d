package application

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

// TrackClick records a visit through a referral link. It never fails: an
// unknown code or a store error is logged and the visitor is still redirected.
func (s *Service) TrackClick(ctx context.Context, in TrackClickInput) TrackClickResult {
	result := TrackClickResult{RedirectURL: s.redirectURL(in.LandingURL)}
	aff, err := s.Resolver.LookupCode(ctx, in.Code)
	if err != nil {
		s.metrics.ClickTracked(false)
		if !errors.Is(err, domain.ErrUnknownReference) {
			s.logClickFailure(ctx, "lookup_code", err)
		}
		return result
	}
	code, _ := domain.NormalizeAffiliateCode(in.Code)
	now := s.nowFn()
	click := domain.Click{
		ClickID:     "clk_" + uuid.NewString(),
		AffiliateID: aff.AffiliateID,
		Code:        code,
		IPHash:      hashClientIP(in.ClientIP),
		UserAgent:   truncate(strings.TrimSpace(in.UserAgent), 512),
		LandingURL:  truncate(strings.TrimSpace(in.LandingURL), 2048),
		ReferrerURL: truncate(strings.TrimSpace(in.ReferrerURL), 2048),
		ClickedAt:   now,
	}
	if err := s.clicks.Append(ctx, click); err != nil {
		s.metrics.ClickTracked(false)
		s.logClickFailure(ctx, "append_click", err)
		return result
	}
	if err := s.links.IncrementClicks(ctx, code); err != nil {
		s.logClickFailure(ctx, "increment_clicks", err)
	}
	s.metrics.ClickTracked(true)
	_ = s.emit.enqueue(ctx, domain.EventAffiliateClickTracked, "", contracts.AffiliateClickTrackedPayload{
		AffiliateID: aff.AffiliateID, ClickID: click.ClickID, Code: code,
		ReferrerURL: click.ReferrerURL, IPHash: click.IPHash, TrackedAt: now.Format(time.RFC3339),
	}, aff.AffiliateID)

	result.ClickID = click.ClickID
	result.Tracked = true
	return result
}

// redirectURL only follows landing URLs on the public host.
func (s *Service) redirectURL(landing string) string {
	base := strings.TrimRight(s.cfg.PublicBaseURL, "/")
	landing = strings.TrimSpace(landing)
	if landing == "" {
		return base
	}
	if strings.HasPrefix(landing, "/") && !strings.HasPrefix(landing, "//") {
		return base + landing
	}
	if landing == base || strings.HasPrefix(landing, base+"/") {
		return landing
	}
	return base
}

func (s *Service) logClickFailure(ctx context.Context, step string, err error) {
	s.logger.WarnContext(ctx, "click tracking failed",
		"module", "application.clicks",
		"layer", "application",
		"operation", "track_click",
		"outcome", "failure",
		"step", step,
		"error", err,
	)
}

func hashClientIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	return sha256Hex(ip)
}

// truncate caps v at n bytes without splitting a UTF-8 sequence.
func truncate(v string, n int) string {
	if len(v) <= n {
		return v
	}
	for n > 0 && !utf8.RuneStart(v[n]) {
		n--
	}
	return v[:n]
}
