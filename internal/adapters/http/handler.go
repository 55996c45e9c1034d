package http

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

const (
	clickCookieName   = "affiliate_click_id"
	clickCookieMaxAge = 30 * 24 * 3600
	maxWebhookBody    = 1 << 20
	defaultListLimit  = 100
)

type Handler struct {
	service    *application.Service
	signatures ports.SignatureVerifier
	nowFn      func() time.Time
}

func NewHandler(service *application.Service, signatures ports.SignatureVerifier) *Handler {
	return &Handler{service: service, signatures: signatures, nowFn: time.Now}
}

func (h *Handler) trackClickPost(w http.ResponseWriter, r *http.Request) {
	var req contracts.TrackClickRequest
	// A malformed body is still a click attempt; it just resolves to nothing.
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req)
	out := h.service.TrackClick(r.Context(), application.TrackClickInput{
		Code:        req.Code,
		LandingURL:  req.LandingURL,
		ReferrerURL: firstNonEmpty(req.ReferrerURL, r.Header.Get("Referer")),
		ClientIP:    clientIP(r),
		UserAgent:   strings.TrimSpace(r.UserAgent()),
	})
	if out.ClickID != "" {
		setClickCookie(w, out.ClickID)
	}
	writeSuccess(w, http.StatusOK, contracts.TrackClickResponse{Tracked: out.Tracked, ClickID: out.ClickID})
}

func (h *Handler) trackClickRedirect(w http.ResponseWriter, r *http.Request) {
	out := h.service.TrackClick(r.Context(), application.TrackClickInput{
		Code:        chi.URLParam(r, "code"),
		LandingURL:  r.URL.Query().Get("to"),
		ReferrerURL: strings.TrimSpace(r.Header.Get("Referer")),
		ClientIP:    clientIP(r),
		UserAgent:   strings.TrimSpace(r.UserAgent()),
	})
	if out.ClickID != "" {
		setClickCookie(w, out.ClickID)
	}
	http.Redirect(w, r, out.RedirectURL, http.StatusFound)
}

func (h *Handler) registerSignup(w http.ResponseWriter, r *http.Request) {
	var req contracts.SignupRequest
	if !decodeBody(w, r, "register_signup", &req) {
		return
	}
	signupAt, err := parseOptionalTime(req.SignupAt)
	if err != nil {
		writeDomainError(w, r, "register_signup", err)
		return
	}
	clickID := firstNonEmpty(req.ClickID, cookieValue(r, clickCookieName))
	out, err := h.service.RegisterSignup(r.Context(), actorFromRequest(r), application.SignupInput{
		UserID:       req.UserID,
		SignupAt:     signupAt,
		ReferralCode: req.ReferralCode,
		ClickID:      clickID,
	})
	if err != nil {
		writeDomainError(w, r, "register_signup", err)
		return
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) recordMilestone(w http.ResponseWriter, r *http.Request) {
	var req contracts.MilestoneRequest
	if !decodeBody(w, r, "record_milestone", &req) {
		return
	}
	occurredAt, err := parseOptionalTime(req.OccurredAt)
	if err != nil {
		writeDomainError(w, r, "record_milestone", err)
		return
	}
	out, err := h.service.RecordMilestone(r.Context(), actorFromRequest(r), application.MilestoneInput{
		UserID:     req.UserID,
		Milestone:  req.Milestone,
		OccurredAt: occurredAt,
	})
	if err != nil {
		writeDomainError(w, r, "record_milestone", err)
		return
	}
	writeSuccess(w, http.StatusOK, out)
}

func (h *Handler) applyAffiliate(w http.ResponseWriter, r *http.Request) {
	var req contracts.ApplyAffiliateRequest
	if !decodeBody(w, r, "apply_affiliate", &req) {
		return
	}
	row, err := h.service.ApplyAffiliate(r.Context(), actorFromRequest(r), req.Code)
	if err != nil {
		writeDomainError(w, r, "apply_affiliate", err)
		return
	}
	writeSuccess(w, http.StatusCreated, h.toAffiliateResponse(row))
}

func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.GetDashboard(r.Context(), actorFromRequest(r))
	if err != nil {
		writeDomainError(w, r, "get_dashboard", err)
		return
	}
	writeSuccess(w, http.StatusOK, contracts.DashboardResponse{
		Affiliate:        h.toAffiliateResponse(out.Affiliate),
		Balance:          money(out.Balance.Available),
		TotalEarned:      money(out.Balance.TotalEarned),
		PendingEarned:    money(out.Balance.PendingEarned),
		TotalWithdrawn:   money(out.Affiliate.TotalWithdrawn),
		ApprovedUnpaid:   money(out.Balance.Reserved),
		TotalClicks:      out.TotalClicks,
		TotalReferrals:   out.TotalReferrals,
		MinimumPayout:    money(out.MinimumPayout),
		PayoutFeePercent: out.PayoutFee.String(),
		Currency:         out.Balance.Currency,
	})
}

func (h *Handler) listCommissions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListCommissions(r.Context(), actorFromRequest(r), limitParam(r))
	if err != nil {
		writeDomainError(w, r, "list_commissions", err)
		return
	}
	items := make([]contracts.CommissionResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, contracts.CommissionResponse{
			CommissionID:   row.CommissionID,
			ReferredUserID: row.ReferredUserID,
			PaymentEventID: row.PaymentEventID,
			Rule:           string(row.Rule),
			Amount:         money(row.Amount),
			Currency:       row.Currency,
			Status:         string(row.Status),
			PayableAt:      formatTime(row.PayableAt),
			CreatedAt:      formatTime(row.CreatedAt),
		})
	}
	writeSuccess(w, http.StatusOK, contracts.CommissionListResponse{Items: items})
}

func (h *Handler) approveAffiliate(w http.ResponseWriter, r *http.Request) {
	h.reviewAffiliate(w, r, true)
}

func (h *Handler) rejectAffiliate(w http.ResponseWriter, r *http.Request) {
	h.reviewAffiliate(w, r, false)
}

func (h *Handler) reviewAffiliate(w http.ResponseWriter, r *http.Request, approve bool) {
	var req contracts.ReviewAffiliateRequest
	if r.ContentLength != 0 && !decodeBody(w, r, "review_affiliate", &req) {
		return
	}
	row, err := h.service.ReviewAffiliate(r.Context(), actorFromRequest(r), chi.URLParam(r, "affiliate_id"), approve, req.Notes)
	if err != nil {
		writeDomainError(w, r, "review_affiliate", err)
		return
	}
	writeSuccess(w, http.StatusOK, h.toAffiliateResponse(row))
}

func (h *Handler) listUnreconciledPayments(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListUnreconciledPayments(r.Context(), actorFromRequest(r), limitParam(r))
	if err != nil {
		writeDomainError(w, r, "list_unreconciled_payments", err)
		return
	}
	items := make([]contracts.PaymentEventResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, contracts.PaymentEventResponse{
			ProviderEventID: row.ProviderEventID,
			Gateway:         row.Gateway,
			UserID:          row.UserID,
			Amount:          money(row.Amount),
			Currency:        row.Currency,
			Kind:            string(row.Kind),
			OccurredAt:      formatTime(row.OccurredAt),
			ProcessedAt:     formatTime(row.ProcessedAt),
		})
	}
	writeSuccess(w, http.StatusOK, contracts.PaymentEventListResponse{Items: items})
}

func (h *Handler) toAffiliateResponse(row domain.Affiliate) contracts.AffiliateResponse {
	base := strings.TrimRight(h.service.Config().PublicBaseURL, "/")
	return contracts.AffiliateResponse{
		AffiliateID:    row.AffiliateID,
		UserID:         row.UserID,
		Code:           row.Code,
		ReferralURL:    base + "/r/" + row.Code,
		Status:         string(row.Status),
		TotalWithdrawn: money(row.TotalWithdrawn),
		CreatedAt:      formatTime(row.CreatedAt),
		UpdatedAt:      formatTime(row.UpdatedAt),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, operation string, out any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(out); err != nil {
		writeDomainError(w, r, operation, fmt.Errorf("%w: invalid json body", domain.ErrInvalidInput))
		return false
	}
	return true
}

func parseOptionalTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp must be RFC3339", domain.ErrInvalidInput)
	}
	return t.UTC(), nil
}

func limitParam(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > 500 {
		return 500
	}
	return n
}

func setClickCookie(w http.ResponseWriter, clickID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     clickCookieName,
		Value:    clickID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   clickCookieMaxAge,
	})
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
