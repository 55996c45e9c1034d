package contracts

type SuccessResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	// Balance and MinimumAmount are set on rejected payout requests.
	Balance       string `json:"balance,omitempty"`
	MinimumAmount string `json:"minimum_amount,omitempty"`
}

type WebhookResponse struct {
	Status            string `json:"status"`
	Duplicate         bool   `json:"duplicate"`
	CommissionCreated bool   `json:"commission_created"`
}

type TrackClickRequest struct {
	Code        string `json:"code"`
	LandingURL  string `json:"landing_url"`
	ReferrerURL string `json:"referrer_url"`
}

type TrackClickResponse struct {
	Tracked bool   `json:"tracked"`
	ClickID string `json:"click_id,omitempty"`
}

type SignupRequest struct {
	UserID       string `json:"user_id"`
	SignupAt     string `json:"signup_at"`
	ReferralCode string `json:"referral_code"`
	ClickID      string `json:"click_id"`
}

type MilestoneRequest struct {
	UserID     string `json:"user_id"`
	Milestone  string `json:"milestone"`
	OccurredAt string `json:"occurred_at"`
}

type ApplyAffiliateRequest struct {
	Code string `json:"code"`
}

type AffiliateResponse struct {
	AffiliateID    string `json:"affiliate_id"`
	UserID         string `json:"user_id"`
	Code           string `json:"code"`
	ReferralURL    string `json:"referral_url"`
	Status         string `json:"status"`
	TotalWithdrawn string `json:"total_withdrawn"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type ReviewAffiliateRequest struct {
	Notes string `json:"notes"`
}

type DashboardResponse struct {
	Affiliate        AffiliateResponse `json:"affiliate"`
	Balance          string            `json:"balance"`
	TotalEarned      string            `json:"total_earned"`
	PendingEarned    string            `json:"pending_earned"`
	TotalWithdrawn   string            `json:"total_withdrawn"`
	ApprovedUnpaid   string            `json:"approved_unpaid"`
	TotalClicks      int64             `json:"total_clicks"`
	TotalReferrals   int64             `json:"total_referrals"`
	MinimumPayout    string            `json:"minimum_payout"`
	PayoutFeePercent string            `json:"payout_fee_percent"`
	Currency         string            `json:"currency"`
}

type CommissionResponse struct {
	CommissionID   string `json:"commission_id"`
	ReferredUserID string `json:"referred_user_id"`
	PaymentEventID string `json:"payment_event_id"`
	Rule           string `json:"rule"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	PayableAt      string `json:"payable_at"`
	CreatedAt      string `json:"created_at"`
}

type CommissionListResponse struct {
	Items []CommissionResponse `json:"items"`
}

type PayoutRequestCreate struct {
	Amount string `json:"amount"`
}

type PayoutReviewRequest struct {
	Notes string `json:"notes"`
}

type PayoutResponse struct {
	PayoutRequestID string `json:"payout_request_id"`
	AffiliateID     string `json:"affiliate_id"`
	RequestedAmount string `json:"requested_amount"`
	Fee             string `json:"fee"`
	NetAmount       string `json:"net_amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	AdminNotes      string `json:"admin_notes,omitempty"`
	ReviewedBy      string `json:"reviewed_by,omitempty"`
	RequestedAt     string `json:"requested_at"`
	ApprovedAt      string `json:"approved_at,omitempty"`
	ProcessedAt     string `json:"processed_at,omitempty"`
	PaidAt          string `json:"paid_at,omitempty"`
}

type PayoutListResponse struct {
	Items []PayoutResponse `json:"items"`
}

type PaymentEventResponse struct {
	ProviderEventID string `json:"provider_event_id"`
	Gateway         string `json:"gateway"`
	UserID          string `json:"user_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Kind            string `json:"kind"`
	OccurredAt      string `json:"occurred_at"`
	ProcessedAt     string `json:"processed_at"`
}

type PaymentEventListResponse struct {
	Items []PaymentEventResponse `json:"items"`
}
