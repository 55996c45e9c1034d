package domain

const (
	CanonicalEventClassDomain        = "domain"
	CanonicalEventClassAnalyticsOnly = "analytics_only"
)

const (
	EventAffiliateClickTracked        = "affiliate.click.tracked"
	EventAffiliateReferralLocked      = "affiliate.referral.locked"
	EventAffiliateCommissionCreated   = "affiliate.commission.created"
	EventAffiliateApplicationReviewed = "affiliate.application.reviewed"
	EventAffiliatePayoutRequested     = "affiliate.payout.requested"
	EventAffiliatePayoutApproved      = "affiliate.payout.approved"
	EventAffiliatePayoutRejected      = "affiliate.payout.rejected"
	EventAffiliatePayoutPaid          = "affiliate.payout.paid"
)

// Inbound topics carrying already-verified payment events from billing.
const (
	EventBillingPaymentSucceeded = "billing.payment.succeeded"
)

func IsCanonicalInputEvent(eventType string) bool {
	return eventType == EventBillingPaymentSucceeded
}

func IsCanonicalEmittedEvent(eventType string) bool {
	switch eventType {
	case EventAffiliateClickTracked, EventAffiliateReferralLocked, EventAffiliateCommissionCreated,
		EventAffiliateApplicationReviewed, EventAffiliatePayoutRequested, EventAffiliatePayoutApproved,
		EventAffiliatePayoutRejected, EventAffiliatePayoutPaid:
		return true
	default:
		return false
	}
}

func CanonicalEventClass(eventType string) string {
	switch eventType {
	case EventAffiliateClickTracked:
		return CanonicalEventClassAnalyticsOnly
	default:
		if IsCanonicalEmittedEvent(eventType) {
			return CanonicalEventClassDomain
		}
		return ""
	}
}

func CanonicalPartitionKeyPath(eventType string) string {
	if IsCanonicalEmittedEvent(eventType) {
		return "data.affiliate_id"
	}
	return ""
}
