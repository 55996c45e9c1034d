package postgres

import "github.com/viralforge/affiliate-ledger/internal/domain"

func toDomainUser(m userModel) domain.User {
	out := domain.User{UserID: m.UserID, SignupAt: m.SignupAt, LockedAt: m.LockedAt, CreatedAt: m.CreatedAt}
	if m.ReferrerAffiliateID != nil {
		out.ReferrerAffiliateID = *m.ReferrerAffiliateID
	}
	return out
}

func toDomainAffiliate(m affiliateModel) domain.Affiliate {
	return domain.Affiliate{
		AffiliateID: m.AffiliateID, UserID: m.UserID, Code: m.Code, Status: domain.AffiliateStatus(m.Status),
		TotalWithdrawn: m.TotalWithdrawn, ReviewedBy: m.ReviewedBy, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func toDomainReferralLink(m referralLinkModel) domain.ReferralLink {
	return domain.ReferralLink{Code: m.Code, AffiliateID: m.AffiliateID, ClicksCount: m.ClicksCount, CreatedAt: m.CreatedAt}
}

func toDomainClick(m clickModel) domain.Click {
	return domain.Click{
		ClickID: m.ClickID, AffiliateID: m.AffiliateID, Code: m.Code, IPHash: m.IPHash, UserAgent: m.UserAgent,
		LandingURL: m.LandingURL, ReferrerURL: m.ReferrerURL, ClickedAt: m.ClickedAt,
		ConvertedToSignup: m.ConvertedToSignup, ConvertedUserID: m.ConvertedUserID, ConvertedAt: m.ConvertedAt,
	}
}

func toDomainReferral(m referralModel) domain.Referral {
	return domain.Referral{
		ReferralID: m.ReferralID, AffiliateID: m.AffiliateID, UserID: m.UserID, Source: domain.ReferralSource(m.Source),
		ClickID: m.ClickID, FirstSeenAt: m.FirstSeenAt, SignupAt: m.SignupAt,
		FreeReferralEarned: m.FreeReferralEarned, SubscriptionCommissionEnabled: m.SubscriptionCommissionEnabled,
	}
}

func toDomainPaymentEvent(m paymentEventModel) domain.PaymentEvent {
	return domain.PaymentEvent{
		ProviderEventID: m.ProviderEventID, Gateway: m.Gateway, UserID: m.UserID, Amount: m.Amount,
		Currency: m.Currency, Kind: domain.PaymentKind(m.Kind), OccurredAt: m.OccurredAt, ProcessedAt: m.ProcessedAt,
	}
}

func toDomainCommission(m commissionEntryModel) domain.CommissionEntry {
	return domain.CommissionEntry{
		CommissionID: m.CommissionID, AffiliateID: m.AffiliateID, ReferredUserID: m.ReferredUserID,
		PaymentEventID: m.PaymentEventID, Rule: domain.CommissionRule(m.Rule), Rate: m.Rate, Amount: m.Amount,
		Currency: m.Currency, Status: domain.CommissionStatus(m.Status), PayableAt: m.PayableAt, CreatedAt: m.CreatedAt,
	}
}

func toDomainPayout(m payoutRequestModel) domain.PayoutRequest {
	return domain.PayoutRequest{
		PayoutRequestID: m.PayoutRequestID, AffiliateID: m.AffiliateID, RequestedAmount: m.RequestedAmount,
		Fee: m.Fee, NetAmount: m.NetAmount, Currency: m.Currency, Status: domain.PayoutStatus(m.Status),
		AdminNotes: m.AdminNotes, ReviewedBy: m.ReviewedBy, RequestedAt: m.RequestedAt,
		ApprovedAt: m.ApprovedAt, ProcessedAt: m.ProcessedAt, PaidAt: m.PaidAt,
	}
}

func fromDomainPayout(row domain.PayoutRequest) payoutRequestModel {
	return payoutRequestModel{
		PayoutRequestID: row.PayoutRequestID, AffiliateID: row.AffiliateID, RequestedAmount: row.RequestedAmount,
		Fee: row.Fee, NetAmount: row.NetAmount, Currency: row.Currency, Status: string(row.Status),
		AdminNotes: row.AdminNotes, ReviewedBy: row.ReviewedBy, RequestedAt: row.RequestedAt,
		ApprovedAt: row.ApprovedAt, ProcessedAt: row.ProcessedAt, PaidAt: row.PaidAt,
	}
}
