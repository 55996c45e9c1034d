package postgres

import (
	"github.com/viralforge/affiliate-ledger/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Events      ports.EventStore
	Users       ports.UserRepository
	Affiliates  ports.AffiliateRepository
	Links       ports.ReferralLinkRepository
	Clicks      ports.ClickRepository
	Referrals   ports.ReferralRepository
	Payments    ports.PaymentEventRepository
	Ledger      ports.LedgerRepository
	Payouts     ports.PayoutRepository
	AuditLogs   ports.AuditLogRepository
	Idempotency ports.IdempotencyRepository
	Outbox      ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Events:      &eventStore{db: db},
		Users:       &userRepository{db: db},
		Affiliates:  &affiliateRepository{db: db},
		Links:       &referralLinkRepository{db: db},
		Clicks:      &clickRepository{db: db},
		Referrals:   &referralRepository{db: db},
		Payments:    &paymentEventRepository{db: db},
		Ledger:      &ledgerRepository{db: db},
		Payouts:     &payoutRepository{db: db},
		AuditLogs:   &auditLogRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
		Outbox:      &outboxRepository{db: db},
	}
}
