package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

// store is shared by every repository so that a multi-table change runs under
// one lock, the way the postgres adapter runs it in one transaction.
type store struct {
	mu sync.Mutex

	events      map[string]time.Time
	users       map[string]domain.User
	affiliates  map[string]domain.Affiliate
	affByUser   map[string]string
	links       map[string]domain.ReferralLink
	clicks      map[string]domain.Click
	referrals   map[string]domain.Referral
	payments    map[string]domain.PaymentEvent
	commissions []domain.CommissionEntry
	commByKey   map[string]int
	debits      []domain.LedgerDebit
	payouts     map[string]domain.PayoutRequest
	auditLogs   []domain.AuditLog
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRow
	outboxOrder []string
}

type outboxRow struct {
	record      ports.OutboxRecord
	publishedAt *time.Time
	lastError   string
}

type Repositories struct {
	Events      *EventStore
	Users       *UserRepository
	Affiliates  *AffiliateRepository
	Links       *ReferralLinkRepository
	Clicks      *ClickRepository
	Referrals   *ReferralRepository
	Payments    *PaymentEventRepository
	Ledger      *LedgerRepository
	Payouts     *PayoutRepository
	AuditLogs   *AuditLogRepository
	Idempotency *IdempotencyRepository
	Outbox      *OutboxRepository
}

func NewRepositories() *Repositories {
	s := &store{
		events:      map[string]time.Time{},
		users:       map[string]domain.User{},
		affiliates:  map[string]domain.Affiliate{},
		affByUser:   map[string]string{},
		links:       map[string]domain.ReferralLink{},
		clicks:      map[string]domain.Click{},
		referrals:   map[string]domain.Referral{},
		payments:    map[string]domain.PaymentEvent{},
		commByKey:   map[string]int{},
		payouts:     map[string]domain.PayoutRequest{},
		idempotency: map[string]ports.IdempotencyRecord{},
		outbox:      map[string]outboxRow{},
	}
	return &Repositories{
		Events:      &EventStore{s},
		Users:       &UserRepository{s},
		Affiliates:  &AffiliateRepository{s},
		Links:       &ReferralLinkRepository{s},
		Clicks:      &ClickRepository{s},
		Referrals:   &ReferralRepository{s},
		Payments:    &PaymentEventRepository{s},
		Ledger:      &LedgerRepository{s},
		Payouts:     &PayoutRepository{s},
		AuditLogs:   &AuditLogRepository{s},
		Idempotency: &IdempotencyRepository{s},
		Outbox:      &OutboxRepository{s},
	}
}

type EventStore struct{ s *store }

func (r *EventStore) RecordIfNew(_ context.Context, providerEventID, _ string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.events[providerEventID]; ok {
		return false, nil
	}
	r.s.events[providerEventID] = at
	return true, nil
}

type UserRepository struct{ s *store }

func (r *UserRepository) Register(_ context.Context, row domain.User) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[row.UserID]
	if !ok {
		r.s.users[row.UserID] = row
		return row, nil
	}
	if existing.SignupAt == nil && row.SignupAt != nil {
		existing.SignupAt = row.SignupAt
		r.s.users[row.UserID] = existing
	}
	return existing, nil
}

func (r *UserRepository) GetByID(_ context.Context, userID string) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.users[strings.TrimSpace(userID)]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *UserRepository) LockReferrer(_ context.Context, userID, affiliateID string, at time.Time) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.users[userID]
	if !ok {
		row = domain.User{UserID: userID, CreatedAt: at}
	}
	if row.ReferrerAffiliateID != "" {
		return row, nil
	}
	row.ReferrerAffiliateID = affiliateID
	row.LockedAt = &at
	r.s.users[userID] = row
	return row, nil
}

type AffiliateRepository struct{ s *store }

func (r *AffiliateRepository) Create(_ context.Context, row domain.Affiliate, link domain.ReferralLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.affiliates[row.AffiliateID]; ok {
		return domain.ErrConflict
	}
	if _, ok := r.s.affByUser[row.UserID]; ok {
		return domain.ErrConflict
	}
	if _, ok := r.s.links[link.Code]; ok {
		return domain.ErrConflict
	}
	r.s.affiliates[row.AffiliateID] = row
	r.s.affByUser[row.UserID] = row.AffiliateID
	r.s.links[link.Code] = link
	return nil
}

func (r *AffiliateRepository) GetByID(_ context.Context, affiliateID string) (domain.Affiliate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.affiliates[strings.TrimSpace(affiliateID)]
	if !ok {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *AffiliateRepository) GetByUserID(_ context.Context, userID string) (domain.Affiliate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.affByUser[strings.TrimSpace(userID)]
	if !ok {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	row, ok := r.s.affiliates[id]
	if !ok {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *AffiliateRepository) UpdateStatus(_ context.Context, affiliateID string, from, to domain.AffiliateStatus, reviewedBy string, at time.Time) (domain.Affiliate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.affiliates[affiliateID]
	if !ok {
		return domain.Affiliate{}, domain.ErrNotFound
	}
	if row.Status != from {
		return domain.Affiliate{}, domain.ErrConflict
	}
	row.Status = to
	row.ReviewedBy = reviewedBy
	row.UpdatedAt = at
	r.s.affiliates[affiliateID] = row
	return row, nil
}

type ReferralLinkRepository struct{ s *store }

func (r *ReferralLinkRepository) GetByCode(_ context.Context, code string) (domain.ReferralLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.links[code]
	if !ok {
		return domain.ReferralLink{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *ReferralLinkRepository) IncrementClicks(_ context.Context, code string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.links[code]
	if !ok {
		return domain.ErrNotFound
	}
	row.ClicksCount++
	r.s.links[code] = row
	return nil
}

func (r *ReferralLinkRepository) SumClicksByAffiliate(_ context.Context, affiliateID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, row := range r.s.links {
		if row.AffiliateID == affiliateID {
			total += row.ClicksCount
		}
	}
	return total, nil
}

type ClickRepository struct{ s *store }

func (r *ClickRepository) Append(_ context.Context, row domain.Click) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.clicks[row.ClickID]; ok {
		return domain.ErrConflict
	}
	r.s.clicks[row.ClickID] = row
	return nil
}

func (r *ClickRepository) GetByID(_ context.Context, clickID string) (domain.Click, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.clicks[strings.TrimSpace(clickID)]
	if !ok {
		return domain.Click{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *ClickRepository) MarkConverted(_ context.Context, clickID, userID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.clicks[clickID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if row.ConvertedToSignup {
		return false, nil
	}
	row.ConvertedToSignup = true
	row.ConvertedUserID = userID
	row.ConvertedAt = &at
	r.s.clicks[clickID] = row
	return true, nil
}

type ReferralRepository struct{ s *store }

func referralKey(affiliateID, userID string) string { return affiliateID + "|" + userID }

func (r *ReferralRepository) CreateIfAbsent(_ context.Context, row domain.Referral) (domain.Referral, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := referralKey(row.AffiliateID, row.UserID)
	if existing, ok := r.s.referrals[key]; ok {
		return existing, false, nil
	}
	r.s.referrals[key] = row
	return row, true, nil
}

func (r *ReferralRepository) Get(_ context.Context, affiliateID, userID string) (domain.Referral, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.referrals[referralKey(affiliateID, userID)]
	if !ok {
		return domain.Referral{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *ReferralRepository) EarliestForUser(_ context.Context, userID string) (domain.Referral, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out *domain.Referral
	for _, row := range r.s.referrals {
		if row.UserID != userID {
			continue
		}
		if out == nil || row.FirstSeenAt.Before(out.FirstSeenAt) ||
			(row.FirstSeenAt.Equal(out.FirstSeenAt) && row.ReferralID < out.ReferralID) {
			cp := row
			out = &cp
		}
	}
	if out == nil {
		return domain.Referral{}, domain.ErrNotFound
	}
	return *out, nil
}

func (r *ReferralRepository) CountByAffiliate(_ context.Context, affiliateID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, row := range r.s.referrals {
		if row.AffiliateID == affiliateID {
			n++
		}
	}
	return n, nil
}

type PaymentEventRepository struct{ s *store }

func (r *PaymentEventRepository) Create(_ context.Context, row domain.PaymentEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[row.ProviderEventID]; ok {
		return domain.ErrConflict
	}
	r.s.payments[row.ProviderEventID] = row
	return nil
}

func (r *PaymentEventRepository) GetByProviderEventID(_ context.Context, providerEventID string) (domain.PaymentEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.payments[providerEventID]
	if !ok {
		return domain.PaymentEvent{}, domain.ErrNotFound
	}
	return row, nil
}

func (r *PaymentEventRepository) ListUnreconciled(_ context.Context, limit int) ([]domain.PaymentEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.PaymentEvent, 0)
	for id, row := range r.s.payments {
		if _, ok := r.s.commByKey[id]; ok {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(out[j].ProcessedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type AuditLogRepository struct{ s *store }

func (r *AuditLogRepository) Append(_ context.Context, row domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.auditLogs = append(r.s.auditLogs, row)
	return nil
}

// List is used by tests to inspect the audit trail.
func (r *AuditLogRepository) List(entityID string) []domain.AuditLog {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.AuditLog, 0)
	for _, row := range r.s.auditLogs {
		if entityID == "" || row.EntityID == entityID {
			out = append(out, row)
		}
	}
	return out
}

type IdempotencyRepository struct{ s *store }

func (r *IdempotencyRepository) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.idempotency[key]
	if !ok {
		return nil, nil
	}
	if !row.ExpiresAt.IsZero() && now.After(row.ExpiresAt) {
		delete(r.s.idempotency, key)
		return nil, nil
	}
	cp := row
	cp.ResponseBody = append([]byte(nil), row.ResponseBody...)
	return &cp, nil
}

func (r *IdempotencyRepository) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if row, ok := r.s.idempotency[key]; ok {
		if row.RequestHash != requestHash {
			return domain.ErrIdempotencyConflict
		}
		return domain.ErrConflict
	}
	r.s.idempotency[key] = ports.IdempotencyRecord{Key: key, RequestHash: requestHash, ExpiresAt: expiresAt}
	return nil
}

func (r *IdempotencyRepository) Complete(_ context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.idempotency[key]
	if !ok {
		return domain.ErrNotFound
	}
	row.ResponseCode = responseCode
	row.ResponseBody = append([]byte(nil), responseBody...)
	if row.ExpiresAt.IsZero() {
		row.ExpiresAt = at.Add(7 * 24 * time.Hour)
	}
	r.s.idempotency[key] = row
	return nil
}

func (r *IdempotencyRepository) Release(_ context.Context, key string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if row, ok := r.s.idempotency[key]; ok && len(row.ResponseBody) == 0 {
		delete(r.s.idempotency, key)
	}
	return nil
}

type OutboxRepository struct{ s *store }

func (r *OutboxRepository) Enqueue(_ context.Context, record ports.OutboxRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.outbox[record.RecordID]; ok {
		return domain.ErrConflict
	}
	r.s.outbox[record.RecordID] = outboxRow{record: record}
	r.s.outboxOrder = append(r.s.outboxOrder, record.RecordID)
	return nil
}

func (r *OutboxRepository) FetchUnpublished(_ context.Context, limit int) ([]ports.OutboxRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]ports.OutboxRecord, 0, limit)
	for _, id := range r.s.outboxOrder {
		row, ok := r.s.outbox[id]
		if !ok || row.publishedAt != nil {
			continue
		}
		out = append(out, row.record)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *OutboxRepository) MarkPublished(_ context.Context, recordID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.outbox[recordID]
	if !ok {
		return domain.ErrNotFound
	}
	row.publishedAt = &at
	r.s.outbox[recordID] = row
	return nil
}

func (r *OutboxRepository) MarkFailed(_ context.Context, recordID, errMsg string, _ time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	row, ok := r.s.outbox[recordID]
	if !ok {
		return domain.ErrNotFound
	}
	row.record.RetryCount++
	row.lastError = errMsg
	r.s.outbox[recordID] = row
	return nil
}

// EventTypes lists every enqueued event type in order; tests use it to assert
// what a flow emitted.
func (r *OutboxRepository) EventTypes() []string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]string, 0, len(r.s.outboxOrder))
	for _, id := range r.s.outboxOrder {
		out = append(out, r.s.outbox[id].record.EventType)
	}
	return out
}
