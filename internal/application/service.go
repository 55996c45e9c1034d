package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

// Service wires the attribution, ledger, payout and ingestion components over
// one set of repositories.
type Service struct {
	cfg    Config
	logger *slog.Logger

	users       ports.UserRepository
	affiliates  ports.AffiliateRepository
	links       ports.ReferralLinkRepository
	clicks      ports.ClickRepository
	referrals   ports.ReferralRepository
	payments    ports.PaymentEventRepository
	auditLogs   ports.AuditLogRepository
	idempotency ports.IdempotencyRepository
	outbox      ports.OutboxRepository
	metrics     ports.Metrics
	policy      AuthorizationPolicy
	emit        *eventEmitter

	Resolver  *AttributionResolver
	Ledger    *Ledger
	Payouts   *PayoutWorkflow
	Ingestion *EventIngestionService

	nowFn func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "affiliate-ledger"
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "https://platform.com"
	}
	if !cfg.CommissionRatePercent.IsPositive() {
		cfg.CommissionRatePercent = decimal.NewFromInt(10)
	}
	if !cfg.FreeReferralBonusAmount.IsPositive() {
		cfg.FreeReferralBonusAmount = decimal.RequireFromString("0.10")
	}
	if cfg.LockInWindowDays <= 0 {
		cfg.LockInWindowDays = 30
	}
	if cfg.FreeReferralWindowDays <= 0 {
		cfg.FreeReferralWindowDays = 14
	}
	if cfg.CommissionHoldDays < 0 {
		cfg.CommissionHoldDays = 0
	}
	if !cfg.MinimumPayoutAmount.IsPositive() {
		cfg.MinimumPayoutAmount = decimal.NewFromInt(50)
	}
	if cfg.PayoutFeePercent.IsNegative() {
		cfg.PayoutFeePercent = decimal.Zero
	}
	if cfg.CodeCacheTTL <= 0 {
		cfg.CodeCacheTTL = time.Hour
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if cfg.OutboxFlushBatchSize <= 0 {
		cfg.OutboxFlushBatchSize = 100
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := deps.Clock
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	policy := deps.Policy
	if policy == nil {
		policy = NewRolePolicy("admin", "finance")
	}

	s := &Service{
		cfg: cfg, logger: logger,
		users: deps.Users, affiliates: deps.Affiliates, links: deps.Links, clicks: deps.Clicks,
		referrals: deps.Referrals, payments: deps.Payments, auditLogs: deps.AuditLogs,
		idempotency: deps.Idempotency, outbox: deps.Outbox, metrics: metrics, policy: policy,
		nowFn: nowFn,
	}
	emit := &eventEmitter{outbox: deps.Outbox, serviceName: cfg.ServiceName, nowFn: nowFn}
	s.emit = emit
	s.Resolver = &AttributionResolver{
		users: deps.Users, affiliates: deps.Affiliates, links: deps.Links, referrals: deps.Referrals,
		cache: deps.CodeCache, lockInWindow: cfg.LockInWindow(), cacheTTL: cfg.CodeCacheTTL,
		emit: emit, logger: logger, nowFn: nowFn,
	}
	s.Ledger = &Ledger{repo: deps.Ledger, metrics: metrics, emit: emit, nowFn: nowFn}
	s.Payouts = &PayoutWorkflow{
		payouts: deps.Payouts, affiliates: deps.Affiliates, ledger: s.Ledger, policy: policy,
		idempotency: deps.Idempotency, auditLogs: deps.AuditLogs, emit: emit, metrics: metrics, logger: logger,
		minimum: cfg.MinimumPayoutAmount, feePercent: cfg.PayoutFeePercent, idempotencyTTL: cfg.IdempotencyTTL,
		nowFn: nowFn,
	}
	s.Ingestion = &EventIngestionService{
		events: deps.EventStore, payments: deps.Payments, users: deps.Users, resolver: s.Resolver,
		ledger: s.Ledger, commission: cfg.CommissionConfig(), metrics: metrics, logger: logger, nowFn: nowFn,
	}
	return s
}

func (s *Service) Config() Config { return s.cfg }

func (s *Service) CanApprovePayouts(actor Actor) bool { return s.policy.CanApprovePayouts(actor) }

func (s *Service) appendAudit(ctx context.Context, entityType, entityID, action, actorID, notes string, meta map[string]string) error {
	return appendAudit(ctx, s.auditLogs, s.nowFn, entityType, entityID, action, actorID, notes, meta)
}

func appendAudit(ctx context.Context, repo ports.AuditLogRepository, nowFn func() time.Time, entityType, entityID, action, actorID, notes string, meta map[string]string) error {
	if repo == nil {
		return nil
	}
	return repo.Append(ctx, domain.AuditLog{
		AuditLogID: "audit_" + uuid.NewString(), EntityType: entityType, EntityID: entityID,
		Action: action, ActorID: actorID, Notes: notes, Metadata: meta, CreatedAt: nowFn(),
	})
}

func sha256Hex(v string) string { h := sha256.Sum256([]byte(v)); return hex.EncodeToString(h[:]) }

func hashJSON(v any) string {
	raw, _ := json.Marshal(v)
	h := sha256.Sum256(raw)
	return hex.EncodeToString(h[:])
}

func requireSubject(actor Actor) error {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) IngestOutcome(string)                      {}
func (noopMetrics) CommissionCreated(string, decimal.Decimal) {}
func (noopMetrics) PayoutTransition(string)                   {}
func (noopMetrics) ClickTracked(bool)                         {}
