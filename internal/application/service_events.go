package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

type eventEmitter struct {
	outbox      ports.OutboxRepository
	serviceName string
	nowFn       func() time.Time
}

func (e *eventEmitter) enqueue(ctx context.Context, eventType, traceID string, data any, affiliateID string) error {
	if e == nil || e.outbox == nil {
		return nil
	}
	if !domain.IsCanonicalEmittedEvent(eventType) {
		return domain.ErrUnsupportedEvent
	}
	b, err := json.Marshal(data)
	if err != nil {
		return domain.ErrInvalidInput
	}
	if strings.TrimSpace(traceID) == "" {
		traceID = uuid.NewString()
	}
	now := e.nowFn()
	env := contracts.EventEnvelope{
		EventID: uuid.NewString(), EventType: eventType, EventClass: domain.CanonicalEventClass(eventType),
		OccurredAt: now, PartitionKeyPath: domain.CanonicalPartitionKeyPath(eventType), PartitionKey: affiliateID,
		SourceService: e.serviceName, TraceID: traceID, SchemaVersion: "v1", Data: b,
	}
	return e.outbox.Enqueue(ctx, ports.OutboxRecord{RecordID: env.EventID, EventType: eventType, PartitionKey: affiliateID, Envelope: env, CreatedAt: now})
}

func (e *eventEmitter) commissionCreated(ctx context.Context, entry domain.CommissionEntry) error {
	return e.enqueue(ctx, domain.EventAffiliateCommissionCreated, "", contracts.AffiliateCommissionCreatedPayload{
		AffiliateID: entry.AffiliateID, CommissionID: entry.CommissionID, ReferredUserID: entry.ReferredUserID,
		PaymentEventID: entry.PaymentEventID, Rule: string(entry.Rule), Amount: entry.Amount.StringFixed(domain.MoneyScale),
		Currency: entry.Currency, Status: string(entry.Status), CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
	}, entry.AffiliateID)
}

func (e *eventEmitter) referralLocked(ctx context.Context, user domain.User) error {
	lockedAt := e.nowFn()
	if user.LockedAt != nil {
		lockedAt = *user.LockedAt
	}
	return e.enqueue(ctx, domain.EventAffiliateReferralLocked, "", contracts.AffiliateReferralLockedPayload{
		AffiliateID: user.ReferrerAffiliateID, UserID: user.UserID, LockedAt: lockedAt.UTC().Format(time.RFC3339),
	}, user.ReferrerAffiliateID)
}

func (e *eventEmitter) payout(ctx context.Context, eventType, traceID string, row domain.PayoutRequest) error {
	payload := contracts.AffiliatePayoutPayload{
		AffiliateID: row.AffiliateID, PayoutRequestID: row.PayoutRequestID,
		RequestedAmount: row.RequestedAmount.StringFixed(domain.MoneyScale), Status: string(row.Status),
		OccurredAt: e.nowFn().UTC().Format(time.RFC3339),
	}
	if row.Status == domain.PayoutStatusPaid {
		payload.Fee = row.Fee.StringFixed(domain.MoneyScale)
		payload.NetAmount = row.NetAmount.StringFixed(domain.MoneyScale)
	}
	return e.enqueue(ctx, eventType, traceID, payload, row.AffiliateID)
}

// HandleCanonicalEvent consumes events other services publish on the bus.
// billing.payment.succeeded carries payments billing already verified; they go
// through the same idempotent ingestion as webhooks.
func (s *Service) HandleCanonicalEvent(ctx context.Context, envelope contracts.EventEnvelope) (IngestResult, error) {
	if err := validateEnvelope(envelope); err != nil {
		return IngestResult{}, err
	}
	if !domain.IsCanonicalInputEvent(envelope.EventType) {
		return IngestResult{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedEvent, envelope.EventType)
	}
	var payload contracts.BillingPaymentSucceededPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return IngestResult{}, fmt.Errorf("%w: decode payment payload", domain.ErrInvalidInput)
	}
	amount, err := domain.ParseAmount(payload.Amount)
	if err != nil {
		return IngestResult{}, err
	}
	occurredAt := envelope.OccurredAt
	if strings.TrimSpace(payload.OccurredAt) != "" {
		parsed, parseErr := time.Parse(time.RFC3339, payload.OccurredAt)
		if parseErr != nil {
			return IngestResult{}, fmt.Errorf("%w: occurred_at", domain.ErrInvalidInput)
		}
		occurredAt = parsed
	}
	providerEventID := strings.TrimSpace(payload.ProviderEventID)
	if providerEventID == "" {
		providerEventID = envelope.EventID
	}
	gateway := strings.TrimSpace(payload.Gateway)
	if gateway == "" {
		gateway = envelope.SourceService
	}
	return s.Ingestion.Ingest(ctx, IngestInput{
		ProviderEventID: providerEventID,
		Gateway:         gateway,
		UserID:          payload.UserID,
		Amount:          amount,
		Currency:        payload.Currency,
		Kind:            domain.PaymentKind(strings.ToLower(strings.TrimSpace(payload.Kind))),
		OccurredAt:      occurredAt,
	})
}

func validateEnvelope(event contracts.EventEnvelope) error {
	if strings.TrimSpace(event.EventID) == "" || strings.TrimSpace(event.EventType) == "" || event.OccurredAt.IsZero() {
		return fmt.Errorf("%w: envelope", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(event.SourceService) == "" || strings.TrimSpace(event.SchemaVersion) == "" {
		return fmt.Errorf("%w: envelope", domain.ErrInvalidInput)
	}
	if len(event.Data) == 0 {
		return fmt.Errorf("%w: envelope data", domain.ErrInvalidInput)
	}
	return nil
}
