package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

// EventIngestionService turns verified gateway payments into commission
// entries. RecordIfNew runs before any side effect and is the only
// idempotency guarantee: once an event id is recorded it is never processed
// again, even if a later step failed.
type EventIngestionService struct {
	events   ports.EventStore
	payments ports.PaymentEventRepository
	users    ports.UserRepository
	resolver *AttributionResolver
	ledger   *Ledger

	commission domain.CommissionConfig
	metrics    ports.Metrics
	logger     *slog.Logger
	nowFn      func() time.Time
}

func (s *EventIngestionService) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	in, err := normalizeIngestInput(in, s.nowFn())
	if err != nil {
		s.metrics.IngestOutcome("invalid")
		return IngestResult{}, err
	}

	isNew, err := s.events.RecordIfNew(ctx, in.ProviderEventID, in.Gateway, s.nowFn())
	if err != nil {
		s.metrics.IngestOutcome("error")
		return IngestResult{}, fmt.Errorf("record event: %w", err)
	}
	if !isNew {
		s.metrics.IngestOutcome(IngestStatusDuplicate)
		return IngestResult{Status: IngestStatusDuplicate, Duplicate: true}, nil
	}

	event := domain.PaymentEvent{
		ProviderEventID: in.ProviderEventID,
		Gateway:         in.Gateway,
		UserID:          in.UserID,
		Amount:          in.Amount,
		Currency:        in.Currency,
		Kind:            in.Kind,
		OccurredAt:      in.OccurredAt,
		ProcessedAt:     s.nowFn(),
	}
	if err := s.payments.Create(ctx, event); err != nil {
		return IngestResult{}, s.failAfterRecord(ctx, in, "persist_payment", err)
	}

	paidAt := in.OccurredAt
	attr, err := s.resolver.Resolve(ctx, ResolveInput{UserID: in.UserID, PaidAt: &paidAt, PaidAmount: in.Amount})
	if err != nil {
		return IngestResult{}, s.failAfterRecord(ctx, in, "resolve_attribution", err)
	}

	decision := domain.CalculateCommission(domain.CommissionInput{
		Trigger:        domain.TriggerPayment,
		PaymentEventID: in.ProviderEventID,
		Amount:         in.Amount,
		Currency:       in.Currency,
		OccurredAt:     in.OccurredAt,
		Referral:       attr.Referral,
		Attributed:     attr.Found(),
		At:             s.nowFn(),
	}, s.commission)

	result := IngestResult{Status: IngestStatusProcessed, AffiliateID: attr.AffiliateID}
	if decision.Entry == nil {
		s.metrics.IngestOutcome(IngestStatusProcessed)
		return result, nil
	}
	entry, err := s.ledger.Append(ctx, *decision.Entry, decision.Mark)
	switch {
	case isDuplicateCommission(err):
		s.logger.WarnContext(ctx, "commission already recorded for payment",
			"module", "application.ingestion",
			"layer", "application",
			"operation", "ingest",
			"outcome", "duplicate_commission",
			"provider_event_id", in.ProviderEventID,
		)
	case err != nil:
		return IngestResult{}, s.failAfterRecord(ctx, in, "append_commission", err)
	default:
		result.CommissionCreated = true
		result.CommissionID = entry.CommissionID
		result.AffiliateID = entry.AffiliateID
	}
	s.metrics.IngestOutcome(IngestStatusProcessed)
	return result, nil
}

// failAfterRecord logs a failure that left the event marked as seen. The
// payment stays visible to reconciliation; it is never retried automatically.
func (s *EventIngestionService) failAfterRecord(ctx context.Context, in IngestInput, step string, err error) error {
	s.metrics.IngestOutcome("error")
	s.logger.ErrorContext(ctx, "ingestion failed after event was recorded",
		"module", "application.ingestion",
		"layer", "application",
		"operation", "ingest",
		"outcome", "failure",
		"step", step,
		"provider_event_id", in.ProviderEventID,
		"user_id", in.UserID,
		"error", err,
	)
	return fmt.Errorf("%s: %w", step, err)
}

func normalizeIngestInput(in IngestInput, now time.Time) (IngestInput, error) {
	in.ProviderEventID = strings.TrimSpace(in.ProviderEventID)
	in.UserID = strings.TrimSpace(in.UserID)
	in.Gateway = strings.ToLower(strings.TrimSpace(in.Gateway))
	if in.Gateway == "" {
		in.Gateway = "unknown"
	}
	in.Currency = domain.NormalizeCurrency(in.Currency)
	if in.Kind == "" {
		in.Kind = domain.PaymentKindSubscription
	}
	if in.ProviderEventID == "" {
		return in, fmt.Errorf("%w: provider_event_id is required", domain.ErrInvalidInput)
	}
	if in.UserID == "" {
		return in, fmt.Errorf("%w: user_id is required", domain.ErrInvalidInput)
	}
	if in.Amount.IsNegative() {
		return in, fmt.Errorf("%w: amount must not be negative", domain.ErrInvalidInput)
	}
	if !in.Kind.Valid() {
		return in, fmt.Errorf("%w: kind %q", domain.ErrInvalidInput, in.Kind)
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = now
	}
	in.OccurredAt = in.OccurredAt.UTC()
	return in, nil
}

// ListUnreconciledPayments returns recorded payments with no commission entry
// so an operator can decide on a manual replay.
func (s *Service) ListUnreconciledPayments(ctx context.Context, actor Actor, limit int) ([]domain.PaymentEvent, error) {
	if err := requireSubject(actor); err != nil {
		return nil, err
	}
	if !s.policy.CanApprovePayouts(actor) {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.payments.ListUnreconciled(ctx, limit)
}
