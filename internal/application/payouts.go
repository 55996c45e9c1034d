package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

// PayoutWorkflow drives payout requests through
// pending -> approved -> paid and pending -> rejected.
type PayoutWorkflow struct {
	payouts     ports.PayoutRepository
	affiliates  ports.AffiliateRepository
	ledger      *Ledger
	policy      AuthorizationPolicy
	idempotency ports.IdempotencyRepository
	auditLogs   ports.AuditLogRepository
	emit        *eventEmitter
	metrics     ports.Metrics
	logger      *slog.Logger

	minimum        decimal.Decimal
	feePercent     decimal.Decimal
	idempotencyTTL time.Duration

	nowFn func() time.Time
}

// Request creates a pending payout for the calling affiliate. Pending requests
// hold nothing; Approve checks the balance again and the approved amount then
// counts against it until paid.
func (w *PayoutWorkflow) Request(ctx context.Context, actor Actor, amount decimal.Decimal) (domain.PayoutRequest, error) {
	if err := requireSubject(actor); err != nil {
		return domain.PayoutRequest{}, err
	}
	aff, err := w.affiliates.GetByUserID(ctx, actor.SubjectID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PayoutRequest{}, fmt.Errorf("%w: caller is not an affiliate", domain.ErrForbidden)
	}
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if aff.Status != domain.AffiliateStatusApproved {
		return domain.PayoutRequest{}, fmt.Errorf("%w: affiliate is %s", domain.ErrForbidden, aff.Status)
	}

	guard := idempotencyGuard{repo: w.idempotency, ttl: w.idempotencyTTL, nowFn: w.nowFn}
	requestHash := hashJSON(map[string]any{"op": "request_payout", "affiliate_id": aff.AffiliateID, "amount": amount.StringFixed(domain.MoneyScale)})
	var replayed domain.PayoutRequest
	if ok, err := guard.replay(ctx, actor.IdempotencyKey, requestHash, &replayed); err != nil {
		return domain.PayoutRequest{}, err
	} else if ok {
		return replayed, nil
	}

	balance, err := w.ledger.BalanceOf(ctx, aff.AffiliateID)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if err := w.validateAmount(amount, balance.Available); err != nil {
		return domain.PayoutRequest{}, err
	}
	if err := guard.reserve(ctx, actor.IdempotencyKey, requestHash); err != nil {
		return domain.PayoutRequest{}, err
	}

	amount = domain.RoundMoney(amount)
	fee, net := domain.PayoutFee(amount, w.feePercent)
	row := domain.PayoutRequest{
		PayoutRequestID: "pr_" + uuid.NewString(),
		AffiliateID:     aff.AffiliateID,
		RequestedAmount: amount,
		Fee:             fee,
		NetAmount:       net,
		Currency:        balance.Currency,
		Status:          domain.PayoutStatusPending,
		RequestedAt:     w.nowFn(),
	}
	if err := w.payouts.Create(ctx, row); err != nil {
		if relErr := guard.release(ctx, actor.IdempotencyKey); relErr != nil {
			w.logIdempotencyFailure(ctx, "release", relErr)
		}
		return domain.PayoutRequest{}, err
	}
	w.metrics.PayoutTransition(string(domain.PayoutStatusPending))
	_ = w.emit.payout(ctx, domain.EventAffiliatePayoutRequested, actor.RequestID, row)
	if err := guard.complete(ctx, actor.IdempotencyKey, 201, row); err != nil {
		// The payout exists; a retry under this key sees an in-flight
		// reservation until it expires rather than creating a second one.
		w.logIdempotencyFailure(ctx, "complete", err)
	}
	return row, nil
}

func (w *PayoutWorkflow) logIdempotencyFailure(ctx context.Context, step string, err error) {
	w.logger.ErrorContext(ctx, "idempotency bookkeeping failed",
		"module", "application.payouts",
		"layer", "application",
		"operation", "request_payout",
		"outcome", "failure",
		"step", step,
		"error", err,
	)
}

func (w *PayoutWorkflow) validateAmount(amount, balance decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return &domain.PayoutValidationError{Reason: "amount must be positive", Balance: balance, MinimumAmount: w.minimum}
	case !amount.Equal(domain.RoundMoney(amount)):
		return &domain.PayoutValidationError{Reason: "amount has more than two decimal places", Balance: balance, MinimumAmount: w.minimum}
	case amount.LessThan(w.minimum):
		return &domain.PayoutValidationError{Reason: "amount is below the minimum payout", Balance: balance, MinimumAmount: w.minimum}
	case amount.GreaterThan(balance):
		return &domain.PayoutValidationError{Reason: "amount exceeds available balance", Balance: balance, MinimumAmount: w.minimum}
	}
	return nil
}

// Approve moves a pending request to approved after re-checking, inside the
// same transaction, that the balance still covers it.
func (w *PayoutWorkflow) Approve(ctx context.Context, actor Actor, payoutRequestID, notes string) (domain.PayoutRequest, error) {
	row, err := w.adminLoad(ctx, actor, payoutRequestID)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if row.Status != domain.PayoutStatusPending {
		return domain.PayoutRequest{}, fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, row.Status)
	}
	updated, err := w.payouts.Transition(ctx, domain.PayoutTransition{
		PayoutRequestID: row.PayoutRequestID,
		From:            domain.PayoutStatusPending,
		To:              domain.PayoutStatusApproved,
		ActorID:         actor.SubjectID,
		Notes:           strings.TrimSpace(notes),
		RequireBalance:  row.RequestedAmount,
		At:              w.nowFn(),
	})
	if errors.Is(err, domain.ErrInsufficientBalance) {
		return domain.PayoutRequest{}, fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	w.afterTransition(ctx, actor, updated, domain.EventAffiliatePayoutApproved, "payout.approved", notes)
	return updated, nil
}

func (w *PayoutWorkflow) Reject(ctx context.Context, actor Actor, payoutRequestID, notes string) (domain.PayoutRequest, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return domain.PayoutRequest{}, fmt.Errorf("%w: notes are required to reject a payout", domain.ErrInvalidInput)
	}
	row, err := w.adminLoad(ctx, actor, payoutRequestID)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if row.Status != domain.PayoutStatusPending {
		return domain.PayoutRequest{}, fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, row.Status)
	}
	updated, err := w.payouts.Transition(ctx, domain.PayoutTransition{
		PayoutRequestID: row.PayoutRequestID,
		From:            domain.PayoutStatusPending,
		To:              domain.PayoutStatusRejected,
		ActorID:         actor.SubjectID,
		Notes:           notes,
		At:              w.nowFn(),
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	w.afterTransition(ctx, actor, updated, domain.EventAffiliatePayoutRejected, "payout.rejected", notes)
	return updated, nil
}

// MarkPaid settles an approved request. Fee and net are fixed here and the
// approved hold becomes a debit of the gross amount in one step; if the debit
// fails the request stays approved.
func (w *PayoutWorkflow) MarkPaid(ctx context.Context, actor Actor, payoutRequestID string) (domain.PayoutRequest, error) {
	row, err := w.adminLoad(ctx, actor, payoutRequestID)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if row.Status != domain.PayoutStatusApproved {
		return domain.PayoutRequest{}, fmt.Errorf("%w: request is %s", domain.ErrInvalidTransition, row.Status)
	}
	fee, net := domain.PayoutFee(row.RequestedAmount, w.feePercent)
	updated, err := w.ledger.Debit(ctx, domain.DebitInput{
		AffiliateID:     row.AffiliateID,
		PayoutRequestID: row.PayoutRequestID,
		Amount:          row.RequestedAmount,
		Fee:             fee,
		NetAmount:       net,
		ActorID:         actor.SubjectID,
		At:              w.nowFn(),
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			return domain.PayoutRequest{}, fmt.Errorf("%w: %w", domain.ErrConflict, err)
		}
		return domain.PayoutRequest{}, err
	}
	w.afterTransition(ctx, actor, updated, domain.EventAffiliatePayoutPaid, "payout.paid", "")
	return updated, nil
}

func (w *PayoutWorkflow) ListForActor(ctx context.Context, actor Actor) ([]domain.PayoutRequest, error) {
	if err := requireSubject(actor); err != nil {
		return nil, err
	}
	aff, err := w.affiliates.GetByUserID(ctx, actor.SubjectID)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.PayoutRequest{}, nil
	}
	if err != nil {
		return nil, err
	}
	return w.payouts.ListByAffiliate(ctx, aff.AffiliateID)
}

func (w *PayoutWorkflow) ListPending(ctx context.Context, actor Actor, limit int) ([]domain.PayoutRequest, error) {
	if err := w.authorize(actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return w.payouts.ListByStatus(ctx, domain.PayoutStatusPending, limit)
}

func (w *PayoutWorkflow) authorize(actor Actor) error {
	if err := requireSubject(actor); err != nil {
		return err
	}
	if !w.policy.CanApprovePayouts(actor) {
		return domain.ErrForbidden
	}
	return nil
}

// adminLoad applies the policy check and loads the request. An unknown id on
// an admin call is a validation failure.
func (w *PayoutWorkflow) adminLoad(ctx context.Context, actor Actor, payoutRequestID string) (domain.PayoutRequest, error) {
	if err := w.authorize(actor); err != nil {
		return domain.PayoutRequest{}, err
	}
	payoutRequestID = strings.TrimSpace(payoutRequestID)
	if payoutRequestID == "" {
		return domain.PayoutRequest{}, fmt.Errorf("%w: payout request id is required", domain.ErrInvalidInput)
	}
	row, err := w.payouts.GetByID(ctx, payoutRequestID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.PayoutRequest{}, fmt.Errorf("%w: %w: payout request %s", domain.ErrInvalidInput, domain.ErrUnknownReference, payoutRequestID)
	}
	return row, err
}

func (w *PayoutWorkflow) afterTransition(ctx context.Context, actor Actor, row domain.PayoutRequest, eventType, action, notes string) {
	w.metrics.PayoutTransition(string(row.Status))
	_ = appendAudit(ctx, w.auditLogs, w.nowFn, "payout_request", row.PayoutRequestID, action, actor.SubjectID, strings.TrimSpace(notes), map[string]string{
		"affiliate_id": row.AffiliateID,
		"amount":       row.RequestedAmount.StringFixed(domain.MoneyScale),
	})
	_ = w.emit.payout(ctx, eventType, actor.RequestID, row)
}
