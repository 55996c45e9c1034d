package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

func (h *Handler) requestPayout(w http.ResponseWriter, r *http.Request) {
	var req contracts.PayoutRequestCreate
	if !decodeBody(w, r, "request_payout", &req) {
		return
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		writeDomainError(w, r, "request_payout", fmt.Errorf("%w: amount must be a decimal string", domain.ErrInvalidInput))
		return
	}
	row, err := h.service.Payouts.Request(r.Context(), actorFromRequest(r), amount)
	if err != nil {
		writeDomainError(w, r, "request_payout", err)
		return
	}
	writeSuccess(w, http.StatusCreated, toPayoutResponse(row))
}

func (h *Handler) listPayouts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Payouts.ListForActor(r.Context(), actorFromRequest(r))
	if err != nil {
		writeDomainError(w, r, "list_payouts", err)
		return
	}
	writeSuccess(w, http.StatusOK, toPayoutList(rows))
}

func (h *Handler) listPendingPayouts(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Payouts.ListPending(r.Context(), actorFromRequest(r), limitParam(r))
	if err != nil {
		writeDomainError(w, r, "list_pending_payouts", err)
		return
	}
	writeSuccess(w, http.StatusOK, toPayoutList(rows))
}

func (h *Handler) approvePayout(w http.ResponseWriter, r *http.Request) {
	var req contracts.PayoutReviewRequest
	if r.ContentLength != 0 && !decodeBody(w, r, "approve_payout", &req) {
		return
	}
	row, err := h.service.Payouts.Approve(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeDomainError(w, r, "approve_payout", err)
		return
	}
	writeSuccess(w, http.StatusOK, toPayoutResponse(row))
}

func (h *Handler) rejectPayout(w http.ResponseWriter, r *http.Request) {
	var req contracts.PayoutReviewRequest
	if r.ContentLength != 0 && !decodeBody(w, r, "reject_payout", &req) {
		return
	}
	row, err := h.service.Payouts.Reject(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeDomainError(w, r, "reject_payout", err)
		return
	}
	writeSuccess(w, http.StatusOK, toPayoutResponse(row))
}

func (h *Handler) markPayoutPaid(w http.ResponseWriter, r *http.Request) {
	row, err := h.service.Payouts.MarkPaid(r.Context(), actorFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "mark_payout_paid", err)
		return
	}
	writeSuccess(w, http.StatusOK, toPayoutResponse(row))
}

func toPayoutList(rows []domain.PayoutRequest) contracts.PayoutListResponse {
	items := make([]contracts.PayoutResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, toPayoutResponse(row))
	}
	return contracts.PayoutListResponse{Items: items}
}

func toPayoutResponse(row domain.PayoutRequest) contracts.PayoutResponse {
	return contracts.PayoutResponse{
		PayoutRequestID: row.PayoutRequestID,
		AffiliateID:     row.AffiliateID,
		RequestedAmount: money(row.RequestedAmount),
		Fee:             money(row.Fee),
		NetAmount:       money(row.NetAmount),
		Currency:        row.Currency,
		Status:          string(row.Status),
		AdminNotes:      row.AdminNotes,
		ReviewedBy:      row.ReviewedBy,
		RequestedAt:     formatTime(row.RequestedAt),
		ApprovedAt:      formatTimePtr(row.ApprovedAt),
		ProcessedAt:     formatTimePtr(row.ProcessedAt),
		PaidAt:          formatTimePtr(row.PaidAt),
	}
}
