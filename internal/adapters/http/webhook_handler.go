package http

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/affiliate-ledger/internal/adapters/gateway"
	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

// receiveWebhook verifies the signature over the raw body before anything in
// it is trusted, then hands the normalized payment to ingestion.
func (h *Handler) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	gatewayName := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "gateway")))
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeDomainError(w, r, "receive_webhook", fmt.Errorf("%w: unreadable body", domain.ErrInvalidInput))
		return
	}
	if h.signatures == nil {
		writeDomainError(w, r, "receive_webhook", domain.ErrInvalidSignature)
		return
	}
	if err := h.signatures.Verify(gatewayName, r.Header, body, h.nowFn()); err != nil {
		writeDomainError(w, r, "receive_webhook", err)
		return
	}

	in, ok, err := gateway.Normalize(gatewayName, body)
	if err != nil {
		writeDomainError(w, r, "receive_webhook", err)
		return
	}
	if !ok {
		writeSuccess(w, http.StatusOK, contracts.WebhookResponse{Status: application.IngestStatusIgnored})
		return
	}
	out, err := h.service.Ingestion.Ingest(r.Context(), in)
	if err != nil {
		writeDomainError(w, r, "receive_webhook", err)
		return
	}
	writeSuccess(w, http.StatusOK, contracts.WebhookResponse{
		Status:            out.Status,
		Duplicate:         out.Duplicate,
		CommissionCreated: out.CommissionCreated,
	})
}
