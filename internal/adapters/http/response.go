package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, contracts.SuccessResponse{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, contracts.ErrorResponse{Status: "error", Code: code, Message: message})
}

// writeDomainError maps err, logs it and writes the error envelope. Rejected
// payout requests also carry the balance and minimum so the caller can retry.
func writeDomainError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code, message := mapDomainError(err)
	logHTTPOperationError(r.Context(), operation, status, code, message, err)
	body := contracts.ErrorResponse{Status: "error", Code: code, Message: message}
	var pv *domain.PayoutValidationError
	if errors.As(err, &pv) {
		body.Message = pv.Reason
		body.Balance = pv.Balance.StringFixed(domain.MoneyScale)
		body.MinimumAmount = pv.MinimumAmount.StringFixed(domain.MoneyScale)
	}
	writeJSON(w, status, body)
}

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized, "INVALID_SIGNATURE", "webhook signature verification failed"
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedEvent):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "operation not permitted"
	case errors.Is(err, domain.ErrIdempotencyConflict):
		return http.StatusConflict, "IDEMPOTENCY_CONFLICT", "idempotency key reused with a different request"
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrDuplicateCommission):
		return http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "storage temporarily unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func money(v decimal.Decimal) string {
	return v.StringFixed(domain.MoneyScale)
}
