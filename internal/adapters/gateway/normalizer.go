package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

// Payment event types every supported gateway maps onto.
var paymentEventTypes = map[string]struct{}{
	"payment.succeeded":        {},
	"invoice.paid":             {},
	"checkout.completed":       {},
	"subscription.renewed":     {},
	"payment_intent.succeeded": {},
}

type webhookPayload struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data webhookData `json:"data"`
}

type webhookData struct {
	UserID     string      `json:"user_id"`
	Amount     json.Number `json:"amount"`
	Currency   string      `json:"currency"`
	Kind       string      `json:"kind"`
	OccurredAt string      `json:"occurred_at"`
}

// Normalize decodes a verified webhook body into an ingestion input. ok is
// false for event types that carry no payment; those are acknowledged and
// ignored.
func Normalize(gateway string, body []byte) (in application.IngestInput, ok bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload webhookPayload
	if err := dec.Decode(&payload); err != nil {
		return application.IngestInput{}, false, fmt.Errorf("%w: malformed webhook body", domain.ErrInvalidInput)
	}
	eventType := strings.ToLower(strings.TrimSpace(payload.Type))
	if _, known := paymentEventTypes[eventType]; !known {
		return application.IngestInput{}, false, nil
	}
	if strings.TrimSpace(payload.ID) == "" {
		return application.IngestInput{}, false, fmt.Errorf("%w: event id is required", domain.ErrInvalidInput)
	}
	amount, err := domain.ParseAmount(payload.Data.Amount.String())
	if err != nil {
		return application.IngestInput{}, false, err
	}
	var occurredAt time.Time
	if raw := strings.TrimSpace(payload.Data.OccurredAt); raw != "" {
		occurredAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return application.IngestInput{}, false, fmt.Errorf("%w: occurred_at must be RFC3339", domain.ErrInvalidInput)
		}
	}
	return application.IngestInput{
		ProviderEventID: strings.TrimSpace(payload.ID),
		Gateway:         strings.ToLower(strings.TrimSpace(gateway)),
		UserID:          payload.Data.UserID,
		Amount:          amount,
		Currency:        payload.Data.Currency,
		Kind:            domain.PaymentKind(strings.ToLower(strings.TrimSpace(payload.Data.Kind))),
		OccurredAt:      occurredAt,
	}, true, nil
}
