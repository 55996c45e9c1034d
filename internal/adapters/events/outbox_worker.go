package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/ports"
)

type OutboxWorker struct {
	logger    *slog.Logger
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	interval  time.Duration
	batchSize int
}

func NewOutboxWorker(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, interval time.Duration, batchSize int) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxWorker{
		logger: logger, outbox: outbox, publisher: publisher, interval: interval, batchSize: batchSize,
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce publishes one batch and returns how many records went out.
// A failed record stays unpublished and is retried on the next tick.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (int, error) {
	records, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, rec := range records {
		now := time.Now().UTC()
		payload, err := json.Marshal(rec.Envelope)
		if err == nil {
			err = w.publisher.Publish(ctx, rec.EventType, payload, rec.PartitionKey)
		}
		if err != nil {
			w.logger.WarnContext(ctx, "outbox publish failed",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"operation", "publish",
				"outcome", "failure",
				"event_type", rec.EventType,
				"record_id", rec.RecordID,
				"retry_count", rec.RetryCount,
				"error", err,
			)
			_ = w.outbox.MarkFailed(ctx, rec.RecordID, err.Error(), now)
			continue
		}
		if err := w.outbox.MarkPublished(ctx, rec.RecordID, now); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
