package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
)

type Message struct {
	Topic   string
	Key     []byte
	Payload []byte

	raw kafka.Message
}

type Consumer interface {
	Poll(ctx context.Context, max int) ([]Message, error)
	Commit(ctx context.Context, msgs []Message) error
}

// EventHandler is the application entry point for bus events.
type EventHandler interface {
	HandleCanonicalEvent(ctx context.Context, envelope contracts.EventEnvelope) (application.IngestResult, error)
}

type ConsumerWorker struct {
	logger   *slog.Logger
	consumer Consumer
	handler  EventHandler
	interval time.Duration
}

func NewConsumerWorker(logger *slog.Logger, consumer Consumer, handler EventHandler, interval time.Duration) *ConsumerWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ConsumerWorker{
		logger: logger, consumer: consumer, handler: handler, interval: interval,
	}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"module", "events.consumer_worker",
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

// ProcessOnce handles one batch. Malformed and unsupported messages are
// logged and committed; storage failures stop the batch so it is redelivered.
func (w *ConsumerWorker) ProcessOnce(ctx context.Context) error {
	msgs, err := w.consumer.Poll(ctx, 50)
	if err != nil {
		return err
	}
	handled := make([]Message, 0, len(msgs))
	for _, msg := range msgs {
		if err := w.handle(ctx, msg); err != nil {
			if commitErr := w.consumer.Commit(ctx, handled); commitErr != nil {
				return errors.Join(err, commitErr)
			}
			return err
		}
		handled = append(handled, msg)
	}
	return w.consumer.Commit(ctx, handled)
}

func (w *ConsumerWorker) handle(ctx context.Context, msg Message) error {
	var envelope contracts.EventEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		w.logSkipped(ctx, msg.Topic, "malformed_envelope", err)
		return nil
	}
	if envelope.EventType == "" {
		envelope.EventType = msg.Topic
	}
	result, err := w.handler.HandleCanonicalEvent(ctx, envelope)
	switch {
	case err == nil:
		w.logger.InfoContext(ctx, "billing event handled",
			"module", "events.consumer_worker",
			"layer", "adapter",
			"operation", "handle",
			"outcome", result.Status,
			"event_id", envelope.EventID,
			"commission_created", result.CommissionCreated,
		)
		return nil
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnsupportedEvent):
		w.logSkipped(ctx, msg.Topic, "rejected", err)
		return nil
	default:
		return err
	}
}

func (w *ConsumerWorker) logSkipped(ctx context.Context, topic, outcome string, err error) {
	w.logger.WarnContext(ctx, "bus event skipped",
		"module", "events.consumer_worker",
		"layer", "adapter",
		"operation", "handle",
		"outcome", outcome,
		"topic", topic,
		"error", err,
	)
}
