package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viralforge/affiliate-ledger/internal/adapters/memory"
	"github.com/viralforge/affiliate-ledger/internal/application"
	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recordingPublisher struct {
	published []string
	failOn    string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ []byte, _ string) error {
	if eventType == p.failOn {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, eventType)
	return nil
}

func enqueue(t *testing.T, outbox ports.OutboxRepository, id, eventType string) {
	t.Helper()
	require.NoError(t, outbox.Enqueue(context.Background(), ports.OutboxRecord{
		RecordID:     id,
		EventType:    eventType,
		PartitionKey: "aff-1",
		Envelope:     contracts.EventEnvelope{EventID: id, EventType: eventType, OccurredAt: time.Now().UTC()},
		CreatedAt:    time.Now().UTC(),
	}))
}

func TestOutboxWorkerPublishesAndRetriesFailures(t *testing.T) {
	repos := memory.NewRepositories()
	enqueue(t, repos.Outbox, "rec-1", domain.EventAffiliateCommissionCreated)
	enqueue(t, repos.Outbox, "rec-2", domain.EventAffiliatePayoutPaid)

	pub := &recordingPublisher{failOn: domain.EventAffiliatePayoutPaid}
	w := NewOutboxWorker(discardLogger(), repos.Outbox, pub, time.Second, 10)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{domain.EventAffiliateCommissionCreated}, pub.published)

	pending, err := repos.Outbox.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "rec-2", pending[0].RecordID)
	assert.Equal(t, 1, pending[0].RetryCount)

	pub.failOn = ""
	n, err = w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type fakeConsumer struct {
	batch     []Message
	committed []Message
}

func (c *fakeConsumer) Poll(context.Context, int) ([]Message, error) {
	out := c.batch
	c.batch = nil
	return out, nil
}

func (c *fakeConsumer) Commit(_ context.Context, msgs []Message) error {
	c.committed = append(c.committed, msgs...)
	return nil
}

type fakeHandler struct {
	seen []string
	errs map[string]error
}

func (h *fakeHandler) HandleCanonicalEvent(_ context.Context, env contracts.EventEnvelope) (application.IngestResult, error) {
	h.seen = append(h.seen, env.EventID)
	if err := h.errs[env.EventID]; err != nil {
		return application.IngestResult{}, err
	}
	return application.IngestResult{Status: application.IngestStatusProcessed}, nil
}

func message(t *testing.T, eventID string) Message {
	t.Helper()
	raw, err := json.Marshal(contracts.EventEnvelope{EventID: eventID, EventType: domain.EventBillingPaymentSucceeded})
	require.NoError(t, err)
	return Message{Topic: domain.EventBillingPaymentSucceeded, Payload: raw}
}

func TestConsumerWorkerCommitsHandledAndSkippedMessages(t *testing.T) {
	consumer := &fakeConsumer{batch: []Message{
		message(t, "evt-1"),
		{Topic: domain.EventBillingPaymentSucceeded, Payload: []byte("{broken")},
		message(t, "evt-2"),
	}}
	handler := &fakeHandler{errs: map[string]error{"evt-2": domain.ErrInvalidInput}}
	w := NewConsumerWorker(discardLogger(), consumer, handler, time.Second)

	require.NoError(t, w.ProcessOnce(context.Background()))
	assert.Equal(t, []string{"evt-1", "evt-2"}, handler.seen)
	assert.Len(t, consumer.committed, 3)
}

func TestConsumerWorkerStopsOnStorageFailure(t *testing.T) {
	consumer := &fakeConsumer{batch: []Message{message(t, "evt-1"), message(t, "evt-2"), message(t, "evt-3")}}
	storageErr := errors.New("db unavailable")
	handler := &fakeHandler{errs: map[string]error{"evt-2": storageErr}}
	w := NewConsumerWorker(discardLogger(), consumer, handler, time.Second)

	err := w.ProcessOnce(context.Background())
	assert.ErrorIs(t, err, storageErr)
	assert.Equal(t, []string{"evt-1", "evt-2"}, handler.seen)
	require.Len(t, consumer.committed, 1)
}

type countingReleaser struct{ calls int }

func (r *countingReleaser) ReleaseMaturedCommissions(context.Context) (int, error) {
	r.calls++
	return 0, nil
}

func TestMaturationWorkerStopsWithContext(t *testing.T) {
	releaser := &countingReleaser{}
	w := NewMaturationWorker(discardLogger(), releaser, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, releaser.calls)
}

func TestNoopConsumerIsIdle(t *testing.T) {
	c := NewNoopConsumer()
	msgs, err := c.Poll(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NoError(t, c.Commit(context.Background(), nil))
	assert.NoError(t, NewLoggingPublisher(discardLogger()).Publish(context.Background(), "x", nil, ""))
}
