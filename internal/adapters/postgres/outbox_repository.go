package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/contracts"
	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
	"gorm.io/gorm"
)

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Enqueue(ctx context.Context, record ports.OutboxRecord) error {
	payload, err := json.Marshal(record.Envelope)
	if err != nil {
		return err
	}
	rec := outboxModel{
		OutboxID:         record.RecordID,
		EventType:        record.EventType,
		PartitionKey:     record.PartitionKey,
		PartitionKeyPath: record.Envelope.PartitionKeyPath,
		Payload:          string(payload),
		SchemaVersion:    record.Envelope.SchemaVersion,
		TraceID:          record.Envelope.TraceID,
		CreatedAt:        record.CreatedAt,
	}
	err = r.db.WithContext(ctx).Create(&rec).Error
	if isUniqueViolation(err) {
		return domain.ErrConflict
	}
	return err
}

func (r *outboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	var rows []outboxModel
	if err := r.db.WithContext(ctx).Where("published_at IS NULL").Order("created_at asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		var env contracts.EventEnvelope
		if err := json.Unmarshal([]byte(row.Payload), &env); err != nil {
			return nil, errors.Join(errors.New("decode outbox envelope "+row.OutboxID), err)
		}
		out = append(out, ports.OutboxRecord{
			RecordID: row.OutboxID, EventType: row.EventType, PartitionKey: row.PartitionKey,
			Envelope: env, RetryCount: row.RetryCount, CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, recordID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&outboxModel{}).Where("outbox_id = ?", recordID).Update("published_at", at).Error
}

func (r *outboxRepository) MarkFailed(ctx context.Context, recordID, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&outboxModel{}).Where("outbox_id = ?", recordID).Updates(map[string]any{
		"retry_count":   gorm.Expr("retry_count + 1"),
		"last_error":    errMsg,
		"last_error_at": at,
	}).Error
}

var _ ports.OutboxRepository = (*outboxRepository)(nil)
