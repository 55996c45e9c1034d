package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
	"gorm.io/gorm"
)

type idempotencyRepository struct {
	db *gorm.DB
}

func (r *idempotencyRepository) Get(ctx context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	var rec idempotencyModel
	if err := r.db.WithContext(ctx).Where("idempotency_key = ? AND expires_at > ?", key, now).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	out := &ports.IdempotencyRecord{
		Key: rec.IdempotencyKey, RequestHash: rec.RequestHash,
		ResponseCode: rec.ResponseCode, ExpiresAt: rec.ExpiresAt,
	}
	if rec.ResponseBody != nil {
		out.ResponseBody = []byte(*rec.ResponseBody)
	}
	return out, nil
}

// Reserve claims key. An expired row is replaced; a live one is a conflict.
func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error {
	now := time.Now().UTC()
	db := r.db.WithContext(ctx)
	if err := db.Where("idempotency_key = ? AND expires_at <= ?", key, now).Delete(&idempotencyModel{}).Error; err != nil {
		return err
	}
	rec := idempotencyModel{
		IdempotencyKey: key,
		RequestHash:    requestHash,
		Status:         "reserved",
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := db.Create(&rec).Error
	if err != nil && isUniqueViolation(err) {
		var existing idempotencyModel
		if takeErr := db.Where("idempotency_key = ?", key).Take(&existing).Error; takeErr == nil && existing.RequestHash != requestHash {
			return domain.ErrIdempotencyConflict
		}
		return domain.ErrConflict
	}
	return err
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	payload := string(responseBody)
	return r.db.WithContext(ctx).Model(&idempotencyModel{}).
		Where("idempotency_key = ?", key).
		Updates(map[string]any{
			"status":        "completed",
			"response_code": responseCode,
			"response_body": payload,
			"updated_at":    at,
		}).Error
}

func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("idempotency_key = ? AND status = ?", key, "reserved").
		Delete(&idempotencyModel{}).Error
}

type auditLogRepository struct {
	db *gorm.DB
}

func (r *auditLogRepository) Append(ctx context.Context, row domain.AuditLog) error {
	meta := "{}"
	if len(row.Metadata) > 0 {
		raw, err := json.Marshal(row.Metadata)
		if err != nil {
			return err
		}
		meta = string(raw)
	}
	return r.db.WithContext(ctx).Create(&auditLogModel{
		AuditLogID: row.AuditLogID, EntityType: row.EntityType, EntityID: row.EntityID, Action: row.Action,
		ActorID: row.ActorID, Notes: row.Notes, Metadata: meta, CreatedAt: row.CreatedAt,
	}).Error
}

var (
	_ ports.IdempotencyRepository = (*idempotencyRepository)(nil)
	_ ports.AuditLogRepository    = (*auditLogRepository)(nil)
)
