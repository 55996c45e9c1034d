package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/viralforge/affiliate-ledger/internal/domain"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

type idempotencyGuard struct {
	repo  ports.IdempotencyRepository
	ttl   time.Duration
	nowFn func() time.Time
}

// replay returns the stored response for key when the same request was already
// completed. A different payload under the same key is a conflict.
func (g idempotencyGuard) replay(ctx context.Context, key, requestHash string, out any) (bool, error) {
	if g.repo == nil || strings.TrimSpace(key) == "" {
		return false, nil
	}
	rec, err := g.repo.Get(ctx, key, g.nowFn())
	if err != nil || rec == nil {
		return false, err
	}
	if rec.RequestHash != requestHash {
		return false, domain.ErrIdempotencyConflict
	}
	if len(rec.ResponseBody) == 0 {
		return false, domain.ErrConflict
	}
	return json.Unmarshal(rec.ResponseBody, out) == nil, nil
}

func (g idempotencyGuard) reserve(ctx context.Context, key, requestHash string) error {
	if g.repo == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	return g.repo.Reserve(ctx, key, requestHash, g.nowFn().Add(g.ttl))
}

func (g idempotencyGuard) complete(ctx context.Context, key string, code int, v any) error {
	if g.repo == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	raw, _ := json.Marshal(v)
	return g.repo.Complete(ctx, key, code, raw, g.nowFn())
}

// release frees key after the guarded operation failed, so the client can retry
// with the same key.
func (g idempotencyGuard) release(ctx context.Context, key string) error {
	if g.repo == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	return g.repo.Release(ctx, key)
}
