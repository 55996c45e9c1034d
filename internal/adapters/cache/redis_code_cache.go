package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

const codeKeyPrefix = "affiliate:code:"

// RedisCodeCache caches referral code -> affiliate id. Codes never move
// between affiliates, so entries are only ever expired, never invalidated.
type RedisCodeCache struct {
	client *redis.Client
}

func NewRedisCodeCache(client *redis.Client) *RedisCodeCache {
	return &RedisCodeCache{client: client}
}

func (c *RedisCodeCache) GetAffiliateID(ctx context.Context, code string) (string, bool, error) {
	v, err := c.client.Get(ctx, codeKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCodeCache) SetAffiliateID(ctx context.Context, code, affiliateID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return c.client.Set(ctx, codeKeyPrefix+code, affiliateID, ttl).Err()
}

var _ ports.CodeCache = (*RedisCodeCache)(nil)
