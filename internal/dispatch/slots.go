package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"batchcall-platform/pkg/utils"
)

// RedisSlots enforces the per-batch dial cap across processor instances with
// an atomic redis counter. Slots are released explicitly on dial-initiation
// failure; otherwise the TTL reclaims them, so TTL should comfortably exceed
// the longest expected call setup.
type RedisSlots struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewRedisSlots(rdb *redis.Client, ttl time.Duration) *RedisSlots {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisSlots{RDB: rdb, TTL: ttl}
}

func (s *RedisSlots) Acquire(ctx context.Context, batchID string, limit int) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, s.RDB, slotKey(batchID), limit, s.TTL)
}

func (s *RedisSlots) Release(ctx context.Context, batchID string) error {
	return utils.ReleaseConcurrencyCap(ctx, s.RDB, slotKey(batchID))
}

func slotKey(batchID string) string { return "batch:" + batchID + ":dial_slots" }

// UnlimitedSlots is a no-op limiter for tests and single-instance setups
// where the database in-flight count is the only cap.
type UnlimitedSlots struct{}

func (UnlimitedSlots) Acquire(ctx context.Context, batchID string, limit int) (bool, error) {
	return true, nil
}

func (UnlimitedSlots) Release(ctx context.Context, batchID string) error { return nil }
