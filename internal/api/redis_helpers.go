package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisRateCounter 是限流计数所需的 Redis 子集，*redis.Client 满足该接口。
type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// fixedWindow 是基于 Redis 计数器的固定窗口限流。
type fixedWindow struct {
	client redisRateCounter
	prefix string
	limit  int64
	window time.Duration
}

func newFixedWindow(client redisRateCounter, prefix string, limit int64, window time.Duration) *fixedWindow {
	return &fixedWindow{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow counts one hit for scope. When the window is exhausted it returns
// false and the time until the window resets.
func (w *fixedWindow) Allow(ctx context.Context, scope any) (bool, time.Duration, error) {
	key := fmt.Sprintf("%s:%v", w.prefix, scope)
	count, err := w.client.Incr(ctx, key).Result()
	if err != nil {
		return true, 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := w.client.Expire(ctx, key, w.window).Err(); err != nil {
			return true, 0, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	if count <= w.limit {
		return true, 0, nil
	}
	ttl, err := w.client.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		// 计数键丢失过期时间时补上，避免永久限流。
		_ = w.client.Expire(ctx, key, w.window).Err()
		ttl = w.window
	}
	return false, ttl, nil
}
