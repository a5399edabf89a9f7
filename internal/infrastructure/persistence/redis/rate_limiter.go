package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// RateLimiter 基于有序集合的滑动窗口限流器
type RateLimiter struct {
	rdb redis.Cmdable
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{rdb: client.rdb}
}

// Allow 窗口内请求数未达 limit 时放行并记录本次请求，返回放行结果与剩余配额
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Allow")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)
	defer span.End()

	now := time.Now()
	windowStart := now.Add(-window).UnixMicro()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return false, 0, err
	}

	count := int(countCmd.Val())
	span.SetAttributes(attribute.Int("ratelimit.current_count", count))
	if count >= limit {
		span.SetAttributes(attribute.Bool("ratelimit.allowed", false))
		return false, 0, nil
	}

	pipe = l.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()})
	pipe.Expire(ctx, key, window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return false, 0, err
	}

	span.SetAttributes(attribute.Bool("ratelimit.allowed", true))
	return true, limit - count - 1, nil
}

// BuildRateLimitKey 限流键：调用方 + 路由
func BuildRateLimitKey(subject, route string) string {
	return fmt.Sprintf("ratelimit:%s:%s", subject, route)
}
