package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 字节值缓存，未命中时经 singleflight 合并加载
type Cache struct {
	rdb   redis.Cmdable
	group singleflight.Group
}

func NewCache(client *Client) *Cache {
	return &Cache{rdb: client.rdb}
}

// Get 未命中时返回 redis.Nil（用 IsNil 判断）
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !IsNil(err) {
			span.RecordError(err)
		}
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", true))
	return val, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetOrLoad 读穿缓存：命中直接返回；未命中时同一 key 的并发请求只调用一次 loader。
// 缓存读写失败不影响 loader 的结果。hit 表示结果来自缓存。
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) ([]byte, error)) (val []byte, hit bool, err error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoad",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	if val, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, true, nil
	} else if !IsNil(err) {
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	res, err, shared := c.group.Do(key, func() (any, error) {
		data, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
			span.RecordError(err)
		}
		return data, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	return res.([]byte), false, nil
}
