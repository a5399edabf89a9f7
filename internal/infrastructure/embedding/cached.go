package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/metrics"
)

const cacheKeyPrefix = "emb:"

// Store 缓存端口，由 redis.Cache 实现
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) ([]byte, error)) ([]byte, bool, error)
}

// CachedEmbedder 以 sha256(model:text) 为键缓存单条文本的向量。
// 单条请求（查询）经 singleflight 合并；批量请求只为未命中的文本调用底层 Embedder。
type CachedEmbedder struct {
	inner embedding.Embedder
	store Store
	model string
	ttl   time.Duration
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner embedding.Embedder, store Store, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{inner: inner, store: store, model: model, ttl: ttl}
}

// CacheKey 嵌入缓存键
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + ":" + text))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (e *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 1 {
		v, err := e.embedOne(ctx, texts[0], opts...)
		if err != nil {
			return nil, err
		}
		return [][]float64{v}, nil
	}

	out := make([][]float64, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := e.lookup(ctx, t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("hit").Add(float64(len(texts) - len(missIdx)))
	metrics.EmbeddingCacheTotal.WithLabelValues("miss").Add(float64(len(missIdx)))
	if len(missIdx) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedStrings(ctx, missTexts, opts...)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		e.remember(ctx, missTexts[j], vecs[j])
	}
	return out, nil
}

func (e *CachedEmbedder) embedOne(ctx context.Context, text string, opts ...embedding.Option) ([]float64, error) {
	raw, hit, err := e.store.GetOrLoad(ctx, CacheKey(e.model, text), e.ttl, func(ctx context.Context) ([]byte, error) {
		vecs, err := e.inner.EmbedStrings(ctx, []string{text}, opts...)
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want 1", len(vecs))
		}
		return json.Marshal(vecs[0])
	})
	if err != nil {
		return nil, err
	}
	if hit {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	} else {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	}
	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode cached embedding: %w", err)
	}
	return v, nil
}

func (e *CachedEmbedder) lookup(ctx context.Context, text string) ([]float64, bool) {
	raw, err := e.store.Get(ctx, CacheKey(e.model, text))
	if err != nil {
		return nil, false
	}
	var v []float64
	if err := json.Unmarshal(raw, &v); err != nil || len(v) == 0 {
		return nil, false
	}
	return v, true
}

func (e *CachedEmbedder) remember(ctx context.Context, text string, v []float64) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := e.store.Set(ctx, CacheKey(e.model, text), raw, e.ttl); err != nil {
		logger.Debug(ctx, "embedding cache write failed", "error", err.Error())
	}
}
