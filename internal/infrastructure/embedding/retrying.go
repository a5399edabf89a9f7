package embedding

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/embedding"

	"rag-knowledge-hub/internal/infrastructure/retry"
)

const defaultBatchSize = 32

// RetryingEmbedder 按批切分请求，每批独立按重试策略调用底层 Embedder。
// 同一批的重试只会重新请求该批，不产生重复结果。
type RetryingEmbedder struct {
	inner     embedding.Embedder
	policy    retry.Policy
	batchSize int
}

var _ embedding.Embedder = (*RetryingEmbedder)(nil)

func NewRetryingEmbedder(inner embedding.Embedder, policy retry.Policy, batchSize int) *RetryingEmbedder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &RetryingEmbedder{inner: inner, policy: policy, batchSize: batchSize}
}

func (e *RetryingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		batch := texts[start:min(start+e.batchSize, len(texts))]
		vecs, err := retry.Do(ctx, e.policy, "embedding", func(ctx context.Context) ([][]float64, error) {
			v, err := e.inner.EmbedStrings(ctx, batch, opts...)
			if err != nil && !isRetryable(err) {
				return nil, retry.Permanent(err)
			}
			return v, err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func isRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
