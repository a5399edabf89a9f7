package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"

	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/service"
	"rag-knowledge-hub/pkg/logger"
)

const (
	defaultEmbeddingBatch  = 32
	defaultEmbeddingWorker = 4
)

// Indexer 为切片批量计算向量。
// 某批嵌入失败时该批切片保持无向量（仍可被关键词检索），不影响其他批次；
// 返回维度与索引不符时视为契约错误，整篇失败。
type Indexer struct {
	embedder  embedding.Embedder
	dimension int

	batchSize   int
	concurrency int
}

// EmbedReport 一次嵌入的结果统计
type EmbedReport struct {
	Embedded int
	Failed   int
	// LastError 最后一个失败批次的错误
	LastError error
}

func NewIndexer(embedder embedding.Embedder, dimension, batchSize, concurrency int) *Indexer {
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatch
	}
	if concurrency <= 0 {
		concurrency = defaultEmbeddingWorker
	}
	return &Indexer{
		embedder:    embedder,
		dimension:   dimension,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

func (i *Indexer) Enabled() bool {
	return i != nil && i.embedder != nil
}

// EmbedChunks 为尚无向量的切片计算向量并原地写入 Chunk.Embedding
func (i *Indexer) EmbedChunks(ctx context.Context, chunks []*entity.Chunk) (EmbedReport, error) {
	pending := make([]*entity.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !c.HasEmbedding() {
			pending = append(pending, c)
		}
	}
	report := EmbedReport{Embedded: len(chunks) - len(pending)}
	if len(pending) == 0 {
		return report, nil
	}
	if !i.Enabled() {
		report.Failed = len(pending)
		report.LastError = ErrVectorDisabled
		return report, nil
	}

	ctx = service.WithWorkflow(ctx, service.WorkflowIngest)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for start := 0; start < len(pending); start += i.batchSize {
		batch := pending[start:min(start+i.batchSize, len(pending))]
		g.Go(func() error {
			vecs, err := i.embedBatch(gctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, ErrDimensionMismatch) {
					return err
				}
				report.Failed += len(batch)
				report.LastError = err
				logger.Warn(gctx, "chunk embedding failed, chunks stay keyword-only",
					"chunks", len(batch), "first_chunk", batch[0].ID, "error", err.Error())
				return nil
			}
			for idx, c := range batch {
				c.Embedding = vecs[idx]
			}
			report.Embedded += len(batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (i *Indexer) embedBatch(ctx context.Context, batch []*entity.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for idx, c := range batch {
		texts[idx] = c.Text
	}
	v64, err := i.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(v64) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(v64), len(texts))
	}
	out := make([][]float32, len(v64))
	for idx, v := range v64 {
		if i.dimension > 0 && len(v) != i.dimension {
			return nil, fmt.Errorf("%w: embedder returned %d, index expects %d", ErrDimensionMismatch, len(v), i.dimension)
		}
		out[idx] = toFloat32(v)
	}
	return out, nil
}
