package milvus

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/pkg/metrics"
)

// VectorIndex 基于 Milvus 的向量索引：HNSW + COSINE，分数线性映射到 [0,1]
//
// 写入走 Upsert，对同一切片 ID 幂等；检索使用强一致性，写入后立即可见。
type VectorIndex struct {
	client *Client
	dim    int
}

var _ retrieval.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex 创建向量索引；调用前应先 EnsureCollection
func NewVectorIndex(c *Client, dim int) *VectorIndex {
	return &VectorIndex{client: c, dim: dim}
}

func (v *VectorIndex) Dimension() int {
	return v.dim
}

func (v *VectorIndex) collection() string {
	return v.client.CollectionName(CollectionChunks)
}

// EnsureCollection 集合不存在时建表、建索引并加载；已存在时校验维度
func (v *VectorIndex) EnsureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.EnsureCollection",
		trace.WithAttributes(attribute.String("collection", v.collection())))
	defer span.End()

	mc := v.client.milvus
	has, err := mc.HasCollection(ctx, v.collection())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		coll, err := mc.DescribeCollection(ctx, v.collection())
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to describe collection: %w", err)
		}
		if got := vectorDimension(coll.Schema); got != 0 && got != v.dim {
			return fmt.Errorf("%w: collection %s has %d, embedder produces %d", retrieval.ErrDimensionMismatch, v.collection(), got, v.dim)
		}
	} else {
		if err := mc.CreateCollection(ctx, ChunksSchema(v.collection(), v.dim), entity.DefaultShardNumber); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create collection: %w", err)
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, v.client.config.HNSWM, v.client.config.HNSWEfConstruction)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to build index params: %w", err)
		}
		if err := mc.CreateIndex(ctx, v.collection(), fieldVector, idx, false); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := mc.LoadCollection(ctx, v.collection(), false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (v *VectorIndex) Insert(ctx context.Context, entries ...retrieval.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.VectorIndex.Insert",
		trace.WithAttributes(attribute.Int("count", len(entries))))
	defer span.End()

	ids := make([]string, len(entries))
	docIDs := make([]string, len(entries))
	vectors := make([][]float32, len(entries))
	for i, e := range entries {
		if len(e.Vector) != v.dim {
			return fmt.Errorf("%w: chunk %s has %d, index expects %d", retrieval.ErrDimensionMismatch, e.ChunkID, len(e.Vector), v.dim)
		}
		ids[i] = e.ChunkID
		docIDs[i] = e.DocumentID
		vectors[i] = e.Vector
	}

	_, err := v.client.milvus.Upsert(ctx, v.collection(), "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnVarChar(fieldDocumentID, docIDs),
		entity.NewColumnFloatVector(fieldVector, v.dim, vectors),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

func (v *VectorIndex) Remove(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "milvus.VectorIndex.Remove",
		trace.WithAttributes(attribute.String("document_id", documentID)))
	defer span.End()

	if err := v.client.milvus.Delete(ctx, v.collection(), "", documentFilter(documentID)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]retrieval.ScoredChunk, error) {
	if len(query) != v.dim {
		return nil, fmt.Errorf("%w: query has %d, index expects %d", retrieval.ErrDimensionMismatch, len(query), v.dim)
	}
	if k <= 0 {
		return []retrieval.ScoredChunk{}, nil
	}

	ctx, span := tracer.Start(ctx, "milvus.VectorIndex.Search",
		trace.WithAttributes(attribute.Int("top_k", k)))
	defer span.End()

	ef := max(v.client.config.SearchEf, k)
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	start := time.Now()
	results, err := v.client.milvus.Search(ctx,
		v.collection(),
		nil,
		"",
		[]string{fieldID},
		[]entity.Vector{entity.FloatVector(query)},
		fieldVector,
		entity.COSINE,
		k,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	metrics.MilvusSearchDuration.WithLabelValues(CollectionChunks).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MilvusSearchTotal.WithLabelValues(CollectionChunks, "error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(CollectionChunks, "success").Inc()

	out := make([]retrieval.ScoredChunk, 0, k)
	for _, res := range results {
		ids, ok := res.IDs.(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		data := ids.Data()
		for i := 0; i < res.ResultCount && i < len(data) && i < len(res.Scores); i++ {
			out = append(out, retrieval.ScoredChunk{
				ChunkID: data[i],
				Score:   retrieval.RemapCosine(math.Max(-1, math.Min(1, float64(res.Scores[i])))),
			})
		}
	}
	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// Reset 删除并重建集合
func (v *VectorIndex) Reset(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.VectorIndex.Reset")
	defer span.End()

	if err := v.client.milvus.DropCollection(ctx, v.collection()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return v.EnsureCollection(ctx)
}

func documentFilter(documentID string) string {
	return fieldDocumentID + " == " + strconv.Quote(documentID)
}
