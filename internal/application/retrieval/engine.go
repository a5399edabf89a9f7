package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/service"
	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/metrics"
	"rag-knowledge-hub/pkg/tracer"
)

// Hit 带切片内容的检索结果
type Hit struct {
	SearchResult
	Chunk    *entity.Chunk
	Filename string
}

type SearchOutput struct {
	Hits []Hit
	Mode Mode

	// DisabledReason 语义一路被降级时的原因（为空表示未降级）
	DisabledReason string
	QueryEmbedding []float32
	Elapsed        time.Duration
}

// NoRelevantContext 阈值过滤后没有候选
func (o *SearchOutput) NoRelevantContext() bool {
	return o == nil || len(o.Hits) == 0
}

type Engine struct {
	kb       *KnowledgeBase
	ranker   *Ranker
	embedder embedding.Embedder
}

func NewEngine(kb *KnowledgeBase, embedder embedding.Embedder) *Engine {
	return &Engine{
		kb:       kb,
		ranker:   NewRanker(kb.VectorIndex(), kb.KeywordIndex()),
		embedder: embedder,
	}
}

func (e *Engine) KnowledgeBase() *KnowledgeBase {
	return e.kb
}

func (e *Engine) Search(ctx context.Context, query string, p Params) (*SearchOutput, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Engine.Search")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if e.kb.IsEmpty() {
		return nil, ErrEmptyKnowledgeBase
	}

	start := time.Now()
	out := &SearchOutput{}

	// 1) 查询向量（失败则降级为关键词单路）
	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		out.DisabledReason = err.Error()
		metrics.RetrievalDegradedTotal.WithLabelValues(degradeReason(err)).Inc()
		logger.Warn(ctx, "semantic search degraded to keyword-only", "reason", err.Error())
	} else {
		out.QueryEmbedding = vec
	}

	// 2) 融合排序
	results, mode, err := e.ranker.Rank(ctx, query, vec, p)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	out.Mode = mode

	// 3) 补全切片内容
	out.Hits = make([]Hit, 0, len(results))
	for _, r := range results {
		c, ok := e.kb.Chunk(r.ChunkID)
		if !ok {
			continue
		}
		h := Hit{SearchResult: r, Chunk: c}
		if d, ok := e.kb.Document(c.DocumentID); ok {
			h.Filename = d.Filename
		}
		h.Rank = len(out.Hits) + 1
		out.Hits = append(out.Hits, h)
	}

	out.Elapsed = time.Since(start)
	metrics.RetrievalDuration.WithLabelValues(string(mode)).Observe(out.Elapsed.Seconds())
	metrics.RetrievalResults.Observe(float64(len(out.Hits)))
	logger.Debug(ctx, "retrieval finished", "mode", mode, "hits", len(out.Hits), "elapsed_ms", out.Elapsed.Milliseconds())
	return out, nil
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e == nil || e.embedder == nil {
		return nil, ErrVectorDisabled
	}
	if e.kb.Stats().EmbeddedChunks == 0 {
		return nil, ErrVectorDisabled
	}
	ctx = service.WithWorkflow(ctx, service.WorkflowQuery)
	v64, err := e.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(v64) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return toFloat32(v64[0]), nil
}

func degradeReason(err error) string {
	switch {
	case errors.Is(err, ErrVectorDisabled):
		return "disabled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "embedding_error"
	}
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, x := range vec {
		out[i] = float32(x)
	}
	return out
}
