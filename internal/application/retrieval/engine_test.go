package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/embedding"

	"rag-knowledge-hub/internal/domain/entity"
)

// fakeEmbedder 按文本查表返回向量，未登记的文本返回 fallback
type fakeEmbedder struct {
	vectors  map[string][]float64
	fallback []float64
	err      error
	calls    int
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = f.fallback
	}
	return out, nil
}

func seededKB(t *testing.T) *KnowledgeBase {
	t.Helper()
	kb := newTestKB(2)
	chunks := testChunks("d1",
		[]string{"refunds are issued within 30 days", "shipping takes five business days"},
		[][]float32{{1, 0}, {0, 1}},
	)
	if err := kb.AddDocument(context.Background(), &entity.Document{ID: "d1", Filename: "policy.pdf"}, chunks); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return kb
}

func TestEngine_EmptyKnowledgeBase(t *testing.T) {
	e := NewEngine(newTestKB(2), &fakeEmbedder{fallback: []float64{1, 0}})
	if _, err := e.Search(context.Background(), "anything", DefaultParams()); !errors.Is(err, ErrEmptyKnowledgeBase) {
		t.Fatalf("expected ErrEmptyKnowledgeBase, got %v", err)
	}
}

func TestEngine_HybridSearchHydratesHits(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{"refund window": {1, 0}}}
	e := NewEngine(seededKB(t), emb)

	out, err := e.Search(context.Background(), "  refund window ", Params{TopK: 5, Threshold: 0.5, Hybrid: true, SemanticWeight: 0.7, Oversample: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Mode != ModeHybrid || out.DisabledReason != "" {
		t.Fatalf("expected hybrid mode, got %s (%s)", out.Mode, out.DisabledReason)
	}
	if out.NoRelevantContext() {
		t.Fatalf("expected hits")
	}
	top := out.Hits[0]
	if top.ChunkID != "d1#0000" || top.Filename != "policy.pdf" || top.Chunk == nil {
		t.Fatalf("unexpected top hit: %+v", top)
	}
	if len(out.QueryEmbedding) != 2 {
		t.Fatalf("expected query embedding kept for evidence scoring")
	}
}

func TestEngine_DegradesToKeywordWhenEmbeddingFails(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("provider down")}
	e := NewEngine(seededKB(t), emb)

	out, err := e.Search(context.Background(), "shipping days", Params{TopK: 5, Threshold: 0.1, Hybrid: true, SemanticWeight: 0.7, Oversample: 2})
	if err != nil {
		t.Fatalf("expected degraded search, got error %v", err)
	}
	if out.Mode != ModeKeyword {
		t.Fatalf("expected keyword mode, got %s", out.Mode)
	}
	if out.DisabledReason == "" {
		t.Fatalf("expected disabled reason to be reported")
	}
	if out.NoRelevantContext() || out.Hits[0].ChunkID != "d1#0001" {
		t.Fatalf("expected shipping chunk first, got %+v", out.Hits)
	}
}

func TestEngine_NoEmbedderMeansKeywordOnly(t *testing.T) {
	e := NewEngine(seededKB(t), nil)
	out, err := e.Search(context.Background(), "refunds", Params{TopK: 5, Threshold: 0.1, Hybrid: true, SemanticWeight: 0.7, Oversample: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Mode != ModeKeyword || out.DisabledReason == "" {
		t.Fatalf("expected keyword mode with reason, got %s/%q", out.Mode, out.DisabledReason)
	}
}

func TestEngine_QueryDimensionMismatchFails(t *testing.T) {
	emb := &fakeEmbedder{fallback: []float64{1, 0, 0}}
	e := NewEngine(seededKB(t), emb)
	if _, err := e.Search(context.Background(), "refund", DefaultParams()); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}
