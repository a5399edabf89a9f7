package milvus

import (
	"context"
	"errors"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/config"
)

// fakeMilvus 只实现被调用到的方法，其余方法调用会 panic
type fakeMilvus struct {
	client.Client

	results    []client.SearchResult
	deleteExpr string
	upserted   int
	topK       int
}

func (f *fakeMilvus) Search(_ context.Context, _ string, _ []string, _ string, _ []string, _ []entity.Vector, _ string, _ entity.MetricType, topK int, _ entity.SearchParam, _ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.topK = topK
	return f.results, nil
}

func (f *fakeMilvus) Delete(_ context.Context, _ string, _ string, expr string) error {
	f.deleteExpr = expr
	return nil
}

func (f *fakeMilvus) Upsert(_ context.Context, _ string, _ string, columns ...entity.Column) (entity.Column, error) {
	f.upserted = columns[0].Len()
	return columns[0], nil
}

func newTestIndex(f *fakeMilvus) *VectorIndex {
	return NewVectorIndex(newClientWith(f, &config.MilvusConfig{CollectionPrefix: "rag_hub", SearchEf: 64}), 2)
}

func TestVectorIndex_SearchRemapsCosine(t *testing.T) {
	f := &fakeMilvus{results: []client.SearchResult{{
		ResultCount: 3,
		IDs:         entity.NewColumnVarChar("id", []string{"d#0001", "d#0002", "d#0003"}),
		Scores:      []float32{1, 0, -1},
	}}}
	idx := newTestIndex(f)

	got, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{1, 0.5, 0}
	if len(got) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(got))
	}
	for i, w := range want {
		if got[i].Score != w {
			t.Fatalf("hit %d: expected score %v, got %v", i, w, got[i].Score)
		}
	}
	if f.topK != 3 {
		t.Fatalf("expected topK 3, got %d", f.topK)
	}
}

func TestVectorIndex_DimensionChecks(t *testing.T) {
	idx := newTestIndex(&fakeMilvus{})
	if _, err := idx.Search(context.Background(), []float32{1, 2, 3}, 1); !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	err := idx.Insert(context.Background(), retrieval.VectorEntry{ChunkID: "a", DocumentID: "d", Vector: []float32{1}})
	if !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestVectorIndex_InsertAndRemove(t *testing.T) {
	f := &fakeMilvus{}
	idx := newTestIndex(f)

	err := idx.Insert(context.Background(),
		retrieval.VectorEntry{ChunkID: "d#0000", DocumentID: "d", Vector: []float32{1, 0}},
		retrieval.VectorEntry{ChunkID: "d#0001", DocumentID: "d", Vector: []float32{0, 1}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.upserted != 2 {
		t.Fatalf("expected 2 upserted rows, got %d", f.upserted)
	}

	if err := idx.Remove(context.Background(), `d"x`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.deleteExpr != `document_id == "d\"x"` {
		t.Fatalf("unexpected delete expression: %s", f.deleteExpr)
	}
}

func TestVectorDimension(t *testing.T) {
	if got := vectorDimension(ChunksSchema("c", 768)); got != 768 {
		t.Fatalf("expected 768, got %d", got)
	}
	if got := vectorDimension(nil); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
