package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"rag-knowledge-hub/internal/domain/entity"
)

func newTestKB(dim int) *KnowledgeBase {
	return NewKnowledgeBase(NewMemoryVectorIndex(dim), NewKeywordIndex(0, 0))
}

func testChunks(docID string, texts []string, vecs [][]float32) []*entity.Chunk {
	out := make([]*entity.Chunk, len(texts))
	for i, text := range texts {
		c := &entity.Chunk{ID: entity.ChunkID(docID, i), DocumentID: docID, Ordinal: i, Text: text, Page: 1}
		if i < len(vecs) {
			c.Embedding = vecs[i]
		}
		out[i] = c
	}
	return out
}

func TestKnowledgeBase_AddAndStats(t *testing.T) {
	ctx := context.Background()
	kb := newTestKB(2)
	if !kb.IsEmpty() {
		t.Fatalf("expected empty knowledge base")
	}

	doc := &entity.Document{ID: "d1", Filename: "a.pdf"}
	chunks := testChunks("d1", []string{"alpha beta", "gamma delta", "epsilon"}, [][]float32{{1, 0}, {0, 1}})
	if err := kb.AddDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := kb.Stats()
	if st.Documents != 1 || st.Chunks != 3 || st.EmbeddedChunks != 2 || st.Dimension != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if doc.ChunkCount != 3 {
		t.Fatalf("expected chunk count 3, got %d", doc.ChunkCount)
	}
	if kb.KeywordIndex().Len() != 3 {
		t.Fatalf("expected 3 keyword entries, got %d", kb.KeywordIndex().Len())
	}
	if _, ok := kb.Chunk("d1#0002"); !ok {
		t.Fatalf("expected chunk metadata for d1#0002")
	}
}

func TestKnowledgeBase_ReAddReplacesChunks(t *testing.T) {
	ctx := context.Background()
	kb := newTestKB(2)
	_ = kb.AddDocument(ctx, &entity.Document{ID: "d1"}, testChunks("d1", []string{"one", "two", "three"}, nil))
	if err := kb.AddDocument(ctx, &entity.Document{ID: "d1"}, testChunks("d1", []string{"uno"}, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st := kb.Stats(); st.Chunks != 1 || st.Documents != 1 {
		t.Fatalf("expected replaced document with 1 chunk, got %+v", st)
	}
	if hits := kb.KeywordIndex().Search(ctx, "three", 5); len(hits) != 0 {
		t.Fatalf("expected stale chunk gone from keyword index, got %+v", hits)
	}
}

func TestKnowledgeBase_RemoveCascades(t *testing.T) {
	ctx := context.Background()
	kb := newTestKB(2)
	_ = kb.AddDocument(ctx, &entity.Document{ID: "d1"}, testChunks("d1", []string{"refund policy"}, [][]float32{{1, 0}}))
	_ = kb.AddDocument(ctx, &entity.Document{ID: "d2"}, testChunks("d2", []string{"shipping policy"}, [][]float32{{0, 1}}))

	if err := kb.RemoveDocument(ctx, "d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hits, err := kb.VectorIndex().Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, h := range hits {
		if h.ChunkID == "d1#0000" {
			t.Fatalf("expected d1 chunks gone from vector index, got %+v", hits)
		}
	}
	for _, h := range kb.KeywordIndex().Search(ctx, "policy", 5) {
		if h.ChunkID == "d1#0000" {
			t.Fatalf("expected d1 chunks gone from keyword index")
		}
	}
	if st := kb.Stats(); st.Documents != 1 || st.EmbeddedChunks != 1 {
		t.Fatalf("unexpected stats after remove: %+v", st)
	}
	if err := kb.RemoveDocument(ctx, "d1"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestKnowledgeBase_VectorInsertFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	kb := newTestKB(2)
	chunks := testChunks("d1", []string{"bad vector"}, [][]float32{{1, 0, 0}})
	if err := kb.AddDocument(ctx, &entity.Document{ID: "d1"}, chunks); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if !kb.IsEmpty() {
		t.Fatalf("expected metadata rolled back")
	}
	if _, ok := kb.Document("d1"); ok {
		t.Fatalf("expected document absent after rollback")
	}
}

func TestKnowledgeBase_ResetAndDocumentsOrder(t *testing.T) {
	ctx := context.Background()
	kb := newTestKB(2)
	now := time.Now()
	_ = kb.AddDocument(ctx, &entity.Document{ID: "old", CreatedAt: now.Add(-time.Hour)}, testChunks("old", []string{"x"}, nil))
	_ = kb.AddDocument(ctx, &entity.Document{ID: "new", CreatedAt: now}, testChunks("new", []string{"y"}, nil))

	docs := kb.Documents()
	if len(docs) != 2 || docs[0].ID != "new" {
		t.Fatalf("expected newest document first, got %+v", docs)
	}

	if err := kb.Reset(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !kb.IsEmpty() || kb.KeywordIndex().Len() != 0 {
		t.Fatalf("expected empty knowledge base after reset")
	}
}
