package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryVectorIndex_SearchOrderAndRemap(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryVectorIndex(2)
	err := idx.Insert(ctx,
		VectorEntry{ChunkID: "a", DocumentID: "d1", Vector: []float32{1, 0}},
		VectorEntry{ChunkID: "b", DocumentID: "d1", Vector: []float32{0, 1}},
		VectorEntry{ChunkID: "c", DocumentID: "d2", Vector: []float32{-1, 0}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 3 || hits[0].ChunkID != "a" || hits[2].ChunkID != "c" {
		t.Fatalf("unexpected order: %+v", hits)
	}
	if hits[0].Score != 1 || hits[1].Score != 0.5 || hits[2].Score != 0 {
		t.Fatalf("expected remapped scores 1/0.5/0, got %+v", hits)
	}
}

func TestMemoryVectorIndex_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryVectorIndex(2)
	for _, id := range []string{"z", "y", "x", "w"} {
		if err := idx.Insert(ctx, VectorEntry{ChunkID: id, DocumentID: "d", Vector: []float32{1, 1}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	hits, _ := idx.Search(ctx, []float32{1, 1}, 4)
	for i, want := range []string{"z", "y", "x", "w"} {
		if hits[i].ChunkID != want {
			t.Fatalf("expected insertion order z,y,x,w, got %+v", hits)
		}
	}
}

func TestMemoryVectorIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryVectorIndex(3)
	if err := idx.Insert(ctx, VectorEntry{ChunkID: "a", DocumentID: "d", Vector: []float32{1, 0}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on insert, got %v", err)
	}
	if _, err := idx.Search(ctx, []float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on search, got %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected rejected insert to leave index empty")
	}
}

func TestMemoryVectorIndex_EmptyAndRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryVectorIndex(2)
	hits, err := idx.Search(ctx, []float32{1, 0}, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected empty result without error, got %v, %v", hits, err)
	}

	_ = idx.Insert(ctx,
		VectorEntry{ChunkID: "a", DocumentID: "d1", Vector: []float32{1, 0}},
		VectorEntry{ChunkID: "b", DocumentID: "d2", Vector: []float32{1, 0}},
	)
	if err := idx.Remove(ctx, "d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hits, _ = idx.Search(ctx, []float32{1, 0}, 5)
	if len(hits) != 1 || hits[0].ChunkID != "b" {
		t.Fatalf("expected only d2 chunk after cascade delete, got %+v", hits)
	}
}

func TestMemoryVectorIndex_RetryDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryVectorIndex(2)
	e := VectorEntry{ChunkID: "a", DocumentID: "d", Vector: []float32{1, 0}}
	for i := 0; i < 3; i++ {
		if err := idx.Insert(ctx, e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 entry after repeated inserts, got %d", idx.Len())
	}
}

func TestMemoryVectorIndex_ConcurrentReadWrite(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryVectorIndex(2)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = idx.Insert(ctx, VectorEntry{ChunkID: string(rune('a'+w)) + string(rune('0'+i%10)), DocumentID: "d", Vector: []float32{float32(i), 1}})
				if _, err := idx.Search(ctx, []float32{1, 1}, 3); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()
	if idx.Len() != 40 {
		t.Fatalf("expected 40 distinct chunks, got %d", idx.Len())
	}
}

func TestKeywordIndex_BM25Ranking(t *testing.T) {
	ctx := context.Background()
	idx := NewKeywordIndex(0, -1)
	idx.Insert(ctx,
		KeywordEntry{ChunkID: "c1", DocumentID: "d1", Text: "The refund policy allows returns within 30 days."},
		KeywordEntry{ChunkID: "c2", DocumentID: "d1", Text: "Shipping is free for orders over 50 dollars."},
		KeywordEntry{ChunkID: "c3", DocumentID: "d2", Text: "Refund requests need a receipt. Refund is issued to the card."},
	)

	hits := idx.Search(ctx, "refund receipt", 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %+v", hits)
	}
	if hits[0].ChunkID != "c3" {
		t.Fatalf("expected c3 first, got %+v", hits)
	}
	for _, h := range hits {
		if h.Score <= 0 || h.Score > 1 {
			t.Fatalf("expected score in (0,1], got %v", h.Score)
		}
	}
}

func TestKeywordIndex_UnseenTermsAndCaseFolding(t *testing.T) {
	ctx := context.Background()
	idx := NewKeywordIndex(1.2, 0.75)
	idx.Insert(ctx, KeywordEntry{ChunkID: "c1", DocumentID: "d1", Text: "Quarterly REVENUE grew."})

	if hits := idx.Search(ctx, "zzzz qqqq", 5); len(hits) != 0 {
		t.Fatalf("expected no hits for unseen terms, got %+v", hits)
	}
	withUnseen := idx.Search(ctx, "revenue zzzz", 5)
	alone := idx.Search(ctx, "Revenue!", 5)
	if len(withUnseen) != 1 || len(alone) != 1 {
		t.Fatalf("expected a single hit, got %+v / %+v", withUnseen, alone)
	}
	if withUnseen[0].Score != alone[0].Score {
		t.Fatalf("expected unseen term to contribute zero, got %v vs %v", withUnseen[0].Score, alone[0].Score)
	}
}

func TestKeywordIndex_RemoveCascades(t *testing.T) {
	ctx := context.Background()
	idx := NewKeywordIndex(1.2, 0.75)
	idx.Insert(ctx,
		KeywordEntry{ChunkID: "c1", DocumentID: "d1", Text: "alpha beta"},
		KeywordEntry{ChunkID: "c2", DocumentID: "d1", Text: "alpha gamma"},
		KeywordEntry{ChunkID: "c3", DocumentID: "d2", Text: "alpha delta"},
	)
	idx.Remove(ctx, "d1")
	if idx.Len() != 1 {
		t.Fatalf("expected 1 chunk left, got %d", idx.Len())
	}
	hits := idx.Search(ctx, "alpha", 5)
	if len(hits) != 1 || hits[0].ChunkID != "c3" {
		t.Fatalf("expected only c3, got %+v", hits)
	}
	if hits := idx.Search(ctx, "beta", 5); len(hits) != 0 {
		t.Fatalf("expected removed postings to be gone, got %+v", hits)
	}
}

func TestKeywordIndex_TiesByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewKeywordIndex(1.2, 0.75)
	idx.Insert(ctx,
		KeywordEntry{ChunkID: "z", DocumentID: "d", Text: "same words here"},
		KeywordEntry{ChunkID: "a", DocumentID: "d", Text: "same words here"},
	)
	hits := idx.Search(ctx, "words", 5)
	if len(hits) != 2 || hits[0].ChunkID != "z" {
		t.Fatalf("expected insertion order on ties, got %+v", hits)
	}
}
