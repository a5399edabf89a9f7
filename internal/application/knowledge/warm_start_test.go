package knowledge

import (
	"context"
	"testing"

	"rag-knowledge-hub/internal/domain/entity"
)

func storeDocument(t *testing.T, f *fixture, id string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	_ = f.docs.Create(ctx, &entity.Document{ID: id, Filename: id + ".txt", Pages: []string{"Refunds are accepted."}, ChunkCount: 1})
	_ = f.chunks.CreateBatch(ctx, []*entity.Chunk{{
		ID: entity.ChunkID(id, 0), DocumentID: id, Ordinal: 0, End: 21, Page: 1,
		Text: "Refunds are accepted.", Embedding: vec,
	}})
}

func TestWarmStartReusesStoredVectors(t *testing.T) {
	f := newFixture(2, 2, []float64{0, 1})
	storeDocument(t, f, "d1", []float32{1, 0})

	loaded, err := f.svc.WarmStart(context.Background())
	if err != nil || loaded != 1 {
		t.Fatalf("expected 1 document loaded, got %d (%v)", loaded, err)
	}
	if f.emb.calls != 0 {
		t.Fatalf("expected stored vectors reused, got %d embed calls", f.emb.calls)
	}
	if f.kb.Stats().EmbeddedChunks != 1 {
		t.Fatalf("expected 1 embedded chunk, got %+v", f.kb.Stats())
	}
}

func TestWarmStartBackfillsMissingVectors(t *testing.T) {
	f := newFixture(2, 2, []float64{0, 1})
	storeDocument(t, f, "d1", nil)

	if _, err := f.svc.WarmStart(context.Background()); err != nil {
		t.Fatalf("expected warm start to succeed, got %v", err)
	}
	if f.chunks.updates != 1 {
		t.Fatalf("expected backfilled vector written back, got %d updates", f.chunks.updates)
	}
	if f.kb.Stats().EmbeddedChunks != 1 {
		t.Fatalf("expected 1 embedded chunk, got %+v", f.kb.Stats())
	}
}

func TestWarmStartReembedsForeignDimension(t *testing.T) {
	f := newFixture(2, 2, []float64{0, 1})
	storeDocument(t, f, "d1", []float32{1, 0, 0})

	if _, err := f.svc.WarmStart(context.Background()); err != nil {
		t.Fatalf("expected warm start to succeed, got %v", err)
	}
	if f.emb.calls != 1 || f.chunks.updates != 1 {
		t.Fatalf("expected re-embed and write back, got %d calls %d updates", f.emb.calls, f.chunks.updates)
	}
	c, ok := f.kb.Chunk(entity.ChunkID("d1", 0))
	if !ok || len(c.Embedding) != 2 {
		t.Fatalf("expected 2-d vector in index, got %+v", c)
	}
}

func TestWarmStartSkipsBrokenDocuments(t *testing.T) {
	f := newFixture(2, 2, []float64{0, 1})
	storeDocument(t, f, "d1", []float32{1, 0})
	_ = f.docs.Create(context.Background(), &entity.Document{ID: "d2", Filename: "empty.txt"})

	loaded, err := f.svc.WarmStart(context.Background())
	if err != nil {
		t.Fatalf("expected warm start to succeed, got %v", err)
	}
	if loaded != 1 {
		t.Fatalf("expected 1 document loaded, got %d", loaded)
	}
}
