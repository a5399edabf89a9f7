package knowledge

import (
	"context"
	"errors"
	"fmt"

	"rag-knowledge-hub/internal/application/retrieval"
	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/pkg/logger"
	"rag-knowledge-hub/pkg/tracer"
)

// WarmStart 从 PostgreSQL 重建内存索引。
// 已存向量的切片直接复用；缺向量的切片补算后回写。单篇失败只记录日志。
func (s *Service) WarmStart(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Service.WarmStart")
	defer span.End()

	ids, err := s.docs.ListIDs(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return 0, fmt.Errorf("list stored documents: %w", err)
	}

	loaded := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		if err := s.LoadDocument(ctx, id); err != nil {
			logger.Warn(ctx, "warm start skipped document", "document_id", id, "error", err.Error())
			continue
		}
		loaded++
	}

	stats := s.kb.Stats()
	logger.Info(ctx, "knowledge base warm start finished",
		"documents", loaded, "stored", len(ids), "chunks", stats.Chunks, "embedded", stats.EmbeddedChunks)
	return loaded, nil
}

// LoadDocument 把已持久化的文档装入内存索引；文档已被删除时返回 ErrDocumentNotFound
func (s *Service) LoadDocument(ctx context.Context, documentID string) error {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return retrieval.ErrDocumentNotFound
	}
	chunks, err := s.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("document %s has no stored chunks", documentID)
	}

	// 嵌入模型更换后旧向量维度不符，整篇丢弃重算
	if dim := s.kb.Stats().Dimension; dim > 0 && hasForeignDimension(chunks, dim) {
		logger.Warn(ctx, "stored embeddings do not match index dimension, re-embedding", "document_id", documentID)
		for _, c := range chunks {
			c.Embedding = nil
		}
	}

	if err := s.backfill(ctx, chunks); err != nil {
		return err
	}
	return s.kb.AddDocument(ctx, doc, chunks)
}

func (s *Service) backfill(ctx context.Context, chunks []*entity.Chunk) error {
	missing := make(map[string]bool)
	for _, c := range chunks {
		if !c.HasEmbedding() {
			missing[c.ID] = true
		}
	}
	if len(missing) == 0 || !s.indexer.Enabled() {
		return nil
	}

	report, err := s.indexer.EmbedChunks(ctx, chunks)
	if err != nil {
		if errors.Is(err, retrieval.ErrDimensionMismatch) {
			return err
		}
		logger.Warn(ctx, "embedding backfill failed", "error", err.Error())
		return nil
	}
	for _, c := range chunks {
		if !missing[c.ID] || !c.HasEmbedding() {
			continue
		}
		if err := s.chunks.UpdateEmbedding(ctx, c.ID, c.Embedding); err != nil {
			logger.Warn(ctx, "failed to store backfilled embedding", "chunk_id", c.ID, "error", err.Error())
		}
	}
	logger.Debug(ctx, "embedding backfill finished", "embedded", report.Embedded, "failed", report.Failed)
	return nil
}

func hasForeignDimension(chunks []*entity.Chunk, dim int) bool {
	for _, c := range chunks {
		if c.HasEmbedding() && len(c.Embedding) != dim {
			return true
		}
	}
	return false
}
