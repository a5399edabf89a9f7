package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/repository"
)

const chunkInsertBatch = 200

// ChunkRepository 切片仓储实现
type ChunkRepository struct {
	client *Client
}

var _ repository.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository 创建切片仓储
func NewChunkRepository(client *Client) *ChunkRepository {
	return &ChunkRepository{client: client}
}

// CreateBatch 批量写入切片，同 ID 覆盖
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*entity.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.CreateBatch")
	defer span.End()

	rows := make([]*chunkRow, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, toChunkRow(c))
	}

	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, chunkInsertBatch).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create chunks: %w", err)
	}
	return nil
}

// ListByDocument 按序号列出文档切片
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]*entity.Chunk, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.ListByDocument")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []chunkRow
	if err := db.Where("document_id = ?", documentID).Order("ordinal ASC").Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	out := make([]*entity.Chunk, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out, nil
}

// UpdateEmbedding 回填切片向量
func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.UpdateEmbedding")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&chunkRow{}).Where("id = ?", chunkID).Update("embedding", toFloat64s(embedding)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update chunk embedding: %w", err)
	}
	return nil
}

// DeleteByDocument 删除文档的全部切片
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.DeleteByDocument")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&chunkRow{}, "document_id = ?", documentID).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// DeleteAll 清空全部切片
func (r *ChunkRepository) DeleteAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.DeleteAll")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&chunkRow{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Count 切片总数与已嵌入数
func (r *ChunkRepository) Count(ctx context.Context) (int64, int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ChunkRepository.Count")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var res struct {
		Total    int64
		Embedded int64
	}
	err := db.Raw(`SELECT COUNT(*) AS total,
		COUNT(*) FILTER (WHERE COALESCE(cardinality(embedding), 0) > 0) AS embedded
		FROM chunks`).Scan(&res).Error
	if err != nil {
		span.RecordError(err)
		return 0, 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return res.Total, res.Embedded, nil
}
