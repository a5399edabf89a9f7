package repository

import (
	"context"

	"rag-knowledge-hub/internal/domain/entity"
)

// ChunkRepository 切片仓储接口
type ChunkRepository interface {
	// CreateBatch 批量保存切片（含已计算的向量）
	CreateBatch(ctx context.Context, chunks []*entity.Chunk) error

	// ListByDocument 按序号列出文档的全部切片
	ListByDocument(ctx context.Context, documentID string) ([]*entity.Chunk, error)

	// UpdateEmbedding 回填切片向量
	UpdateEmbedding(ctx context.Context, chunkID string, embedding []float32) error

	// DeleteByDocument 删除文档的全部切片
	DeleteByDocument(ctx context.Context, documentID string) error

	// DeleteAll 清空全部切片
	DeleteAll(ctx context.Context) error

	// Count 切片总数与已嵌入数
	Count(ctx context.Context) (total int64, embedded int64, err error)
}
