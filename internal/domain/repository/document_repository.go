package repository

import (
	"context"

	"rag-knowledge-hub/internal/domain/entity"
)

// DocumentRepository 文档仓储接口
type DocumentRepository interface {
	// Create 保存文档（含页文本）
	Create(ctx context.Context, doc *entity.Document) error

	// GetByID 根据 ID 获取文档，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Document, error)

	// List 分页列出文档（不含页文本），按创建时间倒序
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.Document], error)

	// ListIDs 列出全部文档 ID，用于启动时重建索引
	ListIDs(ctx context.Context) ([]string, error)

	// Delete 删除文档
	Delete(ctx context.Context, id string) error

	// DeleteAll 清空全部文档
	DeleteAll(ctx context.Context) error
}
