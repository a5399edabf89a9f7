package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"rag-knowledge-hub/internal/domain/entity"
	"rag-knowledge-hub/internal/domain/repository"
)

// DocumentRepository 文档仓储实现
type DocumentRepository struct {
	client *Client
}

var _ repository.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository 创建文档仓储
func NewDocumentRepository(client *Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

// Create 保存文档；同 ID 已存在时覆盖
func (r *DocumentRepository) Create(ctx context.Context, doc *entity.Document) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Save(toDocumentRow(doc)).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取文档
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var row documentRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return row.toEntity(), nil
}

// List 分页列出文档
func (r *DocumentRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Document], error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	if err := db.Model(&documentRow{}).Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	var rows []documentRow
	if err := db.Omit("pages").
		Order("created_at DESC, id ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	items := make([]*entity.Document, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toEntity())
	}
	return repository.NewPagedResult(items, total, pagination), nil
}

// ListIDs 列出全部文档 ID（按创建时间升序）
func (r *DocumentRepository) ListIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.ListIDs")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var ids []string
	if err := db.Model(&documentRow{}).Order("created_at ASC").Pluck("id", &ids).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list document ids: %w", err)
	}
	return ids, nil
}

// Delete 删除文档
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&documentRow{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// DeleteAll 清空全部文档
func (r *DocumentRepository) DeleteAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.DocumentRepository.DeleteAll")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&documentRow{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}
