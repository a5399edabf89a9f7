package postgres

import (
	"time"

	"github.com/lib/pq"

	"rag-knowledge-hub/internal/domain/entity"
)

// documentRow documents 表
type documentRow struct {
	ID         string         `gorm:"primaryKey;type:varchar(64)"`
	Filename   string         `gorm:"type:varchar(512);not null"`
	Format     string         `gorm:"type:varchar(16);not null"`
	Pages      pq.StringArray `gorm:"type:text[]"`
	ChunkCount int            `gorm:"not null;default:0"`
	SizeBytes  int64          `gorm:"not null;default:0"`
	CreatedAt  time.Time      `gorm:"index"`
}

func (documentRow) TableName() string { return "documents" }

// chunkRow chunks 表；embedding 为空数组表示尚未嵌入
type chunkRow struct {
	ID          string          `gorm:"primaryKey;type:varchar(96)"`
	DocumentID  string          `gorm:"type:varchar(64);not null;index:idx_chunks_document_ordinal,priority:1"`
	Ordinal     int             `gorm:"not null;index:idx_chunks_document_ordinal,priority:2"`
	StartOffset int             `gorm:"not null"`
	EndOffset   int             `gorm:"not null"`
	Page        int             `gorm:"not null"`
	Text        string          `gorm:"type:text;not null"`
	Embedding   pq.Float64Array `gorm:"type:double precision[]"`
	CreatedAt   time.Time
}

func (chunkRow) TableName() string { return "chunks" }

func toDocumentRow(d *entity.Document) *documentRow {
	return &documentRow{
		ID:         d.ID,
		Filename:   d.Filename,
		Format:     string(d.Format),
		Pages:      pq.StringArray(d.Pages),
		ChunkCount: d.ChunkCount,
		SizeBytes:  d.SizeBytes,
		CreatedAt:  d.CreatedAt,
	}
}

func (r *documentRow) toEntity() *entity.Document {
	return &entity.Document{
		ID:         r.ID,
		Filename:   r.Filename,
		Format:     entity.DocumentFormat(r.Format),
		Pages:      []string(r.Pages),
		ChunkCount: r.ChunkCount,
		SizeBytes:  r.SizeBytes,
		CreatedAt:  r.CreatedAt,
	}
}

func toChunkRow(c *entity.Chunk) *chunkRow {
	return &chunkRow{
		ID:          c.ID,
		DocumentID:  c.DocumentID,
		Ordinal:     c.Ordinal,
		StartOffset: c.Start,
		EndOffset:   c.End,
		Page:        c.Page,
		Text:        c.Text,
		Embedding:   toFloat64s(c.Embedding),
	}
}

func (r *chunkRow) toEntity() *entity.Chunk {
	return &entity.Chunk{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		Ordinal:    r.Ordinal,
		Start:      r.StartOffset,
		End:        r.EndOffset,
		Page:       r.Page,
		Text:       r.Text,
		Embedding:  toFloat32s(r.Embedding),
	}
}

func toFloat64s(v []float32) pq.Float64Array {
	if len(v) == 0 {
		return nil
	}
	out := make(pq.Float64Array, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32s(v []float64) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
