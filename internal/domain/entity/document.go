// Package entity 定义领域实体
package entity

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentFormat 文档格式（取自文件扩展名）
type DocumentFormat string

const (
	DocumentFormatPDF      DocumentFormat = "pdf"
	DocumentFormatText     DocumentFormat = "txt"
	DocumentFormatMarkdown DocumentFormat = "md"
	DocumentFormatHTML     DocumentFormat = "html"
	DocumentFormatDOCX     DocumentFormat = "docx"
)

// FormatFromFilename 根据文件名推断格式，未知扩展名返回空串
func FormatFromFilename(name string) DocumentFormat {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "pdf":
		return DocumentFormatPDF
	case "txt", "text":
		return DocumentFormatText
	case "md", "markdown":
		return DocumentFormatMarkdown
	case "html", "htm":
		return DocumentFormatHTML
	case "docx":
		return DocumentFormatDOCX
	default:
		return ""
	}
}

// Document 已入库的文档
//
// 页文本按抽取顺序保存；入库后除删除外不再修改。
type Document struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Format     DocumentFormat `json:"format"`
	Pages      []string       `json:"-"`
	ChunkCount int            `json:"chunk_count"`
	SizeBytes  int64          `json:"size_bytes"`
	CreatedAt  time.Time      `json:"created_at"`
}

// PageCount 页数
func (d *Document) PageCount() int {
	return len(d.Pages)
}
