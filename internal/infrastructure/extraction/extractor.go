// Package extraction 把上传的文档字节转换为按页组织的纯文本
package extraction

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"rag-knowledge-hub/internal/domain/entity"
)

var (
	// ErrUnsupportedFormat 扩展名不在支持列表内
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrExtractionFailed 文档损坏或没有可抽取的文本
	ErrExtractionFailed = errors.New("text extraction failed")
)

// pageExtractor 单一格式的抽取实现
type pageExtractor interface {
	Extract(data []byte) ([]string, error)
}

// Extractor 按格式分发到具体实现
type Extractor struct {
	byFormat map[entity.DocumentFormat]pageExtractor
}

// NewExtractor allowed 为空时启用全部格式
func NewExtractor(allowed []string) *Extractor {
	all := map[entity.DocumentFormat]pageExtractor{
		entity.DocumentFormatPDF:      pdfExtractor{},
		entity.DocumentFormatDOCX:     docxExtractor{},
		entity.DocumentFormatMarkdown: markdownExtractor{},
		entity.DocumentFormatHTML:     htmlExtractor{},
		entity.DocumentFormatText:     textExtractor{},
	}
	if len(allowed) == 0 {
		return &Extractor{byFormat: all}
	}
	e := &Extractor{byFormat: make(map[entity.DocumentFormat]pageExtractor, len(allowed))}
	for _, f := range allowed {
		format := entity.DocumentFormat(strings.ToLower(strings.TrimSpace(f)))
		if impl, ok := all[format]; ok {
			e.byFormat[format] = impl
		}
	}
	return e
}

// Supports 是否支持该格式
func (e *Extractor) Supports(format entity.DocumentFormat) bool {
	_, ok := e.byFormat[format]
	return ok
}

// Extract 返回每页文本（非分页格式只有一页）。
// 所有页都为空时返回 ErrExtractionFailed。
func (e *Extractor) Extract(filename string, data []byte) (entity.DocumentFormat, []string, error) {
	format := entity.FormatFromFilename(filename)
	impl, ok := e.byFormat[format]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	pages, err := impl.Extract(data)
	if err != nil {
		return format, nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filename, err)
	}
	if !hasText(pages) {
		return format, nil, fmt.Errorf("%w: %s: no extractable text", ErrExtractionFailed, filename)
	}
	return format, pages, nil
}

func hasText(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

type textExtractor struct{}

func (textExtractor) Extract(data []byte) ([]string, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("text is not valid utf-8")
	}
	return []string{strings.TrimPrefix(string(data), "\ufeff")}, nil
}
