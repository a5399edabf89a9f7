package extraction

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

type pdfExtractor struct{}

// Extract 逐页取纯文本；单页解析失败时该页记为空串，保持页码对齐
func (pdfExtractor) Extract(data []byte) (pages []string, err error) {
	// ledongthuc/pdf 遇到损坏的对象会 panic
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := reader.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
