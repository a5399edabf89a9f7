package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"
)

type docxExtractor struct{}

func (docxExtractor) Extract(data []byte) ([]string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	var paras []string
	for _, item := range doc.Document.Body.Items {
		switch v := item.(type) {
		case *docx.Paragraph:
			if t := paragraphText(v); t != "" {
				paras = append(paras, t)
			}
		case *docx.Table:
			paras = append(paras, tableText(v)...)
		}
	}
	return []string{strings.Join(paras, "\n\n")}, nil
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

// tableText 每行单元格以 " | " 连接
func tableText(tbl *docx.Table) []string {
	var rows []string
	for _, row := range tbl.TableRows {
		var cells []string
		for _, cell := range row.TableCells {
			var parts []string
			for _, p := range cell.Paragraphs {
				if t := paragraphText(p); t != "" {
					parts = append(parts, t)
				}
			}
			cells = append(cells, strings.Join(parts, " "))
		}
		if line := strings.TrimSpace(strings.Join(cells, " | ")); strings.Trim(line, "| ") != "" {
			rows = append(rows, line)
		}
	}
	return rows
}
