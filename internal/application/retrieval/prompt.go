package retrieval

import (
	"fmt"
	"strings"
)

const defaultContextMaxRunes = 6000

// BuildPromptContext 将检索结果格式化为可直接注入 Prompt 的上下文块。
// 约束：不带分数等调试信息；总长度超过 maxRunes 时截断后续片段。
func BuildPromptContext(hits []Hit, maxRunes int) string {
	if len(hits) == 0 {
		return ""
	}
	if maxRunes <= 0 {
		maxRunes = defaultContextMaxRunes
	}

	lines := make([]string, 0, len(hits))
	remaining := maxRunes
	for i, h := range hits {
		if h.Chunk == nil || remaining <= 0 {
			continue
		}
		txt := compactOneLine(h.Chunk.Text)
		if txt == "" {
			continue
		}
		ref := h.Filename
		if ref == "" {
			ref = h.Chunk.DocumentID
		}
		line := fmt.Sprintf("[%d] (%s, page %d) ", i+1, ref, h.Chunk.Page)
		budget := remaining - len([]rune(line))
		if budget <= 0 {
			break
		}
		txt = truncateRunes(txt, budget)
		lines = append(lines, line+txt)
		remaining -= len([]rune(line)) + len([]rune(txt))
	}
	return strings.TrimSpace(strings.Join(lines, "\n\n"))
}

func compactOneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "…"
}

// Excerpt 截取切片开头作为引用摘录
func Excerpt(text string, maxRunes int) string {
	return truncateRunes(compactOneLine(text), maxRunes)
}
