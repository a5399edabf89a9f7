package retrieval

import (
	"strings"
	"unicode"

	"rag-knowledge-hub/internal/domain/entity"
)

const (
	defaultChunkSizeRunes    = 500
	defaultChunkOverlapRunes = 100

	// maxChunkFactor 无句界文本整体保留的上限为 Size 的倍数，超过后按名义切点硬切
	maxChunkFactor = 4
)

// Span 规范化全文中的 rune 区间 [Start, End)
type Span struct {
	Start int
	End   int
}

// Chunker 按句子边界切分文本，相邻切片重叠 Overlap 个字符。
// 切点从 Start+Size 向回找句末标点，找不到时退回名义切点；
// 整段文本只有一句且超长时整体作为一个切片，但不超过 maxChunkFactor*Size。
type Chunker struct {
	Size     int
	Overlap  int
	Lookback int
}

func NewChunker(size, overlap, lookback int) Chunker {
	return Chunker{Size: size, Overlap: overlap, Lookback: lookback}.normalized()
}

func DefaultChunker() Chunker {
	return NewChunker(defaultChunkSizeRunes, defaultChunkOverlapRunes, 0)
}

func (c Chunker) normalized() Chunker {
	size, overlap, lookback := c.Size, c.Overlap, c.Lookback
	if size <= 0 {
		size = defaultChunkSizeRunes
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if lookback <= 0 {
		lookback = size / 4
	}
	return Chunker{Size: size, Overlap: overlap, Lookback: lookback}
}

func (c Chunker) Split(text string) []Span {
	c = c.normalized()
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.Size || (n <= maxChunkFactor*c.Size && !hasInteriorBoundary(runes)) {
		return []Span{{Start: 0, End: n}}
	}

	out := make([]Span, 0, n/(c.Size-c.Overlap)+1)
	start := 0
	for {
		if n-start <= c.Size {
			out = append(out, Span{Start: start, End: n})
			return out
		}
		end := start + c.Size
		// 切点至少越过重叠区，保证下一片起点前进
		lo := max(start+c.Overlap+1, end-c.Lookback)
		cut := sentenceCut(runes, lo, end)
		if cut < 0 {
			cut = end
		}
		out = append(out, Span{Start: start, End: cut})
		start = cut - c.Overlap
	}
}

// ChunkDocument 规范化各页文本后拼接切分，切片记录起始页（从 1 开始）。
func (c Chunker) ChunkDocument(documentID string, pages []string) []*entity.Chunk {
	text, pageStarts := joinPages(pages)
	spans := c.Split(text)
	if len(spans) == 0 {
		return nil
	}
	runes := []rune(text)
	chunks := make([]*entity.Chunk, 0, len(spans))
	for i, sp := range spans {
		chunks = append(chunks, &entity.Chunk{
			ID:         entity.ChunkID(documentID, i),
			DocumentID: documentID,
			Ordinal:    i,
			Start:      sp.Start,
			End:        sp.End,
			Page:       pageAt(pageStarts, sp.Start),
			Text:       string(runes[sp.Start:sp.End]),
		})
	}
	return chunks
}

// Normalize 去掉控制字符并把连续空白折叠为单个空格。
func Normalize(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(cleaned), " ")
}

type pageStart struct {
	page   int
	offset int
}

func joinPages(pages []string) (string, []pageStart) {
	var b strings.Builder
	starts := make([]pageStart, 0, len(pages))
	offset := 0
	for i, p := range pages {
		norm := Normalize(p)
		if norm == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
			offset++
		}
		starts = append(starts, pageStart{page: i + 1, offset: offset})
		b.WriteString(norm)
		offset += len([]rune(norm))
	}
	return b.String(), starts
}

func pageAt(starts []pageStart, offset int) int {
	page := 1
	for _, s := range starts {
		if s.offset > offset {
			break
		}
		page = s.page
	}
	return page
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// sentenceCut 返回 [lo, end] 内最靠后的句末切点（句末标点及其后空白之后），没有则返回 -1。
func sentenceCut(runes []rune, lo, end int) int {
	for i := end - 1; i >= lo-1 && i >= 0; i-- {
		if !isTerminator(runes[i]) {
			continue
		}
		next := i + 1
		// 中文句号后通常没有空格
		if next < len(runes) && !unicode.IsSpace(runes[next]) && !isCJKTerminator(runes[i]) {
			continue
		}
		cut := next
		for cut < end && cut < len(runes) && unicode.IsSpace(runes[cut]) {
			cut++
		}
		if cut >= lo {
			return cut
		}
	}
	return -1
}

func isCJKTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func hasInteriorBoundary(runes []rune) bool {
	for i := 0; i < len(runes)-1; i++ {
		if isTerminator(runes[i]) && (unicode.IsSpace(runes[i+1]) || isCJKTerminator(runes[i])) {
			return true
		}
	}
	return false
}
