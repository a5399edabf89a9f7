package retrieval

import (
	"strings"
	"testing"
)

// sentenceDoc 生成 units 个 100 字符的句子，最后一句不带尾随空格
func sentenceDoc(units int) string {
	var b strings.Builder
	for i := 0; i < units; i++ {
		letter := string(rune('a' + i%26))
		if i == units-1 {
			b.WriteString(strings.Repeat(letter, 99) + ".")
			continue
		}
		b.WriteString(strings.Repeat(letter, 98) + ". ")
	}
	return b.String()
}

func reconstruct(text string, spans []Span, overlap int) string {
	runes := []rune(text)
	var b strings.Builder
	for i, sp := range spans {
		part := runes[sp.Start:sp.End]
		if i > 0 {
			part = part[overlap:]
		}
		b.WriteString(string(part))
	}
	return b.String()
}

func TestChunker_ThreeChunkScenario(t *testing.T) {
	text := sentenceDoc(12)
	if n := len([]rune(text)); n != 1200 {
		t.Fatalf("expected 1200 chars, got %d", n)
	}

	spans := NewChunker(500, 100, 0).Split(text)
	if len(spans) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(spans), spans)
	}
	if spans[0] != (Span{Start: 0, End: 500}) {
		t.Fatalf("expected first chunk [0,500), got %+v", spans[0])
	}
	if spans[1].Start != 400 {
		t.Fatalf("expected second chunk to start at 400, got %d", spans[1].Start)
	}
	if spans[2].End != 1200 {
		t.Fatalf("expected last chunk to end at 1200, got %d", spans[2].End)
	}
}

func TestChunker_EmptyText(t *testing.T) {
	if spans := NewChunker(500, 100, 0).Split(""); len(spans) != 0 {
		t.Fatalf("expected no chunks, got %d", len(spans))
	}
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	spans := NewChunker(500, 100, 0).Split("Short text. Two sentences.")
	if len(spans) != 1 || spans[0].End != 26 {
		t.Fatalf("expected one chunk covering the text, got %+v", spans)
	}
}

func TestChunker_SingleOversizedSentence(t *testing.T) {
	text := strings.Repeat("word ", 300) + "end."
	spans := NewChunker(500, 100, 0).Split(text)
	if len(spans) != 1 {
		t.Fatalf("expected one oversized chunk, got %d", len(spans))
	}
	if spans[0].End != len([]rune(text)) {
		t.Fatalf("expected chunk to cover whole text, got %+v", spans[0])
	}
}

func TestChunker_UnpunctuatedTextIsCapped(t *testing.T) {
	text := strings.Repeat("token ", 1000)
	c := NewChunker(500, 100, 0)
	spans := c.Split(text)
	if len(spans) < 2 {
		t.Fatalf("expected capped text to be split, got %d chunk", len(spans))
	}
	for i, sp := range spans {
		if sp.End-sp.Start > maxChunkFactor*c.Size {
			t.Fatalf("chunk %d length %d exceeds hard cap", i, sp.End-sp.Start)
		}
	}
	if got := reconstruct(text, spans, c.Overlap); got != text {
		t.Fatalf("expected capped chunks to reconstruct the text")
	}
}

func TestChunker_FallsBackToNominalCut(t *testing.T) {
	// 唯一的句末标点在回看窗口之外
	text := "Intro. " + strings.Repeat("x", 1000)
	spans := NewChunker(200, 20, 50).Split(text)
	if len(spans) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(spans))
	}
	if spans[0].End != 200 {
		t.Fatalf("expected nominal cut at 200, got %d", spans[0].End)
	}
}

func TestChunker_ReconstructionAndBounds(t *testing.T) {
	texts := []string{
		sentenceDoc(12),
		sentenceDoc(37),
		"Intro. " + strings.Repeat("lorem ipsum dolor ", 120),
		strings.Repeat("第一句话很短。第二句话稍微长一点点！第三句呢？", 40),
		strings.Repeat("Alpha beta gamma. Delta epsilon! Zeta eta theta? ", 60),
	}
	configs := []Chunker{
		NewChunker(500, 100, 0),
		NewChunker(200, 50, 0),
		NewChunker(120, 0, 60),
		NewChunker(64, 16, 32),
	}
	for ti, text := range texts {
		for _, c := range configs {
			spans := c.Split(text)
			if got := reconstruct(text, spans, c.Overlap); got != text {
				t.Fatalf("text %d size %d: reconstruction mismatch", ti, c.Size)
			}
			for i, sp := range spans {
				if i < len(spans)-1 && sp.End-sp.Start > c.Size {
					t.Fatalf("text %d size %d: chunk %d length %d exceeds size", ti, c.Size, i, sp.End-sp.Start)
				}
				if i > 0 && spans[i-1].End-sp.Start != c.Overlap {
					t.Fatalf("text %d size %d: chunk %d overlap %d, expected %d", ti, c.Size, i, spans[i-1].End-sp.Start, c.Overlap)
				}
			}
		}
	}
}

func TestChunker_PrefersSentenceBoundary(t *testing.T) {
	text := sentenceDoc(10)
	spans := NewChunker(450, 50, 0).Split(text)
	runes := []rune(text)
	for _, sp := range spans[:len(spans)-1] {
		if runes[sp.End-2] != '.' || runes[sp.End-1] != ' ' {
			t.Fatalf("expected cut after a sentence terminator, got %q", string(runes[sp.End-3:sp.End]))
		}
	}
}

func TestChunkDocument_PagesAndIDs(t *testing.T) {
	pages := []string{
		"  First   page\n\ttext. ",
		"",
		strings.Repeat("Second page sentence. ", 40),
	}
	chunks := NewChunker(200, 40, 0).ChunkDocument("doc-1", pages)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0].Page != 1 {
		t.Fatalf("expected first chunk on page 1, got %d", chunks[0].Page)
	}
	last := chunks[len(chunks)-1]
	if last.Page != 3 {
		t.Fatalf("expected last chunk on page 3, got %d", last.Page)
	}
	if !strings.HasPrefix(chunks[0].Text, "First page text. Second") {
		t.Fatalf("expected normalized and joined pages, got %q", chunks[0].Text[:30])
	}
	for i, c := range chunks {
		if c.Ordinal != i || c.DocumentID != "doc-1" {
			t.Fatalf("unexpected chunk identity: %+v", c)
		}
		if c.Length() != len([]rune(c.Text)) {
			t.Fatalf("expected length to match text, got %d vs %d", c.Length(), len([]rune(c.Text)))
		}
	}
	again := NewChunker(200, 40, 0).ChunkDocument("doc-1", pages)
	if again[1].ID != chunks[1].ID {
		t.Fatalf("expected deterministic chunk ids")
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(" a\n\n b\t\tc \x00d ")
	if got != "a b c d" {
		t.Fatalf("expected %q, got %q", "a b c d", got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Hello, World! RAG-2 检索")
	want := []string{"hello", "world", "rag", "2", "检", "索"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
