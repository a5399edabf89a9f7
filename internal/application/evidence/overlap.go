package evidence

import (
	"rag-knowledge-hub/internal/application/retrieval"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {}, "on": {},
	"for": {}, "with": {}, "by": {}, "at": {}, "from": {}, "as": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "be": {}, "been": {}, "it": {}, "its": {}, "this": {}, "that": {}, "these": {},
	"those": {}, "can": {}, "will": {}, "may": {}, "not": {}, "no": {}, "if": {}, "than": {},
	"then": {}, "there": {}, "their": {}, "they": {}, "you": {}, "your": {}, "we": {}, "our": {},
}

// contentTerms 去停用词后的词集合；全部是停用词时退回完整词集合
func contentTerms(text string) map[string]struct{} {
	tokens := retrieval.Tokenize(text)
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, stop := stopwords[t]; stop {
			continue
		}
		out[t] = struct{}{}
	}
	if len(out) == 0 {
		for _, t := range tokens {
			out[t] = struct{}{}
		}
	}
	return out
}

func termSet(text string) map[string]struct{} {
	tokens := retrieval.Tokenize(text)
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		out[t] = struct{}{}
	}
	return out
}

// lexicalOverlap 句子词集合中出现在切片里的比例
func lexicalOverlap(sentence, chunk map[string]struct{}) float64 {
	if len(sentence) == 0 {
		return 0
	}
	hit := 0
	for t := range sentence {
		if _, ok := chunk[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(sentence))
}

func semanticOverlap(sentence, chunk []float32) float64 {
	if len(sentence) == 0 || len(chunk) == 0 || len(sentence) != len(chunk) {
		return 0
	}
	return max(0, retrieval.CosineSimilarity(sentence, chunk))
}
