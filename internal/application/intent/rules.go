// Package intent 识别查询意图：有序规则链优先，全部弃权时才调用外部分类。
package intent

import (
	"strings"
	"unicode"

	"rag-knowledge-hub/internal/domain/entity"
)

// Rule 规则链中的一个匹配器；ok=false 表示弃权
type Rule interface {
	Name() string
	Match(query string) (entity.IntentLabel, bool)
}

// phraseRule 命中任一短语即给出标签。
// maxExtraWords > 0 时，去掉命中短语后剩余词数不能超过该值（避免 "hello, what is X" 被当作寒暄）。
type phraseRule struct {
	name          string
	label         entity.IntentLabel
	phrases       [][]string
	maxExtraWords int
	// skipQuestions 以问号结尾的查询一律弃权
	skipQuestions bool
}

func newPhraseRule(name string, label entity.IntentLabel, maxExtraWords int, phrases ...string) *phraseRule {
	r := &phraseRule{name: name, label: label, maxExtraWords: maxExtraWords}
	for _, p := range phrases {
		r.phrases = append(r.phrases, words(p))
	}
	return r
}

func (r *phraseRule) Name() string { return r.name }

func (r *phraseRule) Match(query string) (entity.IntentLabel, bool) {
	if r.skipQuestions && endsWithQuestionMark(query) {
		return "", false
	}
	w := words(query)
	for _, p := range r.phrases {
		at := indexPhrase(w, p)
		if at < 0 {
			continue
		}
		if r.maxExtraWords > 0 && len(w)-len(p) > r.maxExtraWords {
			continue
		}
		return r.label, true
	}
	return "", false
}

// questionRule 以问号结尾或以疑问词开头
type questionRule struct{}

var questionWords = map[string]struct{}{
	"what": {}, "how": {}, "why": {}, "when": {}, "where": {}, "who": {}, "which": {},
	"whom": {}, "whose": {}, "is": {}, "are": {}, "does": {}, "do": {}, "can": {}, "could": {},
	"should": {}, "will": {}, "would": {}, "did": {},
}

func (questionRule) Name() string { return "question" }

func (questionRule) Match(query string) (entity.IntentLabel, bool) {
	if endsWithQuestionMark(query) {
		return entity.IntentQuestion, true
	}
	w := words(query)
	if len(w) > 1 {
		if _, ok := questionWords[w[0]]; ok {
			return entity.IntentQuestion, true
		}
	}
	return "", false
}

func endsWithQuestionMark(q string) bool {
	q = strings.TrimSpace(q)
	return strings.HasSuffix(q, "?") || strings.HasSuffix(q, "？")
}

// DefaultRules 默认规则链，顺序即优先级
func DefaultRules() []Rule {
	greeting := newPhraseRule("greeting", entity.IntentGreeting, 2,
		"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "greetings", "你好")
	greeting.skipQuestions = true
	finish := newPhraseRule("finish", entity.IntentFinish, 4,
		"bye", "goodbye", "thank you", "thanks", "that's all", "i'm done", "all done", "we're done",
		"see you", "farewell", "再见", "谢谢")
	finish.skipQuestions = true

	return []Rule{
		greeting,
		finish,
		newPhraseRule("summary", entity.IntentSummary, 0,
			"summary", "summarize", "summarise", "overview", "main points", "key points", "tl;dr", "总结", "概述"),
		newPhraseRule("list", entity.IntentListRequest, 0,
			"list", "show me all", "give me all", "enumerate", "all the", "every", "each of", "列出"),
		questionRule{},
	}
}

// words 小写化后按非字母数字切分；保留撇号与分号使 "that's"、"tl;dr" 成为单词。
// 汉字逐字成词，短语匹配时按连续字序列比较。
func words(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			out = append(out, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '’' || r == ';':
			if r == '’' {
				r = '\''
			}
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	for i, w := range out {
		out[i] = strings.Trim(w, "';")
	}
	return out
}

func indexPhrase(w, p []string) int {
	if len(p) == 0 || len(p) > len(w) {
		return -1
	}
outer:
	for i := 0; i+len(p) <= len(w); i++ {
		for j := range p {
			if w[i+j] != p[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}
