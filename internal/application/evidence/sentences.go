package evidence

import (
	"strings"
	"unicode"
)

// SplitSentences 按句末标点与换行切句。
// 两侧都是数字的 '.' 视为小数点，不切分。
func SplitSentences(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	emit := func(end int) {
		s := strings.TrimSpace(string(runes[start:end]))
		s = strings.TrimLeft(s, "-*•· ")
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	for i := 0; i < len(runes); i++ {
		if !isSentenceBreak(runes, i) {
			continue
		}
		end := i + 1
		for end < len(runes) && isTerminalRune(runes[end]) {
			end++
		}
		emit(end)
		start = end
		i = end - 1
	}
	if start < len(runes) {
		emit(len(runes))
	}
	return out
}

func isTerminalRune(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

func isSentenceBreak(runes []rune, i int) bool {
	r := runes[i]
	if r == '\n' {
		return true
	}
	if !isTerminalRune(r) {
		return false
	}
	if r == '.' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
		return false
	}
	return true
}
