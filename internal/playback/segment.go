package playback

import (
	"strings"
	"unicode"
)

// SplitSentences 按句末标点（. ? !）后的空白切分句子，标点保留在前一句。
// 空输入返回空切片；没有句末标点的文本视为一句。
func SplitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}

	runes := []rune(text)
	sentences := make([]string, 0, 4)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isSentenceEnd(runes[i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		sentences = appendTrimmed(sentences, string(runes[start:i+1]))
		start = j
		i = j - 1
	}
	if start < len(runes) {
		sentences = appendTrimmed(sentences, string(runes[start:]))
	}
	return sentences
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

func appendTrimmed(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}
