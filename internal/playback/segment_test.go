package playback

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", []string{}},
		{"whitespace", "  \n\t ", []string{}},
		{"no terminal punctuation", "welcome to the onsen", []string{"welcome to the onsen"}},
		{"three kinds", "Hello there. How are you? Relax!", []string{"Hello there.", "How are you?", "Relax!"}},
		{"punctuation stays left", "One.  Two", []string{"One.", "Two"}},
		{"no split without whitespace", "v1.2 is out.Really", []string{"v1.2 is out.Really"}},
		{"newlines", "First.\n\nSecond!", []string{"First.", "Second!"}},
		{"trailing space", "  Only one.  ", []string{"Only one."}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitSentences(tc.in))
		})
	}
}

func TestSplitSentencesKeepsContent(t *testing.T) {
	texts := []string{
		"Konnichiwa, welcome. I am MION, your personal onsen concierge. My purpose is to help you!",
		"Is it dry? Oily?   Sensitive?\nOr combination.",
		"温泉へようこそ. ゆっくりどうぞ!",
	}
	squash := func(s string) string { return strings.Join(strings.Fields(s), "") }

	for _, text := range texts {
		got := SplitSentences(text)
		assert.Equal(t, squash(text), squash(strings.Join(got, " ")))
		for _, s := range got {
			assert.NotEmpty(t, s)
			assert.Equal(t, strings.TrimSpace(s), s)
		}
	}
}
