package music

import (
	"strings"
	"unicode"
)

// Слова, которые ничего не говорят о музыке.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "for": true, "to": true,
	"of": true, "in": true, "on": true, "with": true, "some": true, "something": true,
	"me": true, "my": true, "i": true, "im": true, "want": true, "play": true, "music": true,
	"song": true, "songs": true, "track": true, "vibe": true, "vibes": true, "mood": true,
	"feel": true, "feeling": true, "like": true, "please": true,
}

// Keywords выделяет из вайба значимые слова в нижнем регистре.
func Keywords(vibe string) []string {
	fields := strings.FieldsFunc(strings.ToLower(vibe), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Score: сколько ключевых слов встречается в тексте (без учёта регистра).
func Score(text string, words []string) int {
	text = strings.ToLower(text)
	n := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			n++
		}
	}
	return n
}
