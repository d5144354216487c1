// Package scoring computes objective quality signals from response text and
// uses them to keep model-reported scores honest.
package scoring

import (
	"strings"
	"unicode/utf8"
)

// structureLength is the character count above which a response counts as
// structured even without line breaks.
const structureLength = 200

// TextMetrics holds objective signals computed from a raw response.
type TextMetrics struct {
	Words            int
	Sentences        int
	WordsPerSentence float64
	HasStructure     bool
	Characters       int
	ShortAlphaToken  bool
}

// Measure computes TextMetrics for text. Every string, including the empty
// one, is valid input.
func Measure(text string) TextMetrics {
	words := len(strings.Fields(text))

	sentences := 0
	for _, seg := range strings.FieldsFunc(text, isSentenceEnd) {
		if strings.TrimSpace(seg) != "" {
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}

	chars := utf8.RuneCountInString(text)
	return TextMetrics{
		Words:            words,
		Sentences:        sentences,
		WordsPerSentence: float64(words) / float64(sentences),
		HasStructure:     strings.Contains(text, "\n") || chars > structureLength,
		Characters:       chars,
		ShortAlphaToken:  isShortAlphaToken(strings.TrimSpace(text)),
	}
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// isShortAlphaToken reports whether s is one to three ASCII letters.
func isShortAlphaToken(s string) bool {
	if len(s) == 0 || len(s) > 3 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}
