// Package textutil holds the tokenizer, stopword list and sentence splitter
// shared by chunking, embedding and extractive generation.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "much", "many", "why", "when", "where", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// IsStopword reports whether a lower-cased token carries no retrieval signal.
func IsStopword(tok string) bool {
	_, ok := stopwords[tok]
	return ok
}

// Words returns every lower-cased word token of text, stopwords included.
func Words(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Tokens returns the lower-cased word tokens of text with stopwords removed.
func Tokens(text string) []string {
	raw := Words(text)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TokenSet returns the distinct non-stopword tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokens(text)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// OverlapScore counts the distinct tokens of text that appear in query.
func OverlapScore(query map[string]struct{}, text string) int {
	score := 0
	for t := range TokenSet(text) {
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}

// Span is a half-open byte range [Start, End) of a text.
type Span struct {
	Start int
	End   int
}

// Sentences splits text into sentence spans. A sentence ends after a run of
// terminal punctuation followed by whitespace, or at a blank line, so
// abbreviations and amounts such as "Rs.5000" stay inside one sentence.
// Spans never start or end with whitespace.
func Sentences(text string) []Span {
	var spans []Span
	start := -1
	flush := func(end int) {
		trimmed := strings.TrimRightFunc(text[start:end], unicode.IsSpace)
		if len(trimmed) > 0 {
			spans = append(spans, Span{Start: start, End: start + len(trimmed)})
		}
		start = -1
	}
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if start < 0 {
			if unicode.IsSpace(r) {
				i += size
				continue
			}
			start = i
		}
		i += size
		switch {
		case isTerminal(r):
			for i < len(text) {
				next, n := utf8.DecodeRuneInString(text[i:])
				if !isTerminal(next) && !isCloser(next) {
					break
				}
				i += n
			}
			if i >= len(text) {
				flush(i)
				continue
			}
			if next, _ := utf8.DecodeRuneInString(text[i:]); unicode.IsSpace(next) {
				flush(i)
			}
		case r == '\n':
			if i < len(text) && text[i] == '\n' {
				flush(i)
			}
		}
	}
	if start >= 0 {
		flush(len(text))
	}
	return spans
}

// SplitSentences returns the sentence strings of text.
func SplitSentences(text string) []string {
	spans := Sentences(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = text[s.Start:s.End]
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’'
}
