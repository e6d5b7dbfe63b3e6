package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"docchat/internal/domain"
	"docchat/internal/textutil"
)

const (
	defaultMaxChars = 1000
	maxOverlap      = 0.45
)

// WindowChunker splits text into windows of at most maxChars bytes that
// overlap by a fixed fraction. Window ends snap back to a sentence end, then
// to whitespace, and only cut hard when the window holds neither.
type WindowChunker struct {
	maxChars int
	overlap  int
}

// NewWindowChunker creates a chunker with windows of maxChars and the given overlap.
func NewWindowChunker(maxChars int, overlapFraction float64) *WindowChunker {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	if overlapFraction < 0 {
		overlapFraction = 0
	}
	if overlapFraction > maxOverlap {
		overlapFraction = maxOverlap
	}
	return &WindowChunker{
		maxChars: maxChars,
		overlap:  int(float64(maxChars) * overlapFraction),
	}
}

// MaxChars returns the configured window size.
func (c *WindowChunker) MaxChars() int { return c.maxChars }

// Chunk returns the passages of text in document order. Empty or
// whitespace-only text yields no passages.
func (c *WindowChunker) Chunk(text string) []domain.Passage {
	contentEnd := len(strings.TrimRightFunc(text, unicode.IsSpace))
	start := skipSpace(text, 0, contentEnd)
	if start >= contentEnd {
		return nil
	}
	var sentenceEnds []int
	for _, s := range textutil.Sentences(text) {
		sentenceEnds = append(sentenceEnds, s.End)
	}

	var passages []domain.Passage
	for {
		end := contentEnd
		if start+c.maxChars < contentEnd {
			end = c.cut(text, start, sentenceEnds)
		}
		body := strings.TrimRightFunc(text[start:end], unicode.IsSpace)
		passages = append(passages, domain.Passage{
			Index:  len(passages),
			Offset: start,
			Text:   body,
		})
		if end >= contentEnd {
			break
		}
		start = c.nextStart(text, start, end, contentEnd)
	}
	return passages
}

// cut picks the end of the window beginning at start.
func (c *WindowChunker) cut(text string, start int, sentenceEnds []int) int {
	limit := start + c.maxChars
	floor := start + c.maxChars/2

	best := -1
	for _, e := range sentenceEnds {
		if e > limit {
			break
		}
		if e > floor {
			best = e
		}
	}
	if best > 0 {
		return best
	}
	for i := limit; i > floor; i-- {
		if i < len(text) && isSpaceByte(text[i]) && !isSpaceByte(text[i-1]) {
			return i
		}
	}
	// No boundary in the window: hard cut on a rune boundary.
	end := limit
	for end > start+1 && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}

// nextStart backs up by the overlap from end, then moves forward to the next
// word start so the following window never begins mid-word.
func (c *WindowChunker) nextStart(text string, start, end, contentEnd int) int {
	next := end - c.overlap
	if next <= start {
		next = end
	}
	for next < end && !utf8.RuneStart(text[next]) {
		next++
	}
	if next < end && next > 0 && !isSpaceByte(text[next-1]) && !isSpaceByte(text[next]) {
		i := next
		for i < end && !isSpaceByte(text[i]) {
			i++
		}
		if i < end {
			next = i
		}
	}
	next = skipSpace(text, next, contentEnd)
	if next <= start {
		next = end
	}
	return next
}

func skipSpace(text string, i, limit int) int {
	for i < limit {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r' || b == '\f' || b == '\v'
}
