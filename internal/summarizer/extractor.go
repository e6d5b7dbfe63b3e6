// Package summarizer produces the one-shot synopsis and key-term glossary
// shown when a document is uploaded.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"docchat/internal/domain"
	"docchat/internal/generation"
)

// Disclaimer accompanies every summary.
const Disclaimer = "This is an automated analysis. For critical matters, please consult with a qualified legal professional."

const (
	truncationMarker     = "\n[...]\n"
	defaultMaxInputChars = 12000
	defaultHeadFraction  = 0.75
	defaultMaxTerms      = 5
	minTerms             = 3
)

var ErrUnparseable = errors.New("summary output has no synopsis")

// Options bounds the input and output of an Extractor.
type Options struct {
	MaxInputChars int
	HeadFraction  float64
	MaxTerms      int
	Logger        *zap.Logger
}

// Extractor asks a generator for a synopsis and key terms in one call.
type Extractor struct {
	gen  domain.Generator
	opts Options
	log  *zap.Logger
}

// NewExtractor creates an Extractor that summarizes through gen.
func NewExtractor(gen domain.Generator, opts Options) *Extractor {
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = defaultMaxInputChars
	}
	if opts.HeadFraction <= 0 || opts.HeadFraction >= 1 {
		opts.HeadFraction = defaultHeadFraction
	}
	if opts.MaxTerms < minTerms {
		opts.MaxTerms = defaultMaxTerms
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{gen: gen, opts: opts, log: log}
}

// Summarize analyses text. Generator failures map to ErrGenerationFailed or
// ErrTimeout; output without a synopsis is ErrGenerationFailed.
func (e *Extractor) Summarize(ctx context.Context, text string) (domain.Summary, error) {
	excerpt, truncated := Excerpt(text, e.opts.MaxInputChars, e.opts.HeadFraction)
	if truncated {
		e.log.Info("summary input truncated",
			zap.Int("chars", len(text)),
			zap.Int("max_input_chars", e.opts.MaxInputChars))
	}
	out, err := e.gen.Generate(ctx, domain.Prompt{
		Task:        domain.TaskSummarize,
		Instruction: instruction(e.opts.MaxTerms),
		Context:     excerpt,
	})
	if err != nil {
		return domain.Summary{}, generation.Classify(err)
	}
	summary, err := Parse(out, e.opts.MaxTerms)
	if err != nil {
		return domain.Summary{}, domain.NewGenerationError(err)
	}
	summary.Truncated = truncated
	summary.Disclaimer = Disclaimer
	return summary, nil
}

func instruction(maxTerms int) string {
	return fmt.Sprintf("Read the document in the reference material.\n"+
		"First write a concise summary of the document's purpose and key points in plain English.\n"+
		"Then identify the %d-%d most critical and potentially confusing terms and explain each in one simple sentence.\n"+
		"Format your response strictly as:\n"+
		"SUMMARY:\n[one paragraph]\n\n"+
		"TERMS:\n- [term]: [explanation]", minTerms, maxTerms)
}

// Excerpt bounds text to maxChars bytes. Longer text keeps its head and tail
// around a marker, the head taking headFraction of the budget. Cuts fall on
// rune boundaries.
func Excerpt(text string, maxChars int, headFraction float64) (string, bool) {
	if len(text) <= maxChars {
		return text, false
	}
	budget := maxChars - len(truncationMarker)
	if budget <= 0 {
		return text[:runeFloor(text, maxChars)], true
	}
	headEnd := runeFloor(text, int(float64(budget)*headFraction))
	tailStart := runeCeil(text, len(text)-(budget-headEnd))
	return strings.TrimSpace(text[:headEnd]) + truncationMarker + strings.TrimSpace(text[tailStart:]), true
}

func runeFloor(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func runeCeil(s string, i int) int {
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
