// Package extractive implements a local, deterministic Generator. It answers
// by quoting the context sentences that share the most words with the
// question and summarizes by frequency-ranked sentences, so the whole
// pipeline runs offline.
package extractive

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"docchat/internal/domain"
	"docchat/internal/textutil"
)

const (
	answerSentences   = 2
	synopsisSentences = 3
	defaultMaxTerms   = 5
	explanationRunes  = 240

	// NoAnswer is returned when no context sentence shares a word with the question.
	NoAnswer = "The document does not appear to address this question."
)

// Generator answers and summarizes from the prompt text alone, without a model.
type Generator struct {
	maxTerms int
}

// New returns an extractive generator listing at most maxTerms key terms
// per summary. Zero means the default of five.
func New(maxTerms int) *Generator {
	if maxTerms <= 0 {
		maxTerms = defaultMaxTerms
	}
	return &Generator{maxTerms: maxTerms}
}

func (g *Generator) Name() string { return "extractive" }

func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Task == domain.TaskSummarize {
		return g.summarize(p.Context), nil
	}
	return g.answer(p.Question, p.Context), nil
}

func (g *Generator) answer(question, material string) string {
	q := textutil.TokenSet(question)
	wantsAmount := asksForAmount(question)
	sentences := uniqueSentences(material)
	type scored struct {
		idx   int
		score int
	}
	var hits []scored
	for i, s := range sentences {
		score := textutil.OverlapScore(q, s)
		if score == 0 {
			continue
		}
		score *= 2
		if wantsAmount && strings.ContainsFunc(s, unicode.IsDigit) {
			score++
		}
		hits = append(hits, scored{i, score})
	}
	if len(hits) == 0 {
		return NoAnswer
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > answerSentences {
		hits = hits[:answerSentences]
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].idx < hits[j].idx })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = sentences[h.idx]
	}
	return strings.Join(out, " ")
}

func (g *Generator) summarize(text string) string {
	sentences := uniqueSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	var synopsis []string
	for _, idx := range rankSentences(sentences, synopsisSentences) {
		synopsis = append(synopsis, sentences[idx])
	}

	var b strings.Builder
	b.WriteString("SUMMARY:\n")
	b.WriteString(strings.Join(synopsis, " "))
	b.WriteString("\n\nTERMS:\n")
	for _, kt := range g.keyTerms(sentences) {
		b.WriteString("- ")
		b.WriteString(kt.Term)
		b.WriteString(": ")
		b.WriteString(kt.Explanation)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// keyTerms prefers repeated two-word phrases and fills up with repeated
// single words that are not already part of a chosen phrase.
func (g *Generator) keyTerms(sentences []string) []domain.KeyTerm {
	bigrams, unigrams := candidateTerms(sentences)
	var picked []termCount
	used := map[string]bool{}
	for _, tc := range bigrams {
		if len(picked) == g.maxTerms || tc.count < 2 {
			break
		}
		picked = append(picked, tc)
		for _, w := range strings.Fields(tc.term) {
			used[w] = true
		}
	}
	for _, tc := range unigrams {
		if len(picked) == g.maxTerms || tc.count < 2 {
			break
		}
		if used[tc.term] || len(tc.term) < 5 {
			continue
		}
		picked = append(picked, tc)
	}
	terms := make([]domain.KeyTerm, len(picked))
	for i, tc := range picked {
		terms[i] = domain.KeyTerm{Term: tc.term, Explanation: clip(sentences[tc.first], explanationRunes)}
	}
	return terms
}

// asksForAmount reports whether question asks for a quantity, date or price.
func asksForAmount(question string) bool {
	q := strings.ToLower(question)
	for _, cue := range []string{"how much", "how many", "how long", "what amount", "what is the amount", "when "} {
		if strings.Contains(q, cue) {
			return true
		}
	}
	return false
}

// uniqueSentences splits text into whitespace-collapsed sentences, dropping
// repeats that overlapping passages produce.
func uniqueSentences(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range textutil.SplitSentences(text) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func clip(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:maxRunes])) + "..."
}
