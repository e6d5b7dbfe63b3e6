package extractive

import (
	"math"
	"sort"

	"docchat/internal/textutil"
)

// rankSentences scores sentences by normalized token frequency and returns
// the indices of the best n, in document order.
func rankSentences(sentences []string, n int) []int {
	if n <= 0 || len(sentences) == 0 {
		return nil
	}
	tokens := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokens[i] = textutil.Tokens(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	// Normalize frequencies
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i := range sentences {
		sscore := 0.0
		for _, tok := range tokens[i] {
			sscore += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(tokens[i])); l > 0 {
			sscore /= math.Sqrt(l)
		}
		scores[i] = pair{i, sscore}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if n > len(scores) {
		n = len(scores)
	}
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	return selected
}

type termCount struct {
	term  string
	count int
	first int
}

// candidateTerms counts adjacent content-word pairs and single content words
// across sentences. first is the index of the sentence where a term first
// appears.
func candidateTerms(sentences []string) (bigrams, unigrams []termCount) {
	bi := map[string]*termCount{}
	uni := map[string]*termCount{}
	bump := func(m map[string]*termCount, term string, sent int) {
		if tc, ok := m[term]; ok {
			tc.count++
			return
		}
		m[term] = &termCount{term: term, count: 1, first: sent}
	}
	for i, sent := range sentences {
		words := textutil.Words(sent)
		for j, w := range words {
			if !isContentWord(w) {
				continue
			}
			bump(uni, w, i)
			if j > 0 && isContentWord(words[j-1]) {
				bump(bi, words[j-1]+" "+w, i)
			}
		}
	}
	return sortedTerms(bi), sortedTerms(uni)
}

func sortedTerms(m map[string]*termCount) []termCount {
	out := make([]termCount, 0, len(m))
	for _, tc := range m {
		out = append(out, *tc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		if out[i].first != out[j].first {
			return out[i].first < out[j].first
		}
		return out[i].term < out[j].term
	})
	return out
}

// fillerWords are frequent in formal documents but never make a key term.
var fillerWords = map[string]struct{}{
	"shall": {}, "may": {}, "must": {}, "would": {}, "could": {}, "any": {}, "all": {}, "not": {},
	"each": {}, "per": {}, "its": {}, "their": {}, "his": {}, "her": {}, "other": {}, "upon": {},
	"herein": {}, "hereby": {}, "thereof": {}, "within": {}, "has": {}, "have": {}, "had": {},
	"one": {}, "two": {}, "also": {}, "without": {}, "only": {},
}

func isContentWord(w string) bool {
	if len(w) < 3 || textutil.IsStopword(w) {
		return false
	}
	if _, ok := fillerWords[w]; ok {
		return false
	}
	for _, r := range w {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}
