package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"docchat/internal/embedding"
	"docchat/internal/textutil"
)

const (
	defaultDimensions = 512
	bigramWeight      = 0.5
)

// Embedder is a stateless feature-hashing vectorizer. Unigrams and adjacent
// bigrams are hashed into a fixed number of signed buckets with sublinear
// term frequency, so identical text always maps to a bit-identical vector
// without a corpus preparation phase.
type Embedder struct {
	dimension int
}

// NewEmbedder creates a hashing embedder producing vectors of the given size.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &Embedder{dimension: dimensions}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the hashed embedding for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	features := e.features(text)
	if len(features) == 0 {
		return nil, embedding.ErrEmptyText
	}
	// Accumulate in sorted feature order so float rounding is reproducible.
	keys := make([]string, 0, len(features))
	for k := range features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	acc := make([]float64, e.dimension)
	for _, k := range keys {
		bucket, sign := e.hash(k)
		acc[bucket] += sign * features[k]
	}
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec, nil
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

// EmbedBatch embeds each text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// features returns the weighted unigram and bigram features of text. Text
// without word tokens falls back to its trimmed lower-cased form.
func (e *Embedder) features(text string) map[string]float64 {
	tokens := textutil.Tokens(text)
	if len(tokens) == 0 {
		trimmed := strings.ToLower(strings.TrimSpace(text))
		if trimmed == "" {
			return nil
		}
		tokens = []string{trimmed}
	}
	tf := make(map[string]int)
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			tf[tokens[i-1]+" "+tok]++
		}
	}
	features := make(map[string]float64, len(tf))
	for k, count := range tf {
		w := 1 + math.Log(float64(count))
		if strings.Contains(k, " ") {
			w *= bigramWeight
		}
		features[k] = w
	}
	return features
}

func (e *Embedder) hash(feature string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dimension)), sign
}
