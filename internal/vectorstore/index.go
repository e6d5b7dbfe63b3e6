// Package vectorstore holds the in-memory vector index built for one
// document. An Index is built once and is read-only afterwards, so it can be
// queried from many goroutines without locking.
package vectorstore

import (
	"errors"
	"fmt"
	"sort"

	"docchat/internal/domain"
)

var (
	ErrNoPassages        = errors.New("index needs at least one passage")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Index is a brute-force similarity index over unit-length passage vectors.
type Index struct {
	dimension int
	passages  []domain.Passage
}

// Build indexes passages. Every passage must carry a vector and all vectors
// must share one non-zero dimensionality.
func Build(passages []domain.Passage) (*Index, error) {
	if len(passages) == 0 {
		return nil, ErrNoPassages
	}
	dim := len(passages[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("passage 0: %w: empty vector", ErrDimensionMismatch)
	}
	for i, p := range passages {
		if len(p.Vector) != dim {
			return nil, fmt.Errorf("passage %d: %w: got %d, want %d", i, ErrDimensionMismatch, len(p.Vector), dim)
		}
	}
	own := make([]domain.Passage, len(passages))
	copy(own, passages)
	return &Index{dimension: dim, passages: own}, nil
}

// Len returns the number of indexed passages.
func (ix *Index) Len() int { return len(ix.passages) }

// Dimension returns the vector size shared by all passages.
func (ix *Index) Dimension() int { return ix.dimension }

// Passages returns the indexed passages in document order.
func (ix *Index) Passages() []domain.Passage {
	out := make([]domain.Passage, len(ix.passages))
	copy(out, ix.passages)
	return out
}

// Query returns the k passages most similar to vector, best first. Scores are
// dot products, which equal cosine similarity for unit vectors. Equal scores
// keep document order. k is clamped to the index size and k <= 0 yields an
// empty result.
func (ix *Index) Query(vector []float32, k int) ([]domain.SearchResult, error) {
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("query: %w: got %d, want %d", ErrDimensionMismatch, len(vector), ix.dimension)
	}
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	if k > len(ix.passages) {
		k = len(ix.passages)
	}
	scores := make([]float64, len(ix.passages))
	for i := range ix.passages {
		scores[i] = dot(ix.passages[i].Vector, vector)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		sa, sb := scores[idxs[a]], scores[idxs[b]]
		if sa != sb {
			return sa > sb
		}
		return ix.passages[idxs[a]].Offset < ix.passages[idxs[b]].Offset
	})
	results := make([]domain.SearchResult, 0, k)
	for _, j := range idxs[:k] {
		results = append(results, domain.SearchResult{Passage: ix.passages[j], Score: scores[j]})
	}
	return results, nil
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
