// Package embedding provides the text embedders used for indexing and
// querying, plus the helpers they share: unit normalization, batching and
// retry of remote calls.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"docchat/internal/domain"
)

// Embedder converts free text into a unit-length vector representation.
type Embedder = domain.Embedder

var (
	ErrEmptyEmbedding = errors.New("empty embedding returned")
	ErrEmptyText      = errors.New("cannot embed empty text")
)

// Normalize scales vec to unit L2 length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	norm := 0.0
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Retry runs op with exponential backoff until it succeeds, returns a
// backoff.Permanent error, ctx ends, or maxRetries extra attempts fail.
func Retry[T any](ctx context.Context, maxRetries int, op func() (T, error)) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return backoff.Retry(ctx, backoff.Operation[T](op),
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries+1)),
	)
}

// BatchFunc embeds one group of texts.
type BatchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Batch splits texts into groups of size and embeds up to parallel groups at
// once. The first failure cancels the rest. Output order matches input order.
func Batch(ctx context.Context, texts []string, size, parallel int, fn BatchFunc) ([][]float32, error) {
	if size <= 0 {
		size = len(texts)
	}
	if parallel <= 0 {
		parallel = 1
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		g.Go(func() error {
			vecs, err := fn(gctx, texts[start:end])
			if err != nil {
				return err
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
