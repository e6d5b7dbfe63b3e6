package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	openai "github.com/sashabaranov/go-openai"

	"docchat/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	client     *openai.Client
	model      string
	batchSize  int
	maxRetries int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	BatchSize  int
	MaxRetries int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: t}
	return &Client{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Embed returns a unit-length embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in provider-sized groups, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedding.Batch(ctx, texts, c.batchSize, 2, c.embed)
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if t == "" {
			return nil, embedding.ErrEmptyText
		}
	}
	return embedding.Retry(ctx, c.maxRetries, func() ([][]float32, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(c.model),
		})
		if err != nil {
			if isPermanent(err) {
				return nil, backoff.Permanent(fmt.Errorf("openai embeddings failed: %w", err))
			}
			return nil, fmt.Errorf("openai embeddings failed: %w", err)
		}
		if len(resp.Data) != len(texts) {
			return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
		}
		out := make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(out) || len(d.Embedding) == 0 {
				return nil, backoff.Permanent(embedding.ErrEmptyEmbedding)
			}
			out[d.Index] = embedding.Normalize(d.Embedding)
		}
		return out, nil
	})
}

// isPermanent reports client errors that a retry cannot fix. 429 stays retryable.
func isPermanent(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
