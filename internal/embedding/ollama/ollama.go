package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ollama/ollama/api"

	"docchat/internal/embedding"
)

const defaultBaseURL = "http://localhost:11434"

// Config configures the Ollama embeddings client.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	BatchSize  int
	MaxRetries int
}

// Client embeds text through a local Ollama server's /api/embed endpoint.
type Client struct {
	client     *api.Client
	model      string
	batchSize  int
	maxRetries int
}

// NewClient creates an embedder backed by a local Ollama server.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	uri, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}
	return &Client{
		client:     api.NewClient(uri, &http.Client{Timeout: cfg.Timeout}),
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
	}, nil
}

func (c *Client) Name() string { return "ollama" }

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedding.Batch(ctx, texts, c.batchSize, 1, c.embed)
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if t == "" {
			return nil, embedding.ErrEmptyText
		}
	}
	return embedding.Retry(ctx, c.maxRetries, func() ([][]float32, error) {
		resp, err := c.client.Embed(ctx, &api.EmbedRequest{Model: c.model, Input: texts})
		if err != nil {
			var statusErr api.StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
				statusErr.StatusCode != http.StatusTooManyRequests {
				return nil, backoff.Permanent(fmt.Errorf("ollama embed failed: %w", err))
			}
			return nil, fmt.Errorf("ollama embed failed: %w", err)
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
		}
		out := make([][]float32, len(texts))
		for i, v := range resp.Embeddings {
			if len(v) == 0 {
				return nil, backoff.Permanent(embedding.ErrEmptyEmbedding)
			}
			out[i] = embedding.Normalize(v)
		}
		return out, nil
	})
}
