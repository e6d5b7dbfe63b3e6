package gemini

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docchat/internal/embedding"
)

// Config configures the Gemini embeddings client.
type Config struct {
	APIKeyEnv  string
	Model      string
	BatchSize  int
	MaxRetries int
}

// Client embeds text with a Gemini embedding model.
type Client struct {
	client     *genai.Client
	model      string
	batchSize  int
	maxRetries int
}

// NewClient creates a Gemini embedder. Close releases its client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{client: client, model: cfg.Model, batchSize: cfg.BatchSize, maxRetries: cfg.MaxRetries}, nil
}

func (c *Client) Name() string { return "gemini" }

// Close releases the underlying connection.
func (c *Client) Close() error { return c.client.Close() }

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedding.Batch(ctx, texts, c.batchSize, 2, c.embed)
}

func (c *Client) embed(ctx context.Context, texts []string) ([][]float32, error) {
	em := c.client.EmbeddingModel(c.model)
	batch := em.NewBatch()
	for _, t := range texts {
		if t == "" {
			return nil, embedding.ErrEmptyText
		}
		batch.AddContent(genai.Text(t))
	}
	return embedding.Retry(ctx, c.maxRetries, func() ([][]float32, error) {
		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini embed failed: %w", err)
		}
		if len(res.Embeddings) != len(texts) {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(res.Embeddings), len(texts))
		}
		out := make([][]float32, len(texts))
		for i, e := range res.Embeddings {
			if e == nil || len(e.Values) == 0 {
				return nil, embedding.ErrEmptyEmbedding
			}
			out[i] = embedding.Normalize(e.Values)
		}
		return out, nil
	})
}
