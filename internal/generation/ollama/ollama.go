package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"docchat/internal/domain"
	"docchat/internal/generation"
)

// Config configures the Ollama chat generator.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Generator answers prompts with a model served by Ollama.
type Generator struct {
	client *api.Client
	model  string
}

// NewGenerator creates a generator backed by a local Ollama server.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	uri, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}
	return &Generator{
		client: api.NewClient(uri, &http.Client{Timeout: cfg.Timeout}),
		model:  cfg.Model,
	}, nil
}

func (g *Generator) Name() string { return "ollama" }

func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	msgs := generation.BuildMessages(p)
	apiMsgs := make([]api.Message, len(msgs))
	for i, m := range msgs {
		apiMsgs[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	req := &api.ChatRequest{
		Model:    g.model,
		Messages: apiMsgs,
		Stream:   new(bool), // false
		Options:  map[string]any{"temperature": 0.2},
	}
	var out strings.Builder
	err := g.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		out.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return out.String(), nil
}
