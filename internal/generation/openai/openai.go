package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"docchat/internal/domain"
	"docchat/internal/generation"
)

// Config configures the OpenAI-compatible chat generator.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// Generator answers prompts with an OpenAI-compatible chat completion model.
type Generator struct {
	client *openai.Client
	model  string
}

// NewGenerator creates a chat completion generator from cfg.
func NewGenerator(cfg Config) (*Generator, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Generator{client: openai.NewClientWithConfig(oc), model: cfg.Model}, nil
}

func (g *Generator) Name() string { return "openai" }

func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	msgs := generation.BuildMessages(p)
	reqMsgs := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		reqMsgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    reqMsgs,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
