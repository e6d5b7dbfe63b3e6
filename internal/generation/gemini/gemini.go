package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docchat/internal/domain"
	"docchat/internal/generation"
)

// Config configures the Gemini chat generator.
type Config struct {
	APIKeyEnv string
	Model     string
}

// Generator answers prompts with a Gemini model.
type Generator struct {
	client *genai.Client
	model  string
}

// NewGenerator creates a Gemini generator. Close releases its client.
func NewGenerator(ctx context.Context, cfg Config) (*Generator, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Generator{client: client, model: cfg.Model}, nil
}

func (g *Generator) Name() string { return "gemini" }

// Close releases the underlying connection.
func (g *Generator) Close() error { return g.client.Close() }

func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	msgs := generation.BuildMessages(p)
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(0.2)

	var history []*genai.Content
	for _, m := range msgs[:len(msgs)-1] {
		switch m.Role {
		case generation.RoleSystem:
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		case generation.RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(msgs[len(msgs)-1].Content))
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}
	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return out.String(), nil
}
