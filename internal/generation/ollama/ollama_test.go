package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
)

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-test", req.Model)
		assert.Len(t, req.Messages, 4)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": {"role": "assistant", "content": "Rs.5000"}, "done": true, "eval_count": 3, "prompt_eval_count": 9}`))
	}))
	defer server.Close()

	g, err := NewGenerator(Config{BaseURL: server.URL, Model: "llama-test"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", g.Name())

	out, err := g.Generate(context.Background(), domain.Prompt{
		Context:  "A deposit of Rs.5000 is payable.",
		Question: "And the deposit?",
		History:  []domain.Turn{{Question: "Rent?", Answer: "Rs.12000"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Rs.5000", out)
}

func TestGenerateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model crashed"}`))
	}))
	defer server.Close()

	g, err := NewGenerator(Config{BaseURL: server.URL})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), domain.Prompt{Question: "q"})
	assert.Error(t, err)
}
