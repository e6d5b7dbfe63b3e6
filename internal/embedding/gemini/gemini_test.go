package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{APIKeyEnv: "DOCCHAT_TEST_MISSING_GEMINI_KEY"})
	assert.Error(t, err)
}

func TestClientName(t *testing.T) {
	t.Setenv("DOCCHAT_TEST_GEMINI_KEY", "fake-key")
	c, err := NewClient(context.Background(), Config{APIKeyEnv: "DOCCHAT_TEST_GEMINI_KEY"})
	if err != nil {
		t.Skipf("gemini client init failed: %v", err)
	}
	defer c.Close()
	assert.Equal(t, "gemini", c.Name())
	assert.Equal(t, "text-embedding-004", c.model)
}
