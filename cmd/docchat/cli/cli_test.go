package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lease = "The tenant shall pay a refundable security deposit of Rs.5000 before moving in. " +
	"The monthly rent is Rs.12000 payable on the fifth day of each month.\n\n" +
	"The landlord shall return the security deposit within thirty days after the tenant vacates. " +
	"Either party may terminate this agreement by giving one month written notice."

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"chat", "ask", "serve"} {
		assert.True(t, names[want], "missing command %q", want)
	}
	assert.NotNil(t, RootCmd.PersistentFlags().Lookup("config"))
}

func TestAskPrintsAnswerAndSources(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "lease.txt")
	require.NoError(t, os.WriteFile(doc, []byte(lease), 0o600))
	t.Setenv("DOCCHAT_EMBEDDER", "")
	t.Setenv("DOCCHAT_GENERATOR", "")
	t.Chdir(dir)

	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs([]string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--log-level", "error",
		"ask", "--summary", doc, "How much is the refundable security deposit?",
	})
	t.Cleanup(func() {
		RootCmd.SetArgs(nil)
		cfgPath, logLevel, showSummary = "", "", false
	})

	require.NoError(t, RootCmd.Execute(), errOut.String())
	got := out.String()
	assert.Contains(t, got, "Summary:")
	assert.Contains(t, got, "Key terms:")
	assert.Contains(t, got, "Rs.5000")
	assert.Contains(t, got, "Sources:")
	assert.Contains(t, got, "[1] offset=")
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b", snippet("a\n\n  b", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}
