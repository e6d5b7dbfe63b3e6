package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/domain"
	"docchat/internal/generation"
	"docchat/internal/generation/extractive"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		out       string
		synopsis  string
		terms     []domain.KeyTerm
		wantError bool
	}{
		{
			name:     "canonical",
			out:      "SUMMARY:\nA lease between two parties.\n\nTERMS:\n- Security deposit: Money held against damage.\n- Notice period: Time to warn before leaving.",
			synopsis: "A lease between two parties.",
			terms: []domain.KeyTerm{
				{Term: "Security deposit", Explanation: "Money held against damage."},
				{Term: "Notice period", Explanation: "Time to warn before leaving."},
			},
		},
		{
			name:     "markdown and numbered",
			out:      "**Summary:** A rental agreement.\n\n## Key Terms:\n1. **Lessee**: The tenant.\n2) Lessor - The landlord.",
			synopsis: "A rental agreement.",
			terms: []domain.KeyTerm{
				{Term: "Lessee", Explanation: "The tenant."},
				{Term: "Lessor", Explanation: "The landlord."},
			},
		},
		{
			name:     "no headers",
			out:      "Just a paragraph\nspread over lines.",
			synopsis: "Just a paragraph spread over lines.",
			terms:    []domain.KeyTerm{},
		},
		{
			name:     "duplicates and cap",
			out:      "SUMMARY: S.\nTERMS:\n- a: 1\n- A: dup\n- b: 2\n- c: 3\n- d: 4\n- e: 5\n- f: 6",
			synopsis: "S.",
			terms: []domain.KeyTerm{
				{Term: "a", Explanation: "1"}, {Term: "b", Explanation: "2"}, {Term: "c", Explanation: "3"},
				{Term: "d", Explanation: "4"}, {Term: "e", Explanation: "5"},
			},
		},
		{
			name:      "terms only",
			out:       "TERMS:\n- a: 1",
			wantError: true,
		},
		{
			name:      "empty",
			out:       "  \n",
			wantError: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.out, 5)
			if tt.wantError {
				assert.ErrorIs(t, err, ErrUnparseable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.synopsis, got.Synopsis)
			assert.Equal(t, tt.terms, got.KeyTerms)
		})
	}
}

func TestExcerpt(t *testing.T) {
	short := "short text"
	got, truncated := Excerpt(short, 100, 0.75)
	assert.Equal(t, short, got)
	assert.False(t, truncated)

	long := strings.Repeat("a", 500) + strings.Repeat("z", 500)
	got, truncated = Excerpt(long, 200, 0.75)
	assert.True(t, truncated)
	assert.LessOrEqual(t, len(got), 200)
	head, tail, ok := strings.Cut(got, truncationMarker)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(long, head))
	assert.True(t, strings.HasSuffix(long, tail))
	assert.Greater(t, len(head), len(tail))
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("é", 400)
	got, truncated := Excerpt(long, 101, 0.75)
	assert.True(t, truncated)
	assert.True(t, strings.Contains(got, truncationMarker))
	for _, part := range strings.Split(got, truncationMarker) {
		assert.Equal(t, 0, len(strings.ReplaceAll(part, "é", "")))
	}
}

func TestSummarizeWithExtractiveGenerator(t *testing.T) {
	text := "The tenant shall pay a refundable security deposit of Rs.5000. " +
		"The landlord returns the security deposit after the tenant vacates. " +
		"The security deposit covers damage to the premises. " +
		"Rent is payable monthly and the tenant keeps the premises clean."
	e := NewExtractor(extractive.New(5), Options{})
	s, err := e.Summarize(context.Background(), text)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Synopsis)
	require.NotEmpty(t, s.KeyTerms)
	assert.Equal(t, "security deposit", s.KeyTerms[0].Term)
	assert.Equal(t, Disclaimer, s.Disclaimer)
	assert.False(t, s.Truncated)
}

func TestSummarizeMarksTruncation(t *testing.T) {
	var seen domain.Prompt
	gen := generation.Func(func(_ context.Context, p domain.Prompt) (string, error) {
		seen = p
		return "SUMMARY:\nLong.\nTERMS:\n- x: y", nil
	})
	e := NewExtractor(gen, Options{MaxInputChars: 100})
	s, err := e.Summarize(context.Background(), strings.Repeat("word ", 100))
	require.NoError(t, err)
	assert.True(t, s.Truncated)
	assert.Equal(t, domain.TaskSummarize, seen.Task)
	assert.LessOrEqual(t, len(seen.Context), 100)
	assert.Contains(t, seen.Instruction, "TERMS:")
}

func TestSummarizeErrors(t *testing.T) {
	failing := generation.Func(func(context.Context, domain.Prompt) (string, error) {
		return "", errors.New("provider down")
	})
	_, err := NewExtractor(failing, Options{}).Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)

	garbage := generation.Func(func(context.Context, domain.Prompt) (string, error) {
		return "TERMS:\n- only: terms", nil
	})
	_, err = NewExtractor(garbage, Options{}).Summarize(context.Background(), "text")
	assert.ErrorIs(t, err, domain.ErrGenerationFailed)

	slow := generation.Func(func(ctx context.Context, _ domain.Prompt) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err = NewExtractor(slow, Options{}).Summarize(ctx, "text")
	assert.ErrorIs(t, err, domain.ErrTimeout)
}
