package domain

import (
	"context"
	"time"
)

// Document is the extracted text of one uploaded file.
type Document struct {
	Filename   string
	Content    string
	IngestedAt time.Time
}

// Passage is a contiguous slice of a document used as the unit of retrieval.
// Offset is the byte offset of Text inside the document content.
type Passage struct {
	Index  int
	Offset int
	Text   string
	Vector []float32
}

// SearchResult is a passage with its similarity to a query vector.
type SearchResult struct {
	Passage Passage
	Score   float64
}

// KeyTerm is a glossary entry extracted from a document.
type KeyTerm struct {
	Term        string `json:"term"`
	Explanation string `json:"explanation"`
}

// Summary is the one-shot analysis of a document.
type Summary struct {
	Synopsis   string    `json:"synopsis"`
	KeyTerms   []KeyTerm `json:"key_terms"`
	Truncated  bool      `json:"truncated"`
	Disclaimer string    `json:"disclaimer,omitempty"`
}

// Turn is one answered question of a conversation.
type Turn struct {
	Question   string
	Answer     string
	Grounding  []SearchResult
	AskedAt    time.Time
	AnsweredAt time.Time
}

// Task tells a generator which kind of output the prompt expects.
type Task string

const (
	TaskAnswer    Task = "answer"
	TaskSummarize Task = "summarize"
)

// Prompt is the provider-agnostic input of a generation call.
type Prompt struct {
	Task        Task
	Instruction string
	Context     string
	History     []Turn
	Question    string
}

// Chunker splits document text into overlapping passages without vectors.
type Chunker interface {
	Chunk(text string) []Passage
}

// Embedder converts text into unit-length vectors. EmbedBatch returns
// vectors in input order.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator turns a grounded prompt into text. It is backed by an external
// language model or by a local deterministic implementation.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}
