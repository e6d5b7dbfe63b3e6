// Package service wires chunking, embedding, indexing, summarization and
// sessions into the operations the CLI and the HTTP server expose.
package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docchat/internal/domain"
	"docchat/internal/embedding"
	"docchat/internal/generation"
	"docchat/internal/observe"
	"docchat/internal/session"
	"docchat/internal/vectorstore"
)

// Summarizer produces the upload-time analysis of a document.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (domain.Summary, error)
}

// Options tunes retrieval and bounds every external call.
type Options struct {
	TopK             int
	MaxContextChars  int
	HistoryTurns     int
	MaxDocumentBytes int

	// EmbedBatchSize is how many passages go into one embedder call, and
	// EmbedParallel how many calls run at once. Each call gets its own
	// EmbedTimeout.
	EmbedBatchSize int
	EmbedParallel  int

	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
	Logger          *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = 4
	}
	if o.MaxContextChars <= 0 {
		o.MaxContextChars = 4000
	}
	if o.HistoryTurns < 0 {
		o.HistoryTurns = 0
	}
	if o.MaxDocumentBytes <= 0 {
		o.MaxDocumentBytes = 5 << 20
	}
	if o.EmbedBatchSize <= 0 {
		o.EmbedBatchSize = 32
	}
	if o.EmbedParallel <= 0 {
		o.EmbedParallel = 2
	}
	if o.EmbedTimeout <= 0 {
		o.EmbedTimeout = 30 * time.Second
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = 60 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Service is safe for concurrent use.
type Service struct {
	chunker    domain.Chunker
	embedder   domain.Embedder
	generator  domain.Generator
	summarizer Summarizer
	sessions   *session.Store
	opts       Options
	log        *zap.Logger
}

// New creates a Service over the given pipeline components.
func New(chunker domain.Chunker, embedder domain.Embedder, generator domain.Generator, summarizer Summarizer, sessions *session.Store, opts Options) *Service {
	opts.applyDefaults()
	return &Service{
		chunker:    chunker,
		embedder:   embedder,
		generator:  generator,
		summarizer: summarizer,
		sessions:   sessions,
		opts:       opts,
		log:        opts.Logger,
	}
}

// IngestResult describes a newly created session.
type IngestResult struct {
	SessionID     string
	Filename      string
	Summary       domain.Summary
	SummaryFailed bool
	Passages      int
}

// Ingest chunks, embeds and indexes text and summarizes it in parallel, then
// opens a session over the result. Embedding failures reject the document
// and store nothing; a failed summary only marks the session.
func (s *Service) Ingest(ctx context.Context, filename, text string) (res *IngestResult, err error) {
	ctx, span := observe.StartSpan(ctx, "service.Ingest", attribute.Int("document.bytes", len(text)))
	defer func() { observe.EndSpan(span, err) }()

	if filename == "" {
		filename = "document.txt"
	}
	if len(text) > s.opts.MaxDocumentBytes {
		return nil, domain.NewIngestionError(domain.ReasonOversizeInput,
			fmt.Errorf("%d bytes exceeds limit of %d", len(text), s.opts.MaxDocumentBytes))
	}
	passages := s.chunker.Chunk(text)
	if len(passages) == 0 {
		return nil, domain.NewIngestionError(domain.ReasonEmptyText, nil)
	}
	span.SetAttributes(attribute.Int("document.passages", len(passages)))

	var (
		index         *vectorstore.Index
		summary       domain.Summary
		summaryFailed bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ix, err := s.index(gctx, passages)
		if err != nil {
			return err
		}
		index = ix
		return nil
	})
	g.Go(func() error {
		sctx, cancel := context.WithTimeout(gctx, s.opts.GenerateTimeout)
		defer cancel()
		sum, err := s.summarizer.Summarize(sctx, text)
		if err != nil {
			s.log.Warn("summary failed, session stays available for chat",
				zap.String("filename", filename), zap.Error(err))
			summaryFailed = true
			return nil
		}
		summary = sum
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("ingestion rejected", zap.String("filename", filename), zap.Error(err))
		return nil, err
	}

	doc := domain.Document{Filename: filename, Content: text, IngestedAt: time.Now()}
	id, err := s.sessions.Create(doc, index, summary, summaryFailed)
	if err != nil {
		return nil, err
	}
	s.log.Info("session created",
		zap.String("session_id", id),
		zap.String("filename", filename),
		zap.Int("passages", index.Len()),
		zap.Bool("summary_failed", summaryFailed),
		zap.String("embedder", s.embedder.Name()))
	return &IngestResult{SessionID: id, Filename: filename, Summary: summary, SummaryFailed: summaryFailed, Passages: index.Len()}, nil
}

func (s *Service) index(ctx context.Context, passages []domain.Passage) (*vectorstore.Index, error) {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vecs, err := embedding.Batch(ctx, texts, s.opts.EmbedBatchSize, s.opts.EmbedParallel,
		func(ctx context.Context, group []string) ([][]float32, error) {
			ctx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
			defer cancel()
			return s.embedder.EmbedBatch(ctx, group)
		})
	if err != nil {
		return nil, domain.NewIngestionError(domain.ReasonEmbeddingFailure, timeoutAware(err))
	}
	if len(vecs) != len(passages) {
		return nil, domain.NewIngestionError(domain.ReasonEmbeddingFailure,
			fmt.Errorf("got %d vectors for %d passages", len(vecs), len(passages)))
	}
	indexed := make([]domain.Passage, len(passages))
	for i, p := range passages {
		p.Vector = vecs[i]
		indexed[i] = p
	}
	ix, err := vectorstore.Build(indexed)
	if err != nil {
		return nil, domain.NewIngestionError(domain.ReasonEmbeddingFailure, err)
	}
	return ix, nil
}

// List returns the live sessions, newest first.
func (s *Service) List() []session.Info { return s.sessions.List() }

// Session returns a snapshot of one session.
func (s *Service) Session(id string) (session.Snapshot, error) { return s.sessions.Get(id) }

// Delete ends a session. Later calls with its id fail with ErrNotFound.
func (s *Service) Delete(id string) error {
	if err := s.sessions.Delete(id); err != nil {
		return err
	}
	s.log.Info("session deleted", zap.String("session_id", id))
	return nil
}

func timeoutAware(err error) error {
	if generation.IsTimeout(err) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}
