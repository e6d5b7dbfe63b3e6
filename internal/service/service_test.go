package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/chunker"
	"docchat/internal/domain"
	"docchat/internal/embedding/hashing"
	"docchat/internal/generation"
	"docchat/internal/generation/extractive"
	"docchat/internal/session"
	"docchat/internal/summarizer"
)

const lease = "The tenant shall pay a refundable security deposit of Rs.5000 before moving in. " +
	"The monthly rent is Rs.12000 payable on the fifth day of each month.\n\n" +
	"The landlord shall return the security deposit within thirty days after the tenant vacates. " +
	"Either party may terminate this agreement by giving one month written notice.\n\n" +
	"The security deposit may be applied to repair damage beyond normal wear. " +
	"The tenant shall not sublet the premises without the landlord's written consent. " +
	"Pets are not allowed on the premises."

type failingEmbedder struct{ err error }

func (f failingEmbedder) Name() string { return "failing" }
func (f failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, f.err
}
func (f failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, f.err
}

// slowEmbedder delays every batch call and records how it was called.
type slowEmbedder struct {
	inner domain.Embedder
	delay time.Duration

	mu       sync.Mutex
	calls    int
	maxGroup int
	noLimit  bool
}

func (e *slowEmbedder) Name() string { return "slow" }

func (e *slowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.inner.Embed(ctx, text)
}

func (e *slowEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.maxGroup = max(e.maxGroup, len(texts))
	if _, ok := ctx.Deadline(); !ok {
		e.noLimit = true
	}
	e.mu.Unlock()
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.inner.EmbedBatch(ctx, texts)
}

type summaryFunc func(ctx context.Context, text string) (domain.Summary, error)

func (f summaryFunc) Summarize(ctx context.Context, text string) (domain.Summary, error) {
	return f(ctx, text)
}

type fixture struct {
	svc      *Service
	sessions *session.Store
}

func newFixture(t *testing.T, gen domain.Generator, opts Options) fixture {
	t.Helper()
	return newFixtureWith(t, hashing.NewEmbedder(256), gen, nil, opts)
}

func newFixtureWith(t *testing.T, emb domain.Embedder, gen domain.Generator, sum Summarizer, opts Options) fixture {
	t.Helper()
	if gen == nil {
		gen = extractive.New(5)
	}
	if sum == nil {
		sum = summarizer.NewExtractor(extractive.New(5), summarizer.Options{})
	}
	store := session.NewStore(session.Options{})
	t.Cleanup(store.Close)
	svc := New(chunker.NewWindowChunker(200, 0.1), emb, gen, sum, store, opts)
	return fixture{svc: svc, sessions: store}
}

func TestIngestAndAnswerLease(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, "lease.txt", lease)
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.False(t, res.SummaryFailed)
	assert.Greater(t, res.Passages, 1)
	assert.NotEmpty(t, res.Summary.Synopsis)
	assert.Equal(t, summarizer.Disclaimer, res.Summary.Disclaimer)
	require.NotEmpty(t, res.Summary.KeyTerms)
	assert.Equal(t, "security deposit", res.Summary.KeyTerms[0].Term)

	ans, err := f.svc.Answer(ctx, res.SessionID, "How much is the refundable security deposit?")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "Rs.5000")
	require.NotEmpty(t, ans.Grounding)
	assert.LessOrEqual(t, len(ans.Grounding), 4)
	for i := 1; i < len(ans.Grounding); i++ {
		assert.GreaterOrEqual(t, ans.Grounding[i-1].Score, ans.Grounding[i].Score)
	}

	snap, err := f.svc.Session(res.SessionID)
	require.NoError(t, err)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "How much is the refundable security deposit?", snap.History[0].Question)
	assert.Equal(t, ans.Text, snap.History[0].Answer)
	assert.False(t, snap.History[0].AnsweredAt.Before(snap.History[0].AskedAt))
}

func TestPlainDepositQuestionFindsAmount(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, "lease.txt", lease)
	require.NoError(t, err)
	ans, err := f.svc.Answer(ctx, res.SessionID, "How much is the deposit?")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "5000")

	found := false
	for _, g := range ans.Grounding {
		if strings.Contains(g.Passage.Text, "Rs.5000") {
			found = true
		}
	}
	assert.True(t, found, "grounding should include the Rs.5000 sentence")
}

func TestIngestRejectsEmptyText(t *testing.T) {
	f := newFixture(t, nil, Options{})
	_, err := f.svc.Ingest(context.Background(), "blank.txt", " \n\t ")
	require.ErrorIs(t, err, domain.ErrIngestionFailed)
	var ie *domain.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.ReasonEmptyText, ie.Reason)
	assert.Empty(t, f.svc.List())
}

func TestIngestRejectsOversizeInput(t *testing.T) {
	f := newFixture(t, nil, Options{MaxDocumentBytes: 100})
	_, err := f.svc.Ingest(context.Background(), "big.txt", strings.Repeat("word ", 50))
	var ie *domain.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.ReasonOversizeInput, ie.Reason)
}

func TestIngestEmbeddingFailureStoresNothing(t *testing.T) {
	boom := errors.New("provider down")
	f := newFixtureWith(t, failingEmbedder{err: boom}, nil, nil, Options{})
	_, err := f.svc.Ingest(context.Background(), "lease.txt", lease)
	require.ErrorIs(t, err, domain.ErrIngestionFailed)
	assert.ErrorIs(t, err, boom)
	var ie *domain.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, domain.ReasonEmbeddingFailure, ie.Reason)
	assert.Empty(t, f.svc.List())
}

func TestIngestEmbeddingTimeout(t *testing.T) {
	f := newFixtureWith(t, failingEmbedder{err: context.DeadlineExceeded}, nil, nil, Options{})
	_, err := f.svc.Ingest(context.Background(), "lease.txt", lease)
	assert.ErrorIs(t, err, domain.ErrIngestionFailed)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestIngestBoundsEachEmbeddingCall(t *testing.T) {
	emb := &slowEmbedder{inner: hashing.NewEmbedder(256), delay: 25 * time.Millisecond}
	f := newFixtureWith(t, emb, nil, nil, Options{
		EmbedBatchSize: 2,
		EmbedParallel:  1,
		EmbedTimeout:   60 * time.Millisecond,
	})
	long := strings.Repeat(lease+"\n\n", 4)

	res, err := f.svc.Ingest(context.Background(), "long.txt", long)
	require.NoError(t, err)

	emb.mu.Lock()
	defer emb.mu.Unlock()
	assert.Equal(t, (res.Passages+1)/2, emb.calls)
	assert.GreaterOrEqual(t, emb.calls, 4, "whole ingestion should outlast a single timeout")
	assert.LessOrEqual(t, emb.maxGroup, 2)
	assert.False(t, emb.noLimit, "every embedder call must carry a deadline")
}

func TestIngestTimesOutSlowEmbeddingCall(t *testing.T) {
	emb := &slowEmbedder{inner: hashing.NewEmbedder(256), delay: time.Second}
	f := newFixtureWith(t, emb, nil, nil, Options{EmbedTimeout: 20 * time.Millisecond})
	_, err := f.svc.Ingest(context.Background(), "lease.txt", lease)
	assert.ErrorIs(t, err, domain.ErrIngestionFailed)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Empty(t, f.svc.List())
}

func TestIngestSummaryFailureKeepsChat(t *testing.T) {
	failing := summaryFunc(func(context.Context, string) (domain.Summary, error) {
		return domain.Summary{}, domain.NewGenerationError(errors.New("unparseable"))
	})
	f := newFixtureWith(t, hashing.NewEmbedder(256), nil, failing, Options{})
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, "lease.txt", lease)
	require.NoError(t, err)
	assert.True(t, res.SummaryFailed)
	assert.Empty(t, res.Summary.Synopsis)

	ans, err := f.svc.Answer(ctx, res.SessionID, "What is the monthly rent?")
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "Rs.12000")
}

func TestAnswerErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		_, err := f.svc.Answer(ctx, "missing", "anything?")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("empty question", func(t *testing.T) {
		f := newFixture(t, nil, Options{})
		res, err := f.svc.Ingest(ctx, "lease.txt", lease)
		require.NoError(t, err)
		_, err = f.svc.Answer(ctx, res.SessionID, "   ")
		assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	})

	t.Run("generator failure records no turn", func(t *testing.T) {
		gen := generation.Func(func(context.Context, domain.Prompt) (string, error) {
			return "", errors.New("rate limited")
		})
		f := newFixture(t, gen, Options{})
		res, err := f.svc.Ingest(ctx, "lease.txt", lease)
		require.NoError(t, err)
		_, err = f.svc.Answer(ctx, res.SessionID, "rent?")
		assert.ErrorIs(t, err, domain.ErrGenerationFailed)
		snap, err := f.svc.Session(res.SessionID)
		require.NoError(t, err)
		assert.Empty(t, snap.History)
	})

	t.Run("empty generator output", func(t *testing.T) {
		gen := generation.Func(func(context.Context, domain.Prompt) (string, error) { return " \n", nil })
		f := newFixture(t, gen, Options{})
		res, err := f.svc.Ingest(ctx, "lease.txt", lease)
		require.NoError(t, err)
		_, err = f.svc.Answer(ctx, res.SessionID, "rent?")
		assert.ErrorIs(t, err, domain.ErrGenerationFailed)
	})

	t.Run("timeout", func(t *testing.T) {
		gen := generation.Func(func(ctx context.Context, _ domain.Prompt) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		f := newFixture(t, gen, Options{GenerateTimeout: 20 * time.Millisecond})
		res, err := f.svc.Ingest(ctx, "lease.txt", lease)
		require.NoError(t, err)
		_, err = f.svc.Answer(ctx, res.SessionID, "rent?")
		assert.ErrorIs(t, err, domain.ErrTimeout)
		snap, err := f.svc.Session(res.SessionID)
		require.NoError(t, err)
		assert.Empty(t, snap.History)
	})
}

func TestAnswerAfterConcurrentDeleteIsNotFound(t *testing.T) {
	var svc *Service
	var id string
	gen := generation.Func(func(context.Context, domain.Prompt) (string, error) {
		require.NoError(t, svc.Delete(id))
		return "late answer", nil
	})
	f := newFixture(t, gen, Options{})
	svc = f.svc

	res, err := svc.Ingest(context.Background(), "lease.txt", lease)
	require.NoError(t, err)
	id = res.SessionID

	_, err = svc.Answer(context.Background(), id, "rent?")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Session(id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentAnswersAllRecorded(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	res, err := f.svc.Ingest(ctx, "lease.txt", lease)
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Answer(ctx, res.SessionID, fmt.Sprintf("question %d about the rent?", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := f.svc.Session(res.SessionID)
	require.NoError(t, err)
	assert.Len(t, snap.History, n)
}

func TestHistoryWindowReachesGenerator(t *testing.T) {
	var mu sync.Mutex
	var last domain.Prompt
	gen := generation.Func(func(_ context.Context, p domain.Prompt) (string, error) {
		mu.Lock()
		last = p
		mu.Unlock()
		return "answer to " + p.Question, nil
	})
	f := newFixture(t, gen, Options{HistoryTurns: 2})
	ctx := context.Background()
	res, err := f.svc.Ingest(ctx, "lease.txt", lease)
	require.NoError(t, err)

	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		_, err := f.svc.Answer(ctx, res.SessionID, q)
		require.NoError(t, err)
	}
	require.Len(t, last.History, 2)
	assert.Equal(t, "q2", last.History[0].Question)
	assert.Equal(t, "q3", last.History[1].Question)
	assert.Equal(t, "q4", last.Question)
	assert.Equal(t, domain.TaskAnswer, last.Task)
	assert.NotEmpty(t, last.Context)
}

func TestSessionsAreIsolated(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	a, err := f.svc.Ingest(ctx, "lease.txt", lease)
	require.NoError(t, err)
	b, err := f.svc.Ingest(ctx, "pets.txt", "Cats are allowed in the building. Dogs must be leashed.")
	require.NoError(t, err)

	ans, err := f.svc.Answer(ctx, b.SessionID, "How much is the refundable security deposit?")
	require.NoError(t, err)
	assert.NotContains(t, ans.Text, "Rs.5000")

	require.NoError(t, f.svc.Delete(b.SessionID))
	_, err = f.svc.Answer(ctx, b.SessionID, "dogs?")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Answer(ctx, a.SessionID, "rent?")
	assert.NoError(t, err)

	list := f.svc.List()
	require.Len(t, list, 1)
	assert.Equal(t, a.SessionID, list[0].ID)
	assert.ErrorIs(t, f.svc.Delete(b.SessionID), domain.ErrNotFound)
}

func TestAssembleContext(t *testing.T) {
	r := func(text string) domain.SearchResult {
		return domain.SearchResult{Passage: domain.Passage{Text: text}}
	}
	texts := func(rs []domain.SearchResult) []string {
		out := make([]string, len(rs))
		for i, x := range rs {
			out[i] = x.Passage.Text
		}
		return out
	}
	results := []domain.SearchResult{r("aaaa"), r("bbbb"), r("cc")}

	got, used := assembleContext(results, 100)
	assert.Equal(t, "aaaa\n\nbbbb\n\ncc", got)
	assert.Equal(t, []string{"aaaa", "bbbb", "cc"}, texts(used))

	got, used = assembleContext(results, 12)
	assert.Equal(t, "aaaa\n\nbbbb", got)
	assert.Equal(t, []string{"aaaa", "bbbb"}, texts(used))

	// Stops at the first passage that does not fit, even if a later one would.
	got, used = assembleContext([]domain.SearchResult{r("aaaa"), r("bbbbbbbbbb"), r("c")}, 9)
	assert.Equal(t, "aaaa", got)
	assert.Equal(t, []string{"aaaa"}, texts(used))

	got, used = assembleContext(results, 2)
	assert.Equal(t, "aa", got)
	assert.Equal(t, []string{"aa"}, texts(used))
	assert.Equal(t, "aaaa", results[0].Passage.Text)

	got, used = assembleContext(nil, 10)
	assert.Equal(t, "", got)
	assert.Empty(t, used)
}

func TestGroundingMatchesGeneratorContext(t *testing.T) {
	var seen string
	gen := generation.Func(func(_ context.Context, p domain.Prompt) (string, error) {
		seen = p.Context
		return "ok", nil
	})
	f := newFixture(t, gen, Options{TopK: 4, MaxContextChars: 250})
	ctx := context.Background()

	res, err := f.svc.Ingest(ctx, "lease.txt", lease)
	require.NoError(t, err)
	require.Greater(t, res.Passages, 2)

	ans, err := f.svc.Answer(ctx, res.SessionID, "security deposit tenant")
	require.NoError(t, err)
	require.NotEmpty(t, ans.Grounding)
	assert.Less(t, len(ans.Grounding), 4)
	for _, g := range ans.Grounding {
		assert.Contains(t, seen, g.Passage.Text)
	}

	snap, err := f.svc.Session(res.SessionID)
	require.NoError(t, err)
	require.Len(t, snap.History, 1)
	assert.Equal(t, ans.Grounding, snap.History[0].Grounding)
}
