package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"docchat/internal/domain"
	"docchat/internal/generation"
	"docchat/internal/observe"
)

const passageSeparator = "\n\n"

var errEmptyAnswer = errors.New("generator returned an empty answer")

// Answer is a generated reply with the passages the generator was shown.
type Answer struct {
	Text      string
	Grounding []domain.SearchResult
}

// Answer replies to question from the session's document and records the
// turn. The session lock is held only while appending; embedding, search
// and generation run on a snapshot.
func (s *Service) Answer(ctx context.Context, id, question string) (ans *Answer, err error) {
	ctx, span := observe.StartSpan(ctx, "service.Answer", attribute.String("session.id", id))
	defer func() { observe.EndSpan(span, err) }()

	snap, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	asked := time.Now()

	vec, err := s.embedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}
	results, err := snap.Index.Query(vec, s.opts.TopK)
	if err != nil {
		return nil, domain.NewGenerationError(err)
	}

	history := snap.History
	if len(history) > s.opts.HistoryTurns {
		history = history[len(history)-s.opts.HistoryTurns:]
	}
	material, grounding := assembleContext(results, s.opts.MaxContextChars)
	prompt := domain.Prompt{
		Task:     domain.TaskAnswer,
		Context:  material,
		History:  history,
		Question: question,
	}
	gctx, cancel := context.WithTimeout(ctx, s.opts.GenerateTimeout)
	defer cancel()
	text, err := s.generator.Generate(gctx, prompt)
	if err != nil {
		s.log.Warn("generation failed", zap.String("session_id", id), zap.String("generator", s.generator.Name()), zap.Error(err))
		return nil, generation.Classify(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.NewGenerationError(errEmptyAnswer)
	}

	turn := domain.Turn{
		Question:   question,
		Answer:     text,
		Grounding:  grounding,
		AskedAt:    asked,
		AnsweredAt: time.Now(),
	}
	if err := s.sessions.AppendTurn(id, turn); err != nil {
		return nil, err
	}
	s.log.Debug("question answered",
		zap.String("session_id", id),
		zap.Int("retrieved", len(results)),
		zap.Int("grounding", len(grounding)),
		zap.Duration("elapsed", turn.AnsweredAt.Sub(asked)))
	return &Answer{Text: text, Grounding: grounding}, nil
}

func (s *Service) embedQuestion(ctx context.Context, question string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.EmbedTimeout)
	defer cancel()
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, generation.Classify(err)
	}
	return vec, nil
}

// assembleContext joins passages in similarity order until the next one no
// longer fits maxChars and returns the passages it used. A first passage
// longer than the budget is cut to it, and the returned copy carries the cut text.
func assembleContext(results []domain.SearchResult, maxChars int) (string, []domain.SearchResult) {
	var b strings.Builder
	used := make([]domain.SearchResult, 0, len(results))
	for i, r := range results {
		text := r.Passage.Text
		need := len(text)
		if i > 0 {
			need += len(passageSeparator)
		}
		if b.Len()+need > maxChars {
			if i == 0 {
				if cut := truncateRunes(text, maxChars); cut != "" {
					b.WriteString(cut)
					r.Passage.Text = cut
					used = append(used, r)
				}
			}
			break
		}
		if i > 0 {
			b.WriteString(passageSeparator)
		}
		b.WriteString(text)
		used = append(used, r)
	}
	return b.String(), used
}

func truncateRunes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	end := maxBytes
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}
