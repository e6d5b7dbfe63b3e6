package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/embedding/gemini"
	"docchat/internal/embedding/hashing"
	"docchat/internal/embedding/ollama"
	"docchat/internal/embedding/openai"
	"docchat/internal/generation/extractive"
	geminigen "docchat/internal/generation/gemini"
	ollamagen "docchat/internal/generation/ollama"
	openaigen "docchat/internal/generation/openai"
	"docchat/internal/observe"
	"docchat/internal/service"
	"docchat/internal/session"
	"docchat/internal/summarizer"
)

// app holds the assembled components and everything that must be released.
type app struct {
	cfg      *config.AppConfig
	log      *zap.Logger
	svc      *service.Service
	sessions *session.Store
	closers  []func() error
	shutdown func(context.Context) error
}

// newApp wires the service from cfg. logOut receives console logs; the
// TUI passes io.Discard so logs do not tear the screen.
func newApp(ctx context.Context, cfg *config.AppConfig, logOut io.Writer) (*app, error) {
	log, err := observe.NewLogger(observe.LogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Out:    logOut,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}

	shutdown, err := observe.InitTracer(ctx, observe.TraceOptions{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	}, log)
	if err != nil {
		return nil, err
	}
	a.shutdown = shutdown

	emb, err := a.buildEmbedder(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	gen, err := a.buildGenerator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	ch := chunker.NewWindowChunker(cfg.Chunker.MaxChars, cfg.Chunker.Overlap)
	sum := summarizer.NewExtractor(gen, summarizer.Options{
		MaxInputChars: cfg.Summary.MaxInputChars,
		HeadFraction:  cfg.Summary.HeadFraction,
		MaxTerms:      cfg.Summary.MaxTerms,
		Logger:        log,
	})
	a.sessions = session.NewStore(session.Options{
		MaxSessions:     cfg.Sessions.MaxSessions,
		TTL:             cfg.Sessions.TTL,
		CleanupInterval: cfg.Sessions.CleanupInterval,
		Logger:          log,
	})
	a.svc = service.New(ch, emb, gen, sum, a.sessions, service.Options{
		TopK:             cfg.Retrieval.TopK,
		MaxContextChars:  cfg.Retrieval.MaxContextChars,
		HistoryTurns:     cfg.Retrieval.HistoryTurns,
		MaxDocumentBytes: cfg.Limits.MaxDocumentBytes,
		EmbedBatchSize:   cfg.Embedder.BatchSize,
		EmbedTimeout:     cfg.Limits.EmbedTimeout,
		GenerateTimeout:  cfg.Limits.GenerateTimeout,
		Logger:           log,
	})
	log.Debug("components assembled",
		zap.String("embedder", emb.Name()),
		zap.String("generator", gen.Name()))
	return a, nil
}

func (a *app) buildEmbedder(ctx context.Context) (domain.Embedder, error) {
	cfg := a.cfg.Embedder
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimensions), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    a.cfg.Limits.EmbedTimeout,
			BatchSize:  cfg.BatchSize,
			MaxRetries: cfg.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	case "ollama":
		if cfg.Ollama == nil {
			return nil, errors.New("ollama embedder config missing")
		}
		client, err := ollama.NewClient(ollama.Config{
			BaseURL:    cfg.Ollama.BaseURL,
			Model:      cfg.Ollama.Model,
			Timeout:    a.cfg.Limits.EmbedTimeout,
			BatchSize:  cfg.BatchSize,
			MaxRetries: cfg.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama embedder init failed: %w", err)
		}
		return client, nil
	case "gemini":
		if cfg.Gemini == nil {
			return nil, errors.New("gemini embedder config missing")
		}
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKeyEnv:  cfg.Gemini.APIKeyEnv,
			Model:      cfg.Gemini.Model,
			BatchSize:  cfg.BatchSize,
			MaxRetries: cfg.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embedder init failed: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func (a *app) buildGenerator(ctx context.Context) (domain.Generator, error) {
	cfg := a.cfg.Generator
	switch cfg.Type {
	case "extractive", "":
		return extractive.New(a.cfg.Summary.MaxTerms), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai generator config missing")
		}
		gen, err := openaigen.NewGenerator(openaigen.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   a.cfg.Limits.GenerateTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("openai generator init failed: %w", err)
		}
		return gen, nil
	case "ollama":
		if cfg.Ollama == nil {
			return nil, errors.New("ollama generator config missing")
		}
		gen, err := ollamagen.NewGenerator(ollamagen.Config{
			BaseURL: cfg.Ollama.BaseURL,
			Model:   cfg.Ollama.Model,
			Timeout: a.cfg.Limits.GenerateTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama generator init failed: %w", err)
		}
		return gen, nil
	case "gemini":
		if cfg.Gemini == nil {
			return nil, errors.New("gemini generator config missing")
		}
		gen, err := geminigen.NewGenerator(ctx, geminigen.Config{
			APIKeyEnv: cfg.Gemini.APIKeyEnv,
			Model:     cfg.Gemini.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini generator init failed: %w", err)
		}
		a.closers = append(a.closers, gen.Close)
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

// Close releases provider clients, sessions and the tracer.
func (a *app) Close() {
	if a.sessions != nil {
		a.sessions.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(context.Background()); err != nil {
			a.log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
