package main

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/pagechat/internal/answer"
	"github.com/dgallion1/pagechat/internal/chunker"
	"github.com/dgallion1/pagechat/internal/config"
	"github.com/dgallion1/pagechat/internal/fetch"
	"github.com/dgallion1/pagechat/internal/llm"
	"github.com/dgallion1/pagechat/internal/llm/ollama"
	"github.com/dgallion1/pagechat/internal/llm/openai"
	"github.com/dgallion1/pagechat/internal/pipeline"
	"github.com/dgallion1/pagechat/internal/vectorindex"
)

// app is the wired set of components one command runs against.
type app struct {
	backend  llm.Backend
	fetcher  *fetch.Client
	index    *vectorindex.Index
	indexer  *pipeline.Indexer
	answerer *answer.Orchestrator
}

func newApp(cfg config.Config, log *slog.Logger) (*app, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(fetch.Config{
		Timeout:              cfg.FetchTimeout,
		UserAgent:            cfg.FetchUserAgent,
		MaxBytes:             cfg.MaxPageBytes,
		PDFFallbackPdftotext: cfg.PDFFallbackPdftotext,
		RatePerSecond:        cfg.FetchRate,
	}, log)
	index := vectorindex.New()

	indexer, err := pipeline.NewIndexer(fetcher, backend, index,
		chunker.Config{WindowSize: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		log, pipeline.WithConcurrency(cfg.IndexConcurrency))
	if err != nil {
		backend.Close()
		return nil, err
	}

	answerer := answer.New(backend, index, answer.TemplateGenerator{Completer: backend}, log,
		answer.WithTopK(cfg.TopK))

	log.Debug("components wired",
		"provider", cfg.Provider,
		"model", backend.Model(),
		"chunk_size", cfg.ChunkSize,
		"chunk_overlap", cfg.ChunkOverlap,
		"top_k", cfg.TopK,
	)
	return &app{
		backend:  backend,
		fetcher:  fetcher,
		index:    index,
		indexer:  indexer,
		answerer: answerer,
	}, nil
}

func newBackend(cfg config.Config) (llm.Backend, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.New(ollama.Config{
			BaseURL:    cfg.OllamaURL,
			Model:      cfg.Model,
			EmbedModel: cfg.EmbedModel,
			Timeout:    cfg.LLMTimeout,
		}), nil
	case config.ProviderOpenAI:
		c, err := openai.New(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			EmbedModel: cfg.EmbedModel,
			Timeout:    cfg.LLMTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("openai backend: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func (a *app) Close() {
	a.fetcher.Close()
	a.backend.Close()
}
