package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/pagechat/internal/chunker"
	"github.com/dgallion1/pagechat/internal/document"
	"github.com/dgallion1/pagechat/internal/llm"
)

// DefaultTopK is how many chunks are retrieved per question.
const DefaultTopK = 4

// NoInfoAnswer is returned when the index has nothing to retrieve.
const NoInfoAnswer = "No relevant information found."

var (
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrQueryEmbedding   = errors.New("question embedding failed")
	ErrGenerationFailed = errors.New("generation failed")
)

// GenerationFailedError is returned when the model call fails after
// retrieval succeeded. The accompanying Result still carries the sources.
type GenerationFailedError struct {
	Cause error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Cause)
}

func (e *GenerationFailedError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Cause}
}

// Embedder turns the question into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Searcher returns the chunks nearest to a query vector.
type Searcher interface {
	Search(query []float64, k int) ([]document.ScoredChunk, error)
}

// Generator produces an answer from the bound template variables.
type Generator interface {
	Generate(ctx context.Context, vars PromptVars) (string, error)
}

// Result is a generated answer and the pages it drew from.
type Result struct {
	Answer  string
	Sources []string
	Chunks  []document.ScoredChunk
	NoInfo  bool
}

// Orchestrator answers questions from the index.
type Orchestrator struct {
	embedder  Embedder
	searcher  Searcher
	generator Generator
	log       *slog.Logger
	topK      int
	retry     llm.RetryPolicy
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTopK overrides how many chunks are retrieved.
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithRetryPolicy overrides how transient model errors are retried.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(o *Orchestrator) { o.retry = p }
}

func New(embedder Embedder, searcher Searcher, generator Generator, log *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		embedder:  embedder,
		searcher:  searcher,
		generator: generator,
		log:       log,
		topK:      DefaultTopK,
		retry:     llm.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TopK returns the retrieval depth.
func (o *Orchestrator) TopK() int {
	return o.topK
}

// Retrieve embeds question and returns the top-k chunks, most similar first.
// An empty index short-circuits before the question is embedded.
func (o *Orchestrator) Retrieve(ctx context.Context, question string) ([]document.ScoredChunk, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if c, ok := o.searcher.(interface{ Len() int }); ok && c.Len() == 0 {
		return []document.ScoredChunk{}, nil
	}

	qvec, err := llm.Retry(ctx, o.retry, o.log, "embed_question", func(ctx context.Context) ([]float64, error) {
		return o.embedder.Embed(ctx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
	}

	hits, err := o.searcher.Search(qvec, o.topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return hits, nil
}

// Answer retrieves context for question and asks the generator. With nothing
// retrieved it returns the NoInfoAnswer sentinel without calling the model.
// On generation failure the returned Result still holds the retrieved chunks
// and sources alongside a *GenerationFailedError.
func (o *Orchestrator) Answer(ctx context.Context, question string) (Result, error) {
	start := time.Now()
	hits, err := o.Retrieve(ctx, question)
	if err != nil {
		return Result{}, err
	}

	log := o.log.With("question_chars", len(question), "hits", len(hits))
	if len(hits) == 0 {
		log.Info("no chunks retrieved")
		return Result{Answer: NoInfoAnswer, Sources: []string{}, Chunks: hits, NoInfo: true}, nil
	}

	res := Result{
		Sources: Sources(hits),
		Chunks:  hits,
	}
	ctxText := BuildContext(hits)

	answer, err := llm.Retry(ctx, o.retry, o.log, "generate", func(ctx context.Context) (string, error) {
		return o.generator.Generate(ctx, PromptVars{Question: strings.TrimSpace(question), Context: ctxText})
	})
	if err != nil {
		log.Error("generation failed", "error", err, "sources", len(res.Sources))
		return res, &GenerationFailedError{Cause: err}
	}
	res.Answer = answer

	log.Info("answered question",
		"sources", len(res.Sources),
		"context_tokens", chunker.EstimateTokens(ctxText),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// BuildContext joins chunk texts with blank lines in rank order.
func BuildContext(hits []document.ScoredChunk) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Text
	}
	return strings.Join(parts, "\n\n")
}

// Sources lists the distinct chunk sources in first-occurrence order.
// Chunks without a source are reported as "Unknown".
func Sources(hits []document.ScoredChunk) []string {
	seen := make(map[string]bool, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		src := h.Source()
		if src == "" {
			src = "Unknown"
		}
		if seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}
