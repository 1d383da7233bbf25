package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/pagechat/internal/chunker"
	"github.com/dgallion1/pagechat/internal/document"
	"github.com/dgallion1/pagechat/internal/llm"
)

// Fetcher loads a page and returns its text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (document.Document, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// BatchEmbedder is implemented by embedders that accept many texts per call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Store receives embedded chunks. InsertBatch must leave the store
// unchanged when it fails.
type Store interface {
	Insert(chunk document.Chunk, embedding []float64) error
	InsertBatch(chunks []document.Chunk, embeddings [][]float64) error
}

// Indexer runs fetch, chunk, embed and insert for URLs.
type Indexer struct {
	fetcher     Fetcher
	embedder    Embedder
	store       Store
	splitter    *chunker.Splitter
	log         *slog.Logger
	retry       llm.RetryPolicy
	concurrency int
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithConcurrency processes up to n URLs at once. Values below 2 keep the
// batch sequential.
func WithConcurrency(n int) Option {
	return func(ix *Indexer) { ix.concurrency = n }
}

// WithRetryPolicy overrides how transient embedding errors are retried.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(ix *Indexer) { ix.retry = p }
}

// NewIndexer validates the chunk configuration and wires the collaborators.
func NewIndexer(fetcher Fetcher, embedder Embedder, store Store, chunkCfg chunker.Config, log *slog.Logger, opts ...Option) (*Indexer, error) {
	splitter, err := chunker.New(chunkCfg)
	if err != nil {
		return nil, err
	}
	ix := &Indexer{
		fetcher:     fetcher,
		embedder:    embedder,
		store:       store,
		splitter:    splitter,
		log:         log,
		retry:       llm.DefaultRetryPolicy(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Process indexes a single URL. A fetch failure is returned as a
// *FetchFailedError; chunks that fail to embed are skipped and reported as
// *EmbeddingFailedError. Configuration and dimension errors are fatal.
func (ix *Indexer) Process(ctx context.Context, url string) (URLResult, error) {
	run := NewRun([]string{url})
	res, err := ix.process(ctx, run, 0)
	run.finishURL(0, res)
	return res, err
}

// ProcessMany indexes each URL independently. Per-URL failures are recorded
// in the report and never stop the batch; the returned error is non-nil only
// for fatal errors or cancellation.
func (ix *Indexer) ProcessMany(ctx context.Context, urls []string) (Report, error) {
	return ix.Execute(ctx, NewRun(urls))
}

// Execute processes every URL in run, updating its progress as stages complete.
func (ix *Indexer) Execute(ctx context.Context, run *Run) (Report, error) {
	log := ix.log.With("run_id", run.ID)
	urls := run.URLs()
	log.Info("indexing started", "urls", len(urls), "concurrency", ix.concurrency)

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	work := func(i int) {
		if err := ctx.Err(); err != nil {
			run.AddError(i, err)
			run.finishURL(i, URLResult{URL: urls[i], Status: StatusFailed, Errors: []error{err}})
			return
		}
		res, err := ix.process(ctx, run, i)
		run.finishURL(i, res)
		if err != nil && IsFatal(err) {
			fatalOnce.Do(func() {
				fatalErr = err
				cancel()
			})
		}
	}

	if ix.concurrency < 2 {
		for i := range urls {
			work(i)
		}
	} else {
		sem := make(chan struct{}, ix.concurrency)
		var wg sync.WaitGroup
		for i := range urls {
			sem <- struct{}{}
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				defer func() { <-sem }()
				work(i)
			}(i)
		}
		wg.Wait()
	}

	err := fatalErr
	if err == nil {
		err = parent.Err()
	}
	run.finish(err)

	report := run.Report()
	log.Info("indexing finished",
		"succeeded", report.Succeeded(),
		"partial", report.Partial(),
		"failed", report.Failed(),
		"chunks", report.ChunksIndexed(),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, err
}

func (ix *Indexer) process(ctx context.Context, run *Run, i int) (URLResult, error) {
	url := run.URLs()[i]
	start := time.Now()
	res := URLResult{URL: url, Status: StatusFailed}
	log := ix.log.With("run_id", run.ID, "url", url)

	fail := func(err error) (URLResult, error) {
		res.Errors = append(res.Errors, err)
		res.Duration = time.Since(start)
		run.AddError(i, err)
		log.Error("indexing failed", "error", err)
		return res, err
	}

	// Stage 1: fetch.
	run.SetStatus(i, StatusFetching)
	doc, err := ix.fetcher.Fetch(ctx, url)
	if err == nil && doc.Text == "" {
		err = errors.New("empty content")
	}
	if err != nil {
		return fail(&FetchFailedError{URL: url, Cause: err})
	}
	if doc.ID == "" {
		doc.ID = url
	}
	if document.Source(doc.Metadata) == "" {
		doc.Metadata = document.CloneMetadata(doc.Metadata, 1)
		doc.Metadata[document.MetaSource] = url
	}
	res.Title, _ = doc.Metadata[document.MetaTitle].(string)
	res.ContentHash = ContentHashHex([]byte(doc.Text))
	run.update(i, func(p *URLProgress) {
		p.Title = res.Title
		p.ContentHash = res.ContentHash
	})
	log.Info("fetched page", "stage", "fetch", "chars", len([]rune(doc.Text)))

	// Stage 2: chunk.
	run.SetStatus(i, StatusChunking)
	chunks, err := ix.splitter.Split(doc)
	if err != nil {
		return fail(err)
	}
	res.Chunks = len(chunks)
	run.update(i, func(p *URLProgress) { p.Chunks = len(chunks) })
	log.Info("chunked page", "stage", "chunk", "chunks", len(chunks))

	// Stage 3: embed.
	run.SetStatus(i, StatusEmbedding)
	embeddings, batched, embedErrs := ix.embedAll(ctx, run, i, chunks, log)
	for _, e := range embedErrs {
		res.Errors = append(res.Errors, e)
		run.AddError(i, e)
	}

	// Stage 4: insert what embedded.
	run.SetStatus(i, StatusInserting)
	if batched {
		ready := make([]document.Chunk, 0, len(chunks))
		vecs := make([][]float64, 0, len(chunks))
		for j, ch := range chunks {
			if embeddings[j] != nil {
				ready = append(ready, ch)
				vecs = append(vecs, embeddings[j])
			}
		}
		if err := ix.store.InsertBatch(ready, vecs); err != nil {
			return fail(fmt.Errorf("insert %d chunks: %w", len(ready), err))
		}
		res.Inserted = len(ready)
	} else {
		for j, ch := range chunks {
			if embeddings[j] == nil {
				continue
			}
			if err := ix.store.Insert(ch, embeddings[j]); err != nil {
				return fail(fmt.Errorf("insert chunk %s: %w", ch.ID, err))
			}
			res.Inserted++
		}
	}

	res.Duration = time.Since(start)
	switch {
	case res.Inserted == res.Chunks:
		res.Status = StatusIndexed
	case res.Inserted > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusFailed
	}
	log.Info("indexed page",
		"stage", "insert",
		"status", res.Status,
		"inserted", res.Inserted,
		"chunks", res.Chunks,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, res.Err()
}

// embedAll returns one embedding per chunk, nil where embedding failed, and
// whether the vectors came from a single batch call.
func (ix *Indexer) embedAll(ctx context.Context, run *Run, i int, chunks []document.Chunk, log *slog.Logger) ([][]float64, bool, []error) {
	out := make([][]float64, len(chunks))

	if be, ok := ix.embedder.(BatchEmbedder); ok && len(chunks) > 1 {
		texts := make([]string, len(chunks))
		for j, ch := range chunks {
			texts[j] = ch.Text
		}
		vecs, err := llm.Retry(ctx, ix.retry, log, "embed_batch", func(ctx context.Context) ([][]float64, error) {
			return be.EmbedBatch(ctx, texts)
		})
		if err == nil && len(vecs) == len(chunks) {
			var errs []error
			for j, vec := range vecs {
				if len(vec) == 0 {
					log.Warn("embedding failed", "stage", "embed", "chunk", chunks[j].ID, "error", "empty embedding")
					errs = append(errs, &EmbeddingFailedError{ChunkID: chunks[j].ID, Cause: errors.New("empty embedding")})
					continue
				}
				out[j] = vec
			}
			run.update(i, func(p *URLProgress) { p.Embedded = len(chunks) - len(errs) })
			return out, true, errs
		}
		log.Warn("batch embedding failed, falling back to single chunks", "error", err)
	}

	var errs []error
	for j, ch := range chunks {
		vec, err := llm.Retry(ctx, ix.retry, log, "embed", func(ctx context.Context) ([]float64, error) {
			return ix.embedder.Embed(ctx, ch.Text)
		})
		if err == nil && len(vec) == 0 {
			err = errors.New("empty embedding")
		}
		if err != nil {
			log.Warn("embedding failed", "stage", "embed", "chunk", ch.ID, "error", err)
			errs = append(errs, &EmbeddingFailedError{ChunkID: ch.ID, Cause: err})
			continue
		}
		out[j] = vec
		run.update(i, func(p *URLProgress) { p.Embedded++ })
	}
	return out, false, errs
}
