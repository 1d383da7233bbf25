package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pagechat/internal/chunker"
	"github.com/dgallion1/pagechat/internal/document"
	"github.com/dgallion1/pagechat/internal/llm"
	"github.com/dgallion1/pagechat/internal/vectorindex"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	pages map[string]string
	delay time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (document.Document, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return document.Document{}, ctx.Err()
		}
	}
	text, ok := f.pages[url]
	if !ok {
		return document.Document{}, errors.New("no such host")
	}
	return document.Document{
		ID:       url,
		Text:     text,
		Metadata: map[string]any{document.MetaSource: url, document.MetaTitle: "Title of " + url},
	}, nil
}

// fakeEmbedder maps text to a small deterministic vector.
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	failOn func(text string) error
	dim    int
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.failOn != nil {
		if err := e.failOn(text); err != nil {
			return nil, err
		}
	}
	dim := e.dim
	if dim == 0 {
		dim = 3
	}
	v := make([]float64, dim)
	v[0] = float64(len(text))
	v[dim-1] = 1
	return v, nil
}

type batchEmbedder struct {
	fakeEmbedder
	batchCalls atomic.Int32
	batchErr   error
	blank      map[int]bool // positions answered with an empty vector
}

func (e *batchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	e.batchCalls.Add(1)
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := e.fakeEmbedder.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		if e.blank[i] {
			v = nil
		}
		out[i] = v
	}
	return out, nil
}

func noRetry() Option {
	return WithRetryPolicy(llm.RetryPolicy{Attempts: 1})
}

func newIndexer(t *testing.T, f Fetcher, e Embedder, store Store, opts ...Option) *Indexer {
	t.Helper()
	ix, err := NewIndexer(f, e, store, chunker.DefaultConfig(), testLogger(), opts...)
	require.NoError(t, err)
	return ix
}

func TestProcess_IndexesAllChunks(t *testing.T) {
	text := strings.Repeat("a", 2500) // 3 chunks
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"https://good.example": text}}, &fakeEmbedder{}, index)

	res, err := ix.Process(context.Background(), "https://good.example")
	require.NoError(t, err)
	assert.Equal(t, StatusIndexed, res.Status)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, "Title of https://good.example", res.Title)
	assert.Equal(t, ContentHashHex([]byte(text)), res.ContentHash)
	assert.Equal(t, 3, index.Len())
	assert.Equal(t, []string{"https://good.example"}, index.Sources())
}

func TestProcess_FetchFailure(t *testing.T) {
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{}, &fakeEmbedder{}, index)

	res, err := ix.Process(context.Background(), "bad-url")
	require.ErrorIs(t, err, ErrFetchFailed)

	var ff *FetchFailedError
	require.ErrorAs(t, err, &ff)
	assert.Equal(t, "bad-url", ff.URL)
	assert.EqualError(t, ff.Cause, "no such host")
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, IsFatal(err))
	assert.Equal(t, 0, index.Len())
}

func TestProcess_EmptyPageIsFetchFailure(t *testing.T) {
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"https://empty.example": ""}}, &fakeEmbedder{}, vectorindex.New())

	_, err := ix.Process(context.Background(), "https://empty.example")
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestProcess_EmbeddingFailureSkipsOnlyThatChunk(t *testing.T) {
	text := strings.Repeat("a", 1000) + strings.Repeat("b", 1000) // 3 chunks
	emb := &fakeEmbedder{failOn: func(s string) error {
		if strings.HasPrefix(s, "b") {
			return errors.New("model crashed")
		}
		return nil
	}}
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"u": text}}, emb, index, noRetry())

	res, err := ix.Process(context.Background(), "u")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.False(t, IsFatal(err))

	var ef *EmbeddingFailedError
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, "u#2", ef.ChunkID)

	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, index.Len())
}

func TestProcess_RetriesTransientEmbeddingErrors(t *testing.T) {
	var failures atomic.Int32
	emb := &fakeEmbedder{failOn: func(string) error {
		if failures.Add(1) <= 2 {
			return &llm.RetryableError{StatusCode: 503, Message: "loading model"}
		}
		return nil
	}}
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"u": "short page"}}, emb, index,
		WithRetryPolicy(llm.RetryPolicy{Attempts: 3, Backoff: func(int) time.Duration { return 0 }}))

	res, err := ix.Process(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 3, emb.calls)
}

func TestProcess_DimensionMismatchIsFatal(t *testing.T) {
	index := vectorindex.New()
	require.NoError(t, index.Insert(document.Chunk{ID: "seed"}, []float64{1, 2, 3, 4, 5}))
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"u": "text"}}, &fakeEmbedder{dim: 3}, index)

	_, err := ix.Process(context.Background(), "u")
	require.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
	assert.True(t, IsFatal(err))
	assert.Equal(t, 1, index.Len())
}

func TestProcess_UsesBatchEmbedder(t *testing.T) {
	emb := &batchEmbedder{}
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"u": strings.Repeat("x", 3000)}}, emb, index)

	res, err := ix.Process(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, int32(1), emb.batchCalls.Load())
	assert.Equal(t, 4, res.Inserted)
}

func TestProcess_BatchEmptyVectorFailsOnlyThatChunk(t *testing.T) {
	emb := &batchEmbedder{blank: map[int]bool{2: true}}
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"u": strings.Repeat("x", 3000)}}, emb, index)

	res, err := ix.Process(context.Background(), "u")
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.False(t, IsFatal(err))
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 3, index.Len())
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], ErrEmbeddingFailed)
	assert.Zero(t, emb.calls, "batch result should be used without per-chunk fallback")
}

func TestProcess_BatchDimensionMismatchInsertsNothing(t *testing.T) {
	index := vectorindex.New()
	require.NoError(t, index.Insert(document.Chunk{ID: "seed"}, []float64{1, 2, 3, 4, 5}))
	emb := &batchEmbedder{}
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"u": strings.Repeat("x", 3000)}}, emb, index)

	res, err := ix.Process(context.Background(), "u")
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 1, index.Len())
}

func TestProcess_BatchFailureFallsBackToSingleChunks(t *testing.T) {
	emb := &batchEmbedder{batchErr: errors.New("batch endpoint missing")}
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"u": strings.Repeat("x", 3000)}}, emb, index, noRetry())

	res, err := ix.Process(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Inserted)
	assert.Equal(t, 4, emb.calls)
}

func TestProcess_ReprocessingAppendsDuplicates(t *testing.T) {
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"u": "same text"}}, &fakeEmbedder{}, index)

	_, err := ix.Process(context.Background(), "u")
	require.NoError(t, err)
	_, err = ix.Process(context.Background(), "u")
	require.NoError(t, err)
	assert.Equal(t, 2, index.Len())
}

func TestProcessMany_IsolatesFailures(t *testing.T) {
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"good-url": "good content"}}, &fakeEmbedder{}, index)

	report, err := ix.ProcessMany(context.Background(), []string{"bad-url", "good-url"})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.Equal(t, "bad-url", report.Results[0].URL)
	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.ErrorIs(t, report.Results[0].Err(), ErrFetchFailed)

	assert.Equal(t, "good-url", report.Results[1].URL)
	assert.Equal(t, StatusIndexed, report.Results[1].Status)

	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, report.ChunksIndexed())
	assert.True(t, report.AnyIndexed())
	assert.ErrorIs(t, report.Err(), ErrFetchFailed)
	assert.NotEmpty(t, report.RunID)

	hits, err := index.Search([]float64{float64(len("good content")), 0, 1}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "good-url", hits[0].Source())
}

func TestProcessMany_ConcurrentKeepsInputOrderAndIsolation(t *testing.T) {
	pages := map[string]string{}
	urls := []string{}
	for _, u := range []string{"u1", "u2", "u3", "u4", "u5"} {
		pages[u] = "content of " + u
		urls = append(urls, u)
	}
	urls = append(urls[:2], append([]string{"missing"}, urls[2:]...)...)

	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: pages, delay: 10 * time.Millisecond}, &fakeEmbedder{}, index, WithConcurrency(3))

	report, err := ix.ProcessMany(context.Background(), urls)
	require.NoError(t, err)
	require.Len(t, report.Results, len(urls))
	for i, res := range report.Results {
		assert.Equal(t, urls[i], res.URL)
	}
	assert.Equal(t, StatusFailed, report.Results[2].Status)
	assert.Equal(t, 5, report.Succeeded())
	assert.Equal(t, 5, index.Len())
}

func TestProcessMany_FatalErrorStopsBatch(t *testing.T) {
	index := vectorindex.New()
	require.NoError(t, index.Insert(document.Chunk{ID: "seed"}, []float64{1, 2}))
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"a": "x", "b": "y"}}, &fakeEmbedder{dim: 3}, index)

	report, err := ix.ProcessMany(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Equal(t, 1, index.Len())
}

func TestProcessMany_CancelledKeepsInsertedChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	index := vectorindex.New()
	emb := &fakeEmbedder{failOn: func(text string) error {
		if text == "first" {
			cancel()
		}
		return nil
	}}
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"a": "first", "b": "second"}}, emb, index)

	report, err := ix.ProcessMany(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusIndexed, report.Results[0].Status)
	assert.Equal(t, StatusFailed, report.Results[1].Status)
	assert.Equal(t, 1, index.Len())
}

func TestNewIndexer_RejectsBadChunkConfig(t *testing.T) {
	_, err := NewIndexer(&fakeFetcher{}, &fakeEmbedder{}, vectorindex.New(), chunker.Config{WindowSize: 10, Overlap: 10}, testLogger())
	assert.ErrorIs(t, err, chunker.ErrInvalidConfiguration)
}

func TestExecute_TracksProgress(t *testing.T) {
	index := vectorindex.New()
	ix := newIndexer(t, &fakeFetcher{pages: map[string]string{"ok": strings.Repeat("z", 1500)}}, &fakeEmbedder{}, index)

	run := NewRun([]string{"ok", "nope"})
	snap := run.Snapshot()
	assert.False(t, snap.Done)
	assert.Equal(t, StatusQueued, snap.URLs[0].Status)

	_, err := ix.Execute(context.Background(), run)
	require.NoError(t, err)

	snap = run.Snapshot()
	assert.True(t, snap.Done)
	require.NotNil(t, snap.FinishedAt)
	assert.Equal(t, StatusIndexed, snap.URLs[0].Status)
	assert.Equal(t, 2, snap.URLs[0].Chunks)
	assert.Equal(t, 2, snap.URLs[0].Embedded)
	assert.Equal(t, 2, snap.URLs[0].Inserted)
	assert.Empty(t, snap.URLs[0].Errors)
	assert.Equal(t, StatusFailed, snap.URLs[1].Status)
	assert.Len(t, snap.URLs[1].Errors, 1)
}
