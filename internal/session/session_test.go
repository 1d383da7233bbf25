package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pagechat/internal/pipeline"
)

func TestNew_StartsCollecting(t *testing.T) {
	s := New(0)
	snap := s.Snapshot()
	assert.Equal(t, Collecting, snap.State)
	assert.Equal(t, DefaultMaxURLs, snap.MaxURLs)
	assert.Empty(t, snap.URLs)
	assert.False(t, snap.Indexed)
	assert.NotEmpty(t, s.ID())
}

func TestAddURL_MovesToReadyToFinalize(t *testing.T) {
	s := New(3)
	ok, err := s.AddURL("  https://a.example  ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ReadyToFinalize, s.State())
	assert.Equal(t, []string{"https://a.example"}, s.Snapshot().URLs)
}

func TestAddURL_Blank(t *testing.T) {
	s := New(3)
	_, err := s.AddURL("   ")
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Equal(t, Collecting, s.State())
}

func TestAddURL_SilentlyRejectedAtCap(t *testing.T) {
	s := New(2)
	for _, u := range []string{"https://a.example", "https://b.example"} {
		ok, err := s.AddURL(u)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := s.AddURL("https://c.example")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, s.Snapshot().URLs, 2)
}

func TestFinalize_Success(t *testing.T) {
	s := New(5)
	_, _ = s.AddURL("https://a.example")

	var got []string
	err := s.Finalize(context.Background(), func(_ context.Context, urls []string) error {
		assert.Equal(t, Indexing, s.State())
		got = urls
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example"}, got)
	assert.Equal(t, Ready, s.State())
	assert.True(t, s.Snapshot().Indexed)

	_, err = s.AddURL("https://b.example")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	err = s.Finalize(context.Background(), func(context.Context, []string) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFinalize_FatalErrorRevertsState(t *testing.T) {
	s := New(5)
	_, _ = s.AddURL("https://a.example")

	fatal := errors.New("dimension mismatch")
	err := s.Finalize(context.Background(), func(context.Context, []string) error { return fatal })
	require.ErrorIs(t, err, fatal)

	snap := s.Snapshot()
	assert.Equal(t, ReadyToFinalize, snap.State)
	assert.Equal(t, []string{"https://a.example"}, snap.URLs)
	assert.Equal(t, "dimension mismatch", snap.LastError)
}

func TestFinalize_RequiresURLs(t *testing.T) {
	s := New(5)
	called := false
	err := s.Finalize(context.Background(), func(context.Context, []string) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, called)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Collecting, te.State)
}

func TestBeginFinalize_OnlyOnce(t *testing.T) {
	s := New(5)
	_, _ = s.AddURL("https://a.example")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.BeginFinalize(); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, started)
	assert.Equal(t, Indexing, s.State())

	_, err := s.AddURL("https://b.example")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	s.CompleteFinalize(nil)
	assert.Equal(t, Ready, s.State())
}

func TestSetReport_Summarizes(t *testing.T) {
	s := New(5)
	s.SetReport(pipeline.Report{
		RunID: "run-1",
		Results: []pipeline.URLResult{
			{URL: "https://a.example", Status: pipeline.StatusIndexed, Chunks: 3, Inserted: 3},
			{URL: "bad-url", Status: pipeline.StatusFailed, Errors: []error{errors.New("fetch failed")}},
		},
	})

	rep := s.Snapshot().LastReport
	require.NotNil(t, rep)
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 3, rep.Chunks)
	assert.Equal(t, []string{"bad-url: fetch failed"}, rep.Errors)
}

func TestTrack_ExposesProgress(t *testing.T) {
	s := New(5)
	run := pipeline.NewRun([]string{"https://a.example"})
	s.Track(run)

	snap := s.Snapshot()
	require.NotNil(t, snap.Progress)
	assert.Equal(t, run.ID, snap.Progress.ID)
	require.Len(t, snap.Progress.URLs, 1)
	assert.Equal(t, pipeline.StatusQueued, snap.Progress.URLs[0].Status)
}

func TestState_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S State `json:"s"`
	}{ReadyToFinalize})
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"ready_to_finalize"}`, string(b))
	assert.Equal(t, "ready", Ready.String())
}
