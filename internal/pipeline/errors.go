package pipeline

import (
	"errors"
	"fmt"

	"github.com/dgallion1/pagechat/internal/chunker"
	"github.com/dgallion1/pagechat/internal/vectorindex"
)

var (
	ErrFetchFailed     = errors.New("fetch failed")
	ErrEmbeddingFailed = errors.New("embedding failed")
	ErrNoChunksIndexed = errors.New("no chunks indexed")
)

// FetchFailedError wraps a page-load failure for one URL.
type FetchFailedError struct {
	URL   string
	Cause error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchFailedError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Cause}
}

// EmbeddingFailedError wraps an embedding failure for one chunk.
type EmbeddingFailedError struct {
	ChunkID string
	Cause   error
}

func (e *EmbeddingFailedError) Error() string {
	return fmt.Sprintf("embed chunk %s: %v", e.ChunkID, e.Cause)
}

func (e *EmbeddingFailedError) Unwrap() []error {
	return []error{ErrEmbeddingFailed, e.Cause}
}

// IsFatal reports whether err indicates a setup problem that should stop a
// whole batch rather than a single URL.
func IsFatal(err error) bool {
	return errors.Is(err, chunker.ErrInvalidConfiguration) || errors.Is(err, vectorindex.ErrDimensionMismatch)
}
