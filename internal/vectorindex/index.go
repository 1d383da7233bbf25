package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dgallion1/pagechat/internal/document"
)

var (
	// ErrDimensionMismatch is matched by every DimensionMismatchError.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding is returned when inserting or querying with a zero-length vector.
	ErrEmptyEmbedding = errors.New("empty embedding")

	// ErrLengthMismatch is returned by InsertBatch when chunks and embeddings differ in count.
	ErrLengthMismatch = errors.New("chunks and embeddings length mismatch")
)

// DimensionMismatchError reports a vector whose length differs from the locked dimension.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: index has %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

type entry struct {
	chunk document.IndexedChunk
	norm  float64
}

// Index is an in-memory exact cosine-similarity index. The first successful
// insert fixes the dimension until Clear.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   []entry
}

func New() *Index {
	return &Index{}
}

// Insert appends one chunk and its embedding.
func (ix *Index) Insert(chunk document.Chunk, embedding []float64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.checkLocked(embedding); err != nil {
		return err
	}
	ix.appendLocked(chunk, embedding)
	return nil
}

// InsertBatch validates every embedding before appending any of them.
func (ix *Index) InsertBatch(chunks []document.Chunk, embeddings [][]float64) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d chunks, %d embeddings", ErrLengthMismatch, len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	dim := ix.dimension
	if dim == 0 {
		dim = len(embeddings[0])
	}
	for _, emb := range embeddings {
		if len(emb) == 0 {
			return ErrEmptyEmbedding
		}
		if len(emb) != dim {
			return &DimensionMismatchError{Want: dim, Got: len(emb)}
		}
	}
	for i := range chunks {
		ix.appendLocked(chunks[i], embeddings[i])
	}
	return nil
}

// Search returns up to k entries ranked by cosine similarity to query, most
// similar first. Equal scores keep insertion order.
func (ix *Index) Search(query []float64, k int) ([]document.ScoredChunk, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.entries) == 0 || k <= 0 {
		return []document.ScoredChunk{}, nil
	}
	if len(query) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if len(query) != ix.dimension {
		return nil, &DimensionMismatchError{Want: ix.dimension, Got: len(query)}
	}

	qnorm := norm(query)
	scored := make([]document.ScoredChunk, len(ix.entries))
	for i, e := range ix.entries {
		scored[i] = document.ScoredChunk{
			IndexedChunk: e.chunk,
			Score:        cosine(e.chunk.Embedding, e.norm, query, qnorm),
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Clear removes every entry and unlocks the dimension.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = nil
	ix.dimension = 0
}

// Len returns the number of stored chunks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Dimension returns the locked dimension, or 0 if nothing has been inserted.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dimension
}

// Sources lists distinct chunk sources in first-insert order.
func (ix *Index) Sources() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	seen := make(map[string]bool)
	out := []string{}
	for _, e := range ix.entries {
		src := e.chunk.Source()
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}

func (ix *Index) checkLocked(embedding []float64) error {
	if len(embedding) == 0 {
		return ErrEmptyEmbedding
	}
	if ix.dimension != 0 && len(embedding) != ix.dimension {
		return &DimensionMismatchError{Want: ix.dimension, Got: len(embedding)}
	}
	return nil
}

func (ix *Index) appendLocked(chunk document.Chunk, embedding []float64) {
	emb := make([]float64, len(embedding))
	copy(emb, embedding)
	if ix.dimension == 0 {
		ix.dimension = len(emb)
	}
	ix.entries = append(ix.entries, entry{
		chunk: document.IndexedChunk{Chunk: chunk, Embedding: emb},
		norm:  norm(emb),
	})
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// cosine treats a zero vector as dissimilar to everything.
func cosine(a []float64, anorm float64, b []float64, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (anorm * bnorm)
}
