package document

import "fmt"

// Metadata keys set by the fetcher and the chunker.
const (
	MetaSource      = "source"
	MetaTitle       = "title"
	MetaContentType = "content_type"
	MetaStartIndex  = "start_index"
	MetaTruncated   = "truncated"
)

// Document is the text of one loaded page plus metadata about where it came from.
type Document struct {
	ID       string         // Usually the source URL
	Text     string         // Extracted page text
	Metadata map[string]any // At least "source"
}

// Chunk is a window of a parent document's text.
type Chunk struct {
	ID          string
	ParentID    string
	Index       int    // Sequence number within the parent
	Text        string // Window content
	StartOffset int    // Character offset of Text within the parent
	Metadata    map[string]any
}

// IndexedChunk pairs a chunk with its embedding.
type IndexedChunk struct {
	Chunk
	Embedding []float64
}

// ScoredChunk is a search hit.
type ScoredChunk struct {
	IndexedChunk
	Score float64
}

// ChunkID builds the identifier for the i-th chunk of a parent document.
func ChunkID(parentID string, i int) string {
	return fmt.Sprintf("%s#%d", parentID, i)
}

// Source returns the origin recorded in metadata, or "" if none.
func Source(md map[string]any) string {
	if md == nil {
		return ""
	}
	s, _ := md[MetaSource].(string)
	return s
}

// Source returns the chunk's origin.
func (c Chunk) Source() string {
	return Source(c.Metadata)
}

// CloneMetadata returns a shallow copy of md with room for extra keys.
func CloneMetadata(md map[string]any, extra int) map[string]any {
	out := make(map[string]any, len(md)+extra)
	for k, v := range md {
		out[k] = v
	}
	return out
}
