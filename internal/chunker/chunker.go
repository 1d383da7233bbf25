package chunker

import (
	"errors"
	"fmt"

	"github.com/dgallion1/pagechat/internal/document"
)

// ErrInvalidConfiguration is returned for unusable window parameters or input.
var ErrInvalidConfiguration = errors.New("invalid chunker configuration")

// Config controls chunking behavior.
type Config struct {
	WindowSize int // Window length in characters.
	Overlap    int // Characters shared by consecutive windows.
}

// DefaultConfig returns the window used for web pages.
func DefaultConfig() Config {
	return Config{
		WindowSize: 1000,
		Overlap:    200,
	}
}

// Validate reports whether the window parameters are usable.
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfiguration, c.WindowSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.WindowSize {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfiguration, c.WindowSize, c.Overlap)
	}
	return nil
}

// Step is how far the window advances between chunks.
func (c Config) Step() int {
	return c.WindowSize - c.Overlap
}

// Splitter holds a validated configuration.
type Splitter struct {
	cfg Config
}

// New returns a Splitter for cfg.
func New(cfg Config) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Splitter{cfg: cfg}, nil
}

// Config returns the splitter's window parameters.
func (s *Splitter) Config() Config {
	return s.cfg
}

// Split chunks doc with the splitter's configuration.
func (s *Splitter) Split(doc document.Document) ([]document.Chunk, error) {
	return Split(doc, s.cfg.WindowSize, s.cfg.Overlap)
}

// Split slides a window of windowSize characters over doc.Text, advancing by
// windowSize-overlap each step. Once the remaining text fits in one window it
// is emitted as the final chunk.
func Split(doc document.Document, windowSize, overlap int) ([]document.Chunk, error) {
	cfg := Config{WindowSize: windowSize, Overlap: overlap}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if doc.Text == "" {
		return nil, fmt.Errorf("%w: document %q has no text", ErrInvalidConfiguration, doc.ID)
	}

	runes := []rune(doc.Text)
	step := cfg.Step()
	chunks := make([]document.Chunk, 0, Count(len(runes), windowSize, overlap))

	start := 0
	for len(runes)-start > windowSize {
		chunks = append(chunks, newChunk(doc, len(chunks), start, runes[start:start+windowSize]))
		start += step
	}
	chunks = append(chunks, newChunk(doc, len(chunks), start, runes[start:]))

	return chunks, nil
}

// Count returns how many chunks Split produces for a text of length n.
func Count(n, windowSize, overlap int) int {
	if n <= 0 {
		return 0
	}
	if n <= windowSize {
		return 1
	}
	step := windowSize - overlap
	return (n - overlap + step - 1) / step
}

// Reassemble joins chunks of one document, dropping the overlapping prefix of
// each chunk after the first.
func Reassemble(chunks []document.Chunk) string {
	var out []rune
	for _, ch := range chunks {
		rs := []rune(ch.Text)
		skip := len(out) - ch.StartOffset
		if skip < 0 {
			skip = 0
		}
		if skip > len(rs) {
			continue
		}
		out = append(out, rs[skip:]...)
	}
	return string(out)
}

func newChunk(doc document.Document, index, start int, text []rune) document.Chunk {
	md := document.CloneMetadata(doc.Metadata, 1)
	md[document.MetaStartIndex] = start
	return document.Chunk{
		ID:          document.ChunkID(doc.ID, index),
		ParentID:    doc.ID,
		Index:       index,
		Text:        string(text),
		StartOffset: start,
		Metadata:    md,
	}
}
