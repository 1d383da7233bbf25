package parser

import (
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
)

// Page is the readable content of one fetched resource.
type Page struct {
	Title  string
	Blocks []string // Headings and paragraphs in document order
}

// Text joins the page's blocks with blank lines.
func (p *Page) Text() string {
	return strings.Join(p.Blocks, "\n\n")
}

func (p *Page) add(block string) {
	block = strings.TrimSpace(block)
	if block != "" {
		p.Blocks = append(p.Blocks, block)
	}
}

// Parser converts a response body into a Page. name is the URL path or file
// name and supplies a fallback title.
type Parser interface {
	Parse(r io.Reader, name string) (*Page, error)
}

// Options tunes parsers that shell out or buffer to disk.
type Options struct {
	PDFFallbackPdftotext bool
}

var contentTypes = map[string]string{
	"text/html":             ".html",
	"application/xhtml+xml": ".html",
	"text/markdown":         ".md",
	"text/x-markdown":       ".md",
	"text/plain":            ".txt",
	"text/csv":              ".csv",
	"application/pdf":       ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the parser for a file name or URL path.
func ForFile(name string, opts Options) (Parser, error) {
	ext := strings.ToLower(path.Ext(name))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// ForContentType returns the parser for a Content-Type header value.
func ForContentType(contentType string, opts Options) (Parser, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("parse content type %q: %w", contentType, err)
	}
	ext, ok := contentTypes[mediaType]
	if !ok {
		return nil, fmt.Errorf("unsupported content type: %s", mediaType)
	}
	return ForFile(ext, opts)
}

// Resolve picks a parser from the content type, falling back to the name's
// extension and finally to HTML, the common case for web pages.
func Resolve(contentType, name string, opts Options) Parser {
	if contentType != "" {
		if p, err := ForContentType(contentType, opts); err == nil {
			return p
		}
	}
	if p, err := ForFile(name, opts); err == nil {
		return p
	}
	return &HTMLParser{}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(name string) bool {
	return SupportedExtensions[strings.ToLower(path.Ext(name))]
}

// titleFromName strips the directory and extension from name.
func titleFromName(name string) string {
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
