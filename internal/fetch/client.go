package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/dgallion1/pagechat/internal/document"
	"github.com/dgallion1/pagechat/internal/parser"
)

var (
	// ErrEmptyContent is returned when a page has no extractable text.
	ErrEmptyContent = errors.New("page has no extractable text")

	// ErrUnsupportedURL is returned for anything other than absolute http(s) URLs.
	ErrUnsupportedURL = errors.New("unsupported url")

	// ErrTooLarge is returned when a binary page exceeds MaxBytes. Textual
	// pages are cut at MaxBytes instead and marked truncated.
	ErrTooLarge = errors.New("page exceeds size limit")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status %s", e.Status)
}

// Config controls the HTTP page loader.
type Config struct {
	Timeout              time.Duration
	UserAgent            string
	MaxBytes             int64
	PDFFallbackPdftotext bool

	// RatePerSecond caps outgoing requests; zero means unlimited.
	RatePerSecond float64
}

// Client loads web pages and extracts their text.
type Client struct {
	httpClient *http.Client
	cfg        Config
	limiter    *rate.Limiter
	log        *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pagechat/1.0"
	}
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		log:        log,
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return c
}

// Fetch downloads rawURL and returns its text as a Document whose ID and
// source are the URL.
func (c *Client) Fetch(ctx context.Context, rawURL string) (document.Document, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil {
		return document.Document{}, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return document.Document{}, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return document.Document{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return document.Document{}, fmt.Errorf("rate limit: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return document.Document{}, fmt.Errorf("get %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return document.Document{}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes+1))
	if err != nil {
		return document.Document{}, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(body)) > c.cfg.MaxBytes
	if truncated {
		body = body[:c.cfg.MaxBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if truncated {
		if !isTextual(mediaType) {
			return document.Document{}, fmt.Errorf("%w: %s is over %d bytes", ErrTooLarge, u.Redacted(), c.cfg.MaxBytes)
		}
		c.log.Warn("page truncated at size limit", "url", u.Redacted(), "max_bytes", c.cfg.MaxBytes)
	}

	var r io.Reader = bytes.NewReader(body)
	if isTextual(mediaType) {
		// Decode legacy charsets to UTF-8 before parsing.
		if r, err = charset.NewReader(r, contentType); err != nil {
			return document.Document{}, fmt.Errorf("decode charset: %w", err)
		}
	}

	p := parser.Resolve(contentType, u.Path, parser.Options{PDFFallbackPdftotext: c.cfg.PDFFallbackPdftotext})
	page, err := p.Parse(r, u.Path)
	if err != nil {
		return document.Document{}, fmt.Errorf("parse %s: %w", u.Redacted(), err)
	}

	text := page.Text()
	if strings.TrimSpace(text) == "" {
		return document.Document{}, ErrEmptyContent
	}

	title := page.Title
	if title == "" {
		title = u.Host
	}

	c.log.Debug("fetched page",
		"url", u.Redacted(),
		"status", resp.StatusCode,
		"content_type", mediaType,
		"bytes", len(body),
		"chars", len([]rune(text)),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	meta := map[string]any{
		document.MetaSource:      rawURL,
		document.MetaTitle:       title,
		document.MetaContentType: mediaType,
	}
	if truncated {
		meta[document.MetaTruncated] = true
	}
	return document.Document{ID: rawURL, Text: text, Metadata: meta}, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func isTextual(mediaType string) bool {
	return strings.HasPrefix(mediaType, "text/") || mediaType == "application/xhtml+xml"
}
