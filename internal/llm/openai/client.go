// Package openai adapts any OpenAI-compatible API to the llm.Backend interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/dgallion1/pagechat/internal/llm"
)

var _ llm.Backend = (*Client)(nil)

const (
	DefaultModel      = "gpt-4o-mini"
	DefaultEmbedModel = "text-embedding-3-small"
	DefaultTimeout    = 60 * time.Second

	// maxBatch is the most inputs sent in one embeddings request.
	maxBatch = 100
)

var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("openai api key not set")

	// ErrNoChoices is returned when a completion has no choices.
	ErrNoChoices = errors.New("no completion choices returned")
)

// Config holds configuration for the OpenAI client.
type Config struct {
	APIKey      string
	BaseURL     string // Optional, for compatible servers
	Model       string
	EmbedModel  string
	Timeout     time.Duration
	Temperature float64
	StatsWindow time.Duration
}

// Client calls chat completions and embeddings through openai-go.
type Client struct {
	client      openai.Client
	model       string
	embedModel  string
	temperature float64
	metrics     *llm.Metrics
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		// Retries are driven by llm.Retry so they show up in logs and stats.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}

	return &Client{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		embedModel:  cfg.EmbedModel,
		temperature: cfg.Temperature,
		metrics:     llm.NewMetrics(cfg.StatsWindow),
	}, nil
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := c.complete(ctx, prompt)
	c.metrics.Generate.Observe(start, err)
	return out, err
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// Embed returns the embedding of one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in requests of up to 100 inputs, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := min(start+maxBatch, len(texts))

		began := time.Now()
		vecs, err := c.embedBatch(ctx, texts[start:end])
		c.metrics.Embed.Observe(began, err)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
	}
	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{OfString: openai.String(texts[0])}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float64, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding at index %d", d.Index)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

// classify marks rate limits and server errors as retryable.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && llm.IsRetryableStatus(apiErr.StatusCode) {
		return &llm.RetryableError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return fmt.Errorf("openai api call failed: %w", err)
}

// Model returns the generation model name.
func (c *Client) Model() string {
	return c.model
}

// Metrics returns latency stats for calls made by this client.
func (c *Client) Metrics() *llm.Metrics {
	return c.metrics
}

// Close is a no-op; the SDK owns its transport.
func (c *Client) Close() {}
