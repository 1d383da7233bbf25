package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Providers accepted for LLM_PROVIDER.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// FileEnv names the environment variable pointing at a YAML config file.
const FileEnv = "PAGECHAT_CONFIG"

type Config struct {
	Port string `yaml:"port"`

	// LLM backend. Empty Model and EmbedModel select the provider's
	// defaults; Ollama embeds with Model unless EmbedModel is set.
	Provider      string        `yaml:"provider"`
	OllamaURL     string        `yaml:"ollama_url"`
	Model         string        `yaml:"model"`
	EmbedModel    string        `yaml:"embed_model"`
	OpenAIAPIKey  string        `yaml:"openai_api_key"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	LLMTimeout    time.Duration `yaml:"llm_timeout"`

	// Fetching
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	FetchUserAgent string        `yaml:"fetch_user_agent"`
	MaxPageBytes   int64         `yaml:"max_page_bytes"`
	FetchRate      float64       `yaml:"fetch_rate"` // requests per second, 0 = unlimited

	// Chunking and retrieval
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	TopK         int `yaml:"top_k"`

	// Session and indexing
	MaxSessionURLs   int `yaml:"max_session_urls"`
	IndexConcurrency int `yaml:"index_concurrency"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// PDF
	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:                 "8501",
		Provider:             ProviderOllama,
		OllamaURL:            "http://localhost:11434",
		LLMTimeout:           120 * time.Second,
		FetchTimeout:         30 * time.Second,
		FetchUserAgent:       "pagechat/1.0",
		MaxPageBytes:         10 << 20, // 10MB
		ChunkSize:            1000,
		ChunkOverlap:         200,
		TopK:                 4,
		MaxSessionURLs:       5,
		IndexConcurrency:     1,
		LogLevel:             "info",
		LogFormat:            "text",
		PDFFallbackPdftotext: true,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $PAGECHAT_CONFIG when path is empty), then the environment.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := cfg.merge(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	return cfg, nil
}

func (c *Config) merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)

	c.Provider = envOr("LLM_PROVIDER", c.Provider)
	c.OllamaURL = envOr("OLLAMA_URL", c.OllamaURL)
	c.Model = envOr("MODEL", c.Model)
	c.EmbedModel = envOr("EMBED_MODEL", c.EmbedModel)
	c.OpenAIAPIKey = envOr("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = envOr("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.LLMTimeout = envDuration("LLM_TIMEOUT", c.LLMTimeout)

	c.FetchTimeout = envDuration("FETCH_TIMEOUT", c.FetchTimeout)
	c.FetchUserAgent = envOr("FETCH_USER_AGENT", c.FetchUserAgent)
	c.MaxPageBytes = envInt64("MAX_PAGE_BYTES", c.MaxPageBytes)
	c.FetchRate = envFloat("FETCH_RATE", c.FetchRate)

	c.ChunkSize = envInt("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = envInt("CHUNK_OVERLAP", c.ChunkOverlap)
	c.TopK = envInt("TOP_K", c.TopK)

	c.MaxSessionURLs = envInt("MAX_SESSION_URLS", c.MaxSessionURLs)
	c.IndexConcurrency = envInt("INDEX_CONCURRENCY", c.IndexConcurrency)

	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)

	c.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", c.PDFFallbackPdftotext)
}

func (c Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.FetchRate < 0 {
		errs = append(errs, fmt.Errorf("FETCH_RATE must not be negative, got %g", c.FetchRate))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be positive, got %d", c.TopK))
	}
	if c.MaxSessionURLs <= 0 {
		errs = append(errs, fmt.Errorf("MAX_SESSION_URLS must be positive, got %d", c.MaxSessionURLs))
	}
	if c.IndexConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("INDEX_CONCURRENCY must be positive, got %d", c.IndexConcurrency))
	}
	switch c.Provider {
	case ProviderOllama:
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, fmt.Errorf("OPENAI_API_KEY is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
