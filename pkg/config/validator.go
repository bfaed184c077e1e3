package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, msg string) {
		errors = append(errors, ValidationError{Field: field, Message: msg})
	}

	// LLM
	if !oneOf(c.LLM.Provider, "gemini", "google", "ollama", "openai", "anthropic") {
		add("llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		add("llm.api_key", fmt.Sprintf("API key is required for %s", c.LLM.Provider))
	}
	if c.LLM.BaseURL != "" && !validURL(c.LLM.BaseURL) {
		add("llm.base_url", "invalid base URL")
	}
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		add("llm.max_tokens", "max_tokens must be between 1 and 8192")
	}
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("llm.temperature", "temperature must be between 0 and 2")
	}

	// Embedding
	switch c.Embedding.Provider {
	case "sentence", "ollama":
		if !validURL(c.Embedding.URL) {
			add("embedding.url", "embedding service URL is required")
		}
	case "google", "openai":
		if c.Embedding.APIKey == "" {
			add("embedding.api_key", fmt.Sprintf("API key is required for %s", c.Embedding.Provider))
		}
	default:
		add("embedding.provider", fmt.Sprintf("unknown provider %q", c.Embedding.Provider))
	}
	if c.Embedding.BatchSize < 1 {
		add("embedding.batch_size", "batch_size must be positive")
	}

	// Store
	switch c.Store.Backend {
	case "astra":
		if !validURL(c.Store.Endpoint) {
			add("store.endpoint", "Astra DB API endpoint is required")
		}
		if c.Store.Token == "" {
			add("store.token", "Astra DB application token is required")
		}
	case "pgvector", "postgres":
		if c.Store.URL == "" {
			add("store.url", "database URL is required")
		} else if _, err := url.Parse(c.Store.URL); err != nil {
			add("store.url", "invalid database URL")
		}
	case "memory":
	default:
		add("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend))
	}
	if c.Store.Dimension < 1 {
		add("store.dimension", "dimension must be positive")
	} else if d := EmbeddingDimension(c.Embedding.Model); d > 0 && d != c.Store.Dimension {
		add("store.dimension", fmt.Sprintf("embedding model %s produces %d dimensions, store is configured for %d",
			c.Embedding.Model, d, c.Store.Dimension))
	}
	if !oneOf(c.Store.Metric, "cosine", "dot_product", "euclidean") {
		add("store.metric", "metric must be cosine, dot_product or euclidean")
	}
	if c.Store.BatchSize < 1 {
		add("store.batch_size", "batch_size must be positive")
	}

	// Retrieval
	if c.Retrieval.MinSimilarity < -1 || c.Retrieval.MinSimilarity > 1 {
		add("retrieval.min_similarity", "min_similarity must be between -1 and 1")
	}
	if c.Retrieval.VectorLimit < 1 || c.Retrieval.BrowseLimit < 1 {
		add("retrieval.vector_limit", "limits must be positive")
	}
	if c.Retrieval.MaxContextLength < 1 {
		add("retrieval.max_context_length", "max_context_length must be positive")
	}

	// Scraper
	if c.Scraper.MaxDepth < 0 {
		add("scraper.max_depth", "max_depth cannot be negative")
	}
	if c.Scraper.RateLimit <= 0 {
		add("scraper.rate_limit", "rate_limit must be positive")
	}
	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			add("scraper.allowed_extensions", fmt.Sprintf("invalid extension format: %s", ext))
		}
	}
	for _, pattern := range c.Scraper.IgnorePatterns {
		if !doublestar.ValidatePattern(pattern) {
			add("scraper.ignore_patterns", fmt.Sprintf("invalid pattern: %s", pattern))
		}
	}

	// Processor
	if c.Processor.ChunkSize < 1 {
		add("processor.chunk_size", "chunk_size must be positive")
	}
	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		add("processor.chunk_overlap", "chunk_overlap must be non-negative and less than chunk_size")
	}

	// Craftsmen API is optional; only checked when set.
	if c.Craftsmen.APIURL != "" && !validURL(c.Craftsmen.APIURL) {
		add("craftsmen.api_url", "invalid craftsmen API URL")
	}
	if c.Craftsmen.RateLimit <= 0 {
		add("craftsmen.rate_limit", "rate_limit must be positive")
	}

	if !oneOf(strings.ToLower(c.Log.Level), "debug", "info", "warn", "error") {
		add("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}

	return errors
}
