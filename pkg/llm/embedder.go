package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xhad/craftsman/internal/types"
)

var ErrEmptyText = errors.New("text must be a non-empty string")

// EmbedderConfig represents the configuration for an embedding provider.
type EmbedderConfig struct {
	Provider  string // sentence, google, ollama or openai
	Model     string
	BaseURL   string // service URL for sentence/ollama, API base for openai
	APIKey    string
	Normalize bool
	BatchSize int
	Timeout   time.Duration
}

// Embedder wraps a provider behind the shared embedding interface.
type Embedder struct {
	Config EmbedderConfig
	types.Embedder
}

func defaultEmbeddingModel(provider string) string {
	switch provider {
	case "google":
		return "text-embedding-004"
	case "ollama":
		return "nomic-embed-text:latest"
	case "openai":
		return "text-embedding-3-small"
	default:
		return "Xenova/all-MiniLM-L6-v2"
	}
}

// NewEmbedderWithConfig creates the configured embedding client.
func NewEmbedderWithConfig(ctx context.Context, config EmbedderConfig) (*Embedder, error) {
	config.Provider = strings.ToLower(config.Provider)
	if config.Provider == "" {
		config.Provider = "sentence"
	}
	if config.Model == "" {
		config.Model = defaultEmbeddingModel(config.Provider)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	var (
		impl types.Embedder
		err  error
	)
	switch config.Provider {
	case "sentence":
		impl, err = newSentenceEmbedder(config)
	case "google":
		impl, err = newGoogleEmbedder(ctx, config)
	case "ollama":
		impl, err = newOllamaEmbedder(config)
	case "openai":
		impl, err = newOpenAIEmbedder(config)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s embedder: %w", config.Provider, err)
	}

	return &Embedder{Config: config, Embedder: impl}, nil
}

func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return ErrEmptyText
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return ErrEmptyText
		}
	}
	return nil
}
