package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
)

type openAIEmbeddingClient struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func newOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func newOpenAIEmbedder(config EmbedderConfig) (*embeddings.EmbedderImpl, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}

	client := &openAIEmbeddingClient{
		client: newOpenAIClient(config.APIKey, config.BaseURL),
		model:  openai.EmbeddingModel(config.Model),
	}
	return embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(false),
	)
}

func (c *openAIEmbeddingClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	rsp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}
	if len(rsp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(rsp.Data), len(texts))
	}

	vectors := make([][]float32, len(rsp.Data))
	for _, d := range rsp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("openai returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}
