package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
)

// SentenceClient calls a sentence-transformer microservice. It implements
// langchaingo's embeddings.EmbedderClient.
type SentenceClient struct {
	baseURL   string
	model     string
	normalize bool
	client    *http.Client
}

type sentenceRequest struct {
	Text      string   `json:"text,omitempty"`
	Texts     []string `json:"texts,omitempty"`
	Model     string   `json:"model"`
	Normalize bool     `json:"normalize"`
}

type sentenceResponse struct {
	Embedding  []float32   `json:"embedding"`
	Embeddings [][]float32 `json:"embeddings"`
}

func NewSentenceClient(config EmbedderConfig) (*SentenceClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("sentence transformer API URL is required")
	}
	return &SentenceClient{
		baseURL:   strings.TrimRight(config.BaseURL, "/"),
		model:     config.Model,
		normalize: config.Normalize,
		client:    &http.Client{Timeout: config.Timeout},
	}, nil
}

func newSentenceEmbedder(config EmbedderConfig) (*embeddings.EmbedderImpl, error) {
	client, err := NewSentenceClient(config)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(false),
	)
}

// CreateEmbedding uses /embed for a single text and /embed-batch otherwise.
func (c *SentenceClient) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	if len(texts) == 1 {
		var out sentenceResponse
		err := c.post(ctx, "/embed", sentenceRequest{Text: texts[0], Model: c.model, Normalize: c.normalize}, &out)
		if err != nil {
			return nil, err
		}
		if len(out.Embedding) == 0 {
			return nil, fmt.Errorf("embedding service returned an empty vector")
		}
		return [][]float32{out.Embedding}, nil
	}

	var out sentenceResponse
	err := c.post(ctx, "/embed-batch", sentenceRequest{Texts: texts, Model: c.model, Normalize: c.normalize}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

func (c *SentenceClient) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("embedding service returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode embedding response: %w", err)
	}
	return nil
}
