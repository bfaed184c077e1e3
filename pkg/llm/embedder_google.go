package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	genaiopt "google.golang.org/api/option"
)

// googleBatchLimit is the maximum number of contents per batchEmbedContents call.
const googleBatchLimit = 100

type googleEmbedder struct {
	config EmbedderConfig
	client *genai.Client
}

func newGoogleEmbedder(ctx context.Context, config EmbedderConfig) (*googleEmbedder, error) {
	if config.APIKey == "" {
		return nil, errors.New("google API key is required")
	}

	client, err := genai.NewClient(ctx, genaiopt.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, err
	}

	return &googleEmbedder{config: config, client: client}, nil
}

func (e *googleEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := checkTexts([]string{text}); err != nil {
		return nil, err
	}

	model := e.client.EmbeddingModel(e.config.Model)
	model.TaskType = genai.TaskTypeRetrievalQuery

	rsp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}
	if rsp == nil || rsp.Embedding == nil || len(rsp.Embedding.Values) == 0 {
		return nil, errors.New("no response from Google")
	}
	return rsp.Embedding.Values, nil
}

func (e *googleEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	model := e.client.EmbeddingModel(e.config.Model)
	model.TaskType = genai.TaskTypeRetrievalDocument

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += googleBatchLimit {
		end := min(start+googleBatchLimit, len(texts))

		batch := model.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}

		rsp, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, err
		}
		if rsp == nil || len(rsp.Embeddings) != end-start {
			return nil, fmt.Errorf("google returned an incomplete embedding batch")
		}
		for _, emb := range rsp.Embeddings {
			vectors = append(vectors, emb.Values)
		}
	}
	return vectors, nil
}
