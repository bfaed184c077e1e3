package types

import (
	"context"

	"github.com/xhad/craftsman/internal/models"
)

// Embedder matches langchaingo's embeddings.Embedder so its implementations
// can be used directly.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type FindOptions struct {
	Vector            []float32
	Limit             int
	IncludeSimilarity bool
}

type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	ListCollections(ctx context.Context) ([]string, error)
	Insert(ctx context.Context, doc models.Document) (string, error)
	InsertMany(ctx context.Context, docs []models.Document) (int, error)
	Find(ctx context.Context, opts FindOptions) ([]models.Document, error)
	FindOne(ctx context.Context) (*models.Document, error)
	Count(ctx context.Context, upperBound int) (int, error)
	Drop(ctx context.Context) error
	Close()
}

// GenerateRequest is a provider-neutral chat completion request.
type GenerateRequest struct {
	System      []string
	Messages    []models.ChatMessage
	Temperature float64
	MaxTokens   int
}

// Generator streams generated text to fn as it arrives. Returning an error
// from fn aborts the stream.
type Generator interface {
	Stream(ctx context.Context, req GenerateRequest, fn func(chunk string) error) error
}
