package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
)

var (
	ErrDimensionMismatch  = errors.New("embedding dimension does not match collection")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrEmptyText          = errors.New("document text is empty")
)

const (
	MetricCosine     = "cosine"
	MetricDotProduct = "dot_product"
	MetricEuclidean  = "euclidean"
)

type VectorStoreConfig struct {
	Backend    string // astra, pgvector or memory
	Collection string
	Dimension  int
	Metric     string
	BatchSize  int

	// astra
	Endpoint  string
	Token     string
	Namespace string

	// pgvector
	ConnString string

	Logger *slog.Logger
}

func (c *VectorStoreConfig) applyDefaults() {
	if c.Backend == "" {
		c.Backend = "astra"
	}
	if c.Collection == "" {
		c.Collection = "vector_collection"
	}
	if c.Dimension == 0 {
		c.Dimension = 384
	}
	if c.Metric == "" {
		c.Metric = MetricCosine
	}
	if c.BatchSize == 0 {
		c.BatchSize = 20
	}
	if c.Namespace == "" {
		c.Namespace = "default_keyspace"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewWithConfig builds the configured backend.
func NewWithConfig(ctx context.Context, config VectorStoreConfig) (types.VectorStore, error) {
	config.applyDefaults()

	switch strings.ToLower(config.Backend) {
	case "astra":
		return NewAstra(config)
	case "pgvector", "postgres":
		return NewPGVector(ctx, config)
	case "memory":
		return NewMemory(config), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", config.Backend)
	}
}

func checkDocument(doc models.Document, dimension int) error {
	if strings.TrimSpace(doc.Text) == "" {
		return ErrEmptyText
	}
	if len(doc.Embedding) != dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(doc.Embedding), dimension)
	}
	return nil
}
