package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
)

// MemoryStore keeps documents in process and searches them linearly.
type MemoryStore struct {
	config  VectorStoreConfig
	mu      sync.RWMutex
	created bool
	docs    []models.Document
}

func NewMemory(config VectorStoreConfig) *MemoryStore {
	config.applyDefaults()
	return &MemoryStore{config: config}
}

func (m *MemoryStore) EnsureCollection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = true
	return nil
}

func (m *MemoryStore) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.created {
		return []string{}, nil
	}
	return []string{m.config.Collection}, nil
}

func (m *MemoryStore) Insert(ctx context.Context, doc models.Document) (string, error) {
	if err := checkDocument(doc, m.config.Dimension); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.Embedding = append([]float32(nil), doc.Embedding...)
	doc.Similarity = nil

	m.created = true
	m.docs = append(m.docs, doc)
	return doc.ID, nil
}

func (m *MemoryStore) InsertMany(ctx context.Context, docs []models.Document) (int, error) {
	for _, doc := range docs {
		if err := checkDocument(doc, m.config.Dimension); err != nil {
			return 0, err
		}
	}
	for _, doc := range docs {
		if _, err := m.Insert(ctx, doc); err != nil {
			return 0, err
		}
	}
	return len(docs), nil
}

func (m *MemoryStore) Find(ctx context.Context, opts types.FindOptions) ([]models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]models.Document, len(m.docs))
	copy(results, m.docs)

	if len(opts.Vector) > 0 {
		if len(opts.Vector) != m.config.Dimension {
			return nil, ErrDimensionMismatch
		}
		for i := range results {
			results[i] = results[i].WithSimilarity(CosineSimilarity(opts.Vector, results[i].Embedding))
		}
		sort.SliceStable(results, func(i, j int) bool {
			return *results[i].Similarity > *results[j].Similarity
		})
		if !opts.IncludeSimilarity {
			for i := range results {
				results[i].Similarity = nil
			}
		}
	}

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

func (m *MemoryStore) FindOne(ctx context.Context) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.docs) == 0 {
		return nil, nil
	}
	doc := m.docs[0]
	return &doc, nil
}

func (m *MemoryStore) Count(ctx context.Context, upperBound int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.docs)
	if upperBound > 0 && n > upperBound {
		n = upperBound
	}
	return n, nil
}

func (m *MemoryStore) Drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = nil
	m.created = false
	return nil
}

func (m *MemoryStore) Close() {}
