package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
	"github.com/xhad/craftsman/pkg/store"
)

func newMemory() *store.MemoryStore {
	return store.NewMemory(store.VectorStoreConfig{Collection: "test_docs", Dimension: 3})
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	require.NoError(t, s.EnsureCollection(ctx))

	docs := []models.Document{
		{Text: "carpenter in Cairo", Title: "Ali - نجار", SourceID: "1", Embedding: []float32{0.1, 0.9, 0.2}},
		{Text: "plumber in Giza", Title: "Omar - سباك", SourceID: "2", Embedding: []float32{0.8, 0.1, 0.3}},
		{Text: "electrician in Alexandria", Title: "Sara - كهربائي", SourceID: "3", Embedding: []float32{0.3, 0.3, 0.9}},
	}
	n, err := s.InsertMany(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, want := range docs {
		results, err := s.Find(ctx, types.FindOptions{Vector: want.Embedding, Limit: 3, IncludeSimilarity: true})
		require.NoError(t, err)
		require.NotEmpty(t, results)

		assert.Equal(t, want.SourceID, results[0].SourceID)
		assert.InDelta(t, 1.0, results[0].SimilarityOrZero(), 1e-6)
	}
}

func TestMemoryStoreRejectsWrongDimension(t *testing.T) {
	s := newMemory()

	_, err := s.Insert(context.Background(), models.Document{Text: "x", Embedding: []float32{1, 2}})
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)

	_, err = s.Find(context.Background(), types.FindOptions{Vector: []float32{1}})
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
}

func TestMemoryStoreRejectsEmptyText(t *testing.T) {
	_, err := newMemory().Insert(context.Background(), models.Document{Text: "  ", Embedding: []float32{1, 2, 3}})
	assert.ErrorIs(t, err, store.ErrEmptyText)
}

func TestMemoryStoreInsertManyIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newMemory()

	_, err := s.InsertMany(ctx, []models.Document{
		{Text: "ok", Embedding: []float32{1, 2, 3}},
		{Text: "bad", Embedding: []float32{1}},
	})
	require.Error(t, err)

	count, err := s.Count(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStoreBrowseAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, models.Document{Text: "doc", Embedding: []float32{1, 0, 0}})
		require.NoError(t, err)
	}

	results, err := s.Find(ctx, types.FindOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.False(t, results[0].HasSimilarity())

	count, err := s.Count(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	one, err := s.FindOne(ctx)
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.NotEmpty(t, one.ID)
}

func TestMemoryStoreDrop(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	_, err := s.Insert(ctx, models.Document{Text: "doc", Embedding: []float32{1, 0, 0}})
	require.NoError(t, err)

	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"test_docs"}, names)

	require.NoError(t, s.Drop(ctx))

	one, err := s.FindOne(ctx)
	require.NoError(t, err)
	assert.Nil(t, one)

	names, err = s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}
