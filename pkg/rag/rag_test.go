package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
	"github.com/xhad/craftsman/pkg/llm"
	"github.com/xhad/craftsman/pkg/store"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

type brokenStore struct {
	*store.MemoryStore
}

func (brokenStore) FindOne(ctx context.Context) (*models.Document, error) {
	return nil, errors.New("connection refused")
}

type recordingGenerator struct {
	got types.GenerateRequest
}

func (g *recordingGenerator) Stream(ctx context.Context, req types.GenerateRequest, fn func(string) error) error {
	g.got = req
	return fn("ok")
}

func newTestService(t *testing.T, emb *fakeEmbedder, docs ...models.Document) (*Service, *recordingGenerator) {
	t.Helper()
	mem := store.NewMemory(store.VectorStoreConfig{Collection: "craftsmen", Dimension: 3})
	if len(docs) > 0 {
		_, err := mem.InsertMany(context.Background(), docs)
		require.NoError(t, err)
	}
	gen := &recordingGenerator{}
	svc := NewWithConfig(Config{Debug: true}, emb, mem, llm.NewWithGenerator(llm.ChatConfig{}, gen))
	return svc, gen
}

func TestRetrieveEmptyStore(t *testing.T) {
	svc, gen := newTestService(t, &fakeEmbedder{vector: []float32{1, 0, 0}})

	r := svc.Retrieve(context.Background(), "نجار في القاهرة")
	assert.Equal(t, NoDocumentsContext, r.Context)
	assert.False(t, r.Found())
	assert.NoError(t, r.Err)

	stream, _, err := svc.Answer(context.Background(), []models.ChatMessage{{Role: models.RoleUser, Content: "hello"}})
	require.NoError(t, err)
	var out strings.Builder
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		out.WriteString(chunk.Text)
	}
	assert.Equal(t, "ok", out.String())
	require.Len(t, gen.got.System, 2)
	assert.Contains(t, gen.got.System[0], NoDocumentsContext)
	assert.Equal(t, "[DEBUG: No relevant documents found in the database]", gen.got.System[1])
	assert.NotEmpty(t, gen.got.Messages[0].ID)
}

func TestRetrieveFiltersBySimilarity(t *testing.T) {
	docs := []models.Document{
		{Text: "exact match", Title: "Ali - نجار", Embedding: []float32{1, 0, 0}},
		{Text: "partial", Embedding: []float32{0.6, 0.8, 0}},
		{Text: "unrelated", Title: "Omar - سباك", Embedding: []float32{0, 0, 1}},
	}
	svc, _ := newTestService(t, &fakeEmbedder{vector: []float32{1, 0, 0}}, docs...)

	r := svc.Retrieve(context.Background(), "carpenter")
	require.NoError(t, r.Err)
	require.Len(t, r.Documents, 2)
	assert.Equal(t, "exact match", r.Documents[0].Text)

	assert.Contains(t, r.Context, "--- DOCUMENT 1: Ali - نجار (Relevance: 1.00) ---\nexact match\n--- END DOCUMENT 1 ---")
	assert.Contains(t, r.Context, "--- DOCUMENT 2: partial... (Relevance: 0.60) ---")
	assert.NotContains(t, r.Context, "unrelated")
	assert.Equal(t, "[DEBUG: Found 2 relevant documents]", debugLine(r))
}

func TestRetrieveNothingRelevant(t *testing.T) {
	svc, _ := newTestService(t, &fakeEmbedder{vector: []float32{1, 0, 0}},
		models.Document{Text: "orthogonal", Embedding: []float32{0, 1, 0}})

	r := svc.Retrieve(context.Background(), "anything")
	assert.Equal(t, NoRelevantContext, r.Context)
	assert.False(t, r.Found())
}

func TestRetrieveBrowseKeyword(t *testing.T) {
	var docs []models.Document
	for i := 0; i < 12; i++ {
		docs = append(docs, models.Document{Text: "doc", Embedding: []float32{0, 1, 0}})
	}
	svc, _ := newTestService(t, &fakeEmbedder{vector: []float32{1, 0, 0}}, docs...)

	r := svc.Retrieve(context.Background(), "  TaskRabbit ")
	require.Len(t, r.Documents, 10)
	assert.Contains(t, r.Context, relevanceUnavailableTag)
}

func TestRetrieveTruncatesContext(t *testing.T) {
	long := strings.Repeat("x", 200)
	svc, _ := newTestService(t, &fakeEmbedder{vector: []float32{1, 0, 0}},
		models.Document{Text: long, Embedding: []float32{1, 0, 0}})
	svc.config.MaxContextLength = 50

	r := svc.Retrieve(context.Background(), "x")
	assert.True(t, strings.HasSuffix(r.Context, "\n[Context truncated due to length]"))
	assert.Len(t, []rune(r.Context), 50+len([]rune(truncatedContextSuffix)))
}

func TestRetrieveFallsBackOnErrors(t *testing.T) {
	svc, _ := newTestService(t, &fakeEmbedder{err: errors.New("embedding service down")})
	r := svc.Retrieve(context.Background(), "hi")
	assert.Equal(t, RetrievalErrorContext, r.Context)
	assert.Error(t, r.Err)

	mem := store.NewMemory(store.VectorStoreConfig{Dimension: 3})
	svc = NewWithConfig(Config{}, &fakeEmbedder{vector: []float32{1, 0, 0}}, brokenStore{mem}, llm.NewWithGenerator(llm.ChatConfig{}, &recordingGenerator{}))
	r = svc.Retrieve(context.Background(), "hi")
	assert.Equal(t, RetrievalErrorContext, r.Context)
	assert.Error(t, r.Err)
}

func TestSystemPrompt(t *testing.T) {
	svc, _ := newTestService(t, &fakeEmbedder{})
	prompt := svc.SystemPrompt("CTX")
	assert.Contains(t, prompt, "### RETRIEVED CONTEXT ###\nCTX\n### END CONTEXT ###")
	assert.Contains(t, prompt, "8. If the context is partially relevant")
}

func TestDocumentTitleFallback(t *testing.T) {
	doc := models.Document{Text: strings.Repeat("ب", 60) + "\nsecond line"}
	assert.Equal(t, strings.Repeat("ب", 50)+"...", documentTitle(doc))
}

func TestTemperaturePerRoute(t *testing.T) {
	svc, gen := newTestService(t, &fakeEmbedder{vector: []float32{1, 0, 0}})
	msgs := []models.ChatMessage{{Role: models.RoleUser, Content: "hello"}}

	drain := func(stream <-chan llm.StreamChunk) {
		for range stream {
		}
	}

	stream, _, err := svc.Answer(context.Background(), msgs)
	require.NoError(t, err)
	drain(stream)
	assert.Equal(t, 0.2, gen.got.Temperature)

	stream, err = svc.Sample(context.Background(), msgs)
	require.NoError(t, err)
	drain(stream)
	assert.Equal(t, 0.7, gen.got.Temperature)
	assert.Equal(t, []string{samplePrompt}, gen.got.System)

	svc = NewWithConfig(Config{SampleTemperature: llm.Float(0)}, &fakeEmbedder{vector: []float32{1, 0, 0}},
		store.NewMemory(store.VectorStoreConfig{Dimension: 3}), llm.NewWithGenerator(llm.ChatConfig{}, gen))
	stream, err = svc.Sample(context.Background(), msgs)
	require.NoError(t, err)
	drain(stream)
	assert.Equal(t, 0.0, gen.got.Temperature)
}
