package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSentenceService(t *testing.T, calls *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls = append(*calls, r.URL.Path)

		var req sentenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Xenova/all-MiniLM-L6-v2", req.Model)
		assert.True(t, req.Normalize)

		switch r.URL.Path {
		case "/embed":
			json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{float32(len(req.Text)), 0, 1}})
		case "/embed-batch":
			vectors := make([][]float32, len(req.Texts))
			for i, text := range req.Texts {
				vectors[i] = []float32{float32(len(text)), float32(i), 1}
			}
			json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestSentenceEmbedder(t *testing.T) {
	var calls []string
	srv := fakeSentenceService(t, &calls)
	defer srv.Close()

	emb, err := NewEmbedderWithConfig(context.Background(), EmbedderConfig{BaseURL: srv.URL, Normalize: true})
	require.NoError(t, err)
	assert.Equal(t, "sentence", emb.Config.Provider)
	assert.Equal(t, 32, emb.Config.BatchSize)

	vec, err := emb.EmbedQuery(context.Background(), "نجار")
	require.NoError(t, err)
	assert.Len(t, vec, 3)

	vectors, err := emb.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(3), vectors[2][0])

	assert.Equal(t, []string{"/embed", "/embed-batch"}, calls)
}

func TestSentenceClientRejectsEmptyText(t *testing.T) {
	var calls []string
	srv := fakeSentenceService(t, &calls)
	defer srv.Close()

	client, err := NewSentenceClient(EmbedderConfig{BaseURL: srv.URL, Model: "Xenova/all-MiniLM-L6-v2"})
	require.NoError(t, err)

	_, err = client.CreateEmbedding(context.Background(), []string{"  "})
	assert.ErrorIs(t, err, ErrEmptyText)
	_, err = client.CreateEmbedding(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Empty(t, calls)
}

func TestSentenceClientServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewSentenceClient(EmbedderConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.CreateEmbedding(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestNewEmbedderWithConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  EmbedderConfig
		wantErr bool
	}{
		{name: "sentence without url", config: EmbedderConfig{}, wantErr: true},
		{name: "openai without key", config: EmbedderConfig{Provider: "openai"}, wantErr: true},
		{name: "unknown provider", config: EmbedderConfig{Provider: "bogus"}, wantErr: true},
		{name: "ollama", config: EmbedderConfig{Provider: "ollama", BaseURL: "http://localhost:11434"}},
		{name: "openai", config: EmbedderConfig{Provider: "OpenAI", APIKey: "sk-test"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := NewEmbedderWithConfig(context.Background(), tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, emb.Config.Model)
		})
	}
}
