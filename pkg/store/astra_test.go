package store_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
	"github.com/xhad/craftsman/pkg/store"
)

type fakeAstra struct {
	mu          sync.Mutex
	collections []string
	commands    []map[string]any
	documents   []map[string]any
	paths       []string
}

func (f *fakeAstra) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Token") != "AstraCS:test" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var cmd map[string]any
	_ = json.NewDecoder(r.Body).Decode(&cmd)
	f.commands = append(f.commands, cmd)
	f.paths = append(f.paths, r.URL.Path)

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)

	switch {
	case cmd["findCollections"] != nil:
		enc.Encode(map[string]any{"status": map[string]any{"collections": f.collections}})
	case cmd["createCollection"] != nil:
		name := cmd["createCollection"].(map[string]any)["name"].(string)
		f.collections = append(f.collections, name)
		enc.Encode(map[string]any{"status": map[string]any{"ok": 1}})
	case cmd["insertOne"] != nil:
		doc := cmd["insertOne"].(map[string]any)["document"].(map[string]any)
		f.documents = append(f.documents, doc)
		enc.Encode(map[string]any{"status": map[string]any{"insertedIds": []string{"id-1"}}})
	case cmd["find"] != nil:
		docs := []map[string]any{
			{"_id": "a", "text": "اسم الحرفي: علي", "title": "علي - نجار", "sourceId": "7", "$similarity": 0.91},
			{"_id": "b", "text": "no score", "$vector": []float64{1, 0, 0}},
		}
		enc.Encode(map[string]any{"data": map[string]any{"documents": docs}})
	case cmd["countDocuments"] != nil:
		enc.Encode(map[string]any{"status": map[string]any{"count": 42}})
	case cmd["findOne"] != nil:
		enc.Encode(map[string]any{"data": map[string]any{"document": nil}})
	case cmd["deleteCollection"] != nil:
		enc.Encode(map[string]any{"errors": []map[string]any{{"message": "no such collection", "errorCode": "COLLECTION_NOT_EXIST"}}})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newAstra(t *testing.T, fake *fakeAstra) *store.AstraStore {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	s, err := store.NewAstra(store.VectorStoreConfig{
		Endpoint:   server.URL,
		Token:      "AstraCS:test",
		Namespace:  "craftsmen",
		Collection: "craftsmen_docs",
		Dimension:  3,
	})
	require.NoError(t, err)
	return s
}

func TestAstraRequiresCredentials(t *testing.T) {
	_, err := store.NewAstra(store.VectorStoreConfig{Endpoint: "https://db.example.com"})
	assert.Error(t, err)
}

func TestAstraEnsureCollectionCreatesOnce(t *testing.T) {
	fake := &fakeAstra{}
	s := newAstra(t, fake)
	ctx := context.Background()

	require.NoError(t, s.EnsureCollection(ctx))
	require.NoError(t, s.EnsureCollection(ctx))

	assert.Equal(t, []string{"craftsmen_docs"}, fake.collections)

	create := fake.commands[1]["createCollection"].(map[string]any)
	vector := create["options"].(map[string]any)["vector"].(map[string]any)
	assert.Equal(t, float64(3), vector["dimension"])
	assert.Equal(t, "cosine", vector["metric"])
	assert.Equal(t, "/api/json/v1/craftsmen", fake.paths[1])
}

func TestAstraInsertSendsVectorField(t *testing.T) {
	fake := &fakeAstra{}
	s := newAstra(t, fake)

	id, err := s.Insert(context.Background(), models.Document{
		Text:     "اسم الحرفي: علي",
		Title:    "علي - نجار",
		SourceID: "7",
		Metadata: map[string]interface{}{"craft": "نجار"},
		Embedding: []float32{
			0.1, 0.2, 0.3,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)

	require.Len(t, fake.documents, 1)
	doc := fake.documents[0]
	assert.Equal(t, "اسم الحرفي: علي", doc["text"])
	assert.Equal(t, "7", doc["sourceId"])
	assert.Len(t, doc["$vector"], 3)
	assert.Equal(t, "/api/json/v1/craftsmen/craftsmen_docs", fake.paths[0])
}

func TestAstraInsertChecksDimension(t *testing.T) {
	fake := &fakeAstra{}
	s := newAstra(t, fake)

	_, err := s.Insert(context.Background(), models.Document{Text: "x", Embedding: []float32{1}})
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
	assert.Empty(t, fake.commands)
}

func TestAstraFindParsesSimilarityAndVectors(t *testing.T) {
	fake := &fakeAstra{}
	s := newAstra(t, fake)

	docs, err := s.Find(context.Background(), types.FindOptions{
		Vector:            []float32{1, 0, 0},
		Limit:             15,
		IncludeSimilarity: true,
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "علي - نجار", docs[0].Title)
	assert.InDelta(t, 0.91, docs[0].SimilarityOrZero(), 1e-9)
	assert.False(t, docs[1].HasSimilarity())
	assert.Equal(t, []float32{1, 0, 0}, docs[1].Embedding)

	find := fake.commands[0]["find"].(map[string]any)
	options := find["options"].(map[string]any)
	assert.Equal(t, float64(15), options["limit"])
	assert.Equal(t, true, options["includeSimilarity"])
	assert.Contains(t, find["sort"], "$vector")
}

func TestAstraCountFindOneAndDrop(t *testing.T) {
	fake := &fakeAstra{}
	s := newAstra(t, fake)
	ctx := context.Background()

	n, err := s.Count(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = s.Count(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	doc, err := s.FindOne(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc)

	err = s.Drop(ctx)
	assert.ErrorIs(t, err, store.ErrCollectionNotFound)
}
