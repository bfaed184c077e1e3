package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
	"github.com/xhad/craftsman/pkg/llm"
	"github.com/xhad/craftsman/pkg/loader"
	"github.com/xhad/craftsman/pkg/rag"
	"github.com/xhad/craftsman/pkg/store"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return []float32{1, 0, 0}, nil
}

type scriptedGenerator struct {
	mu     sync.Mutex
	chunks []string
	err    error
	calls  int
	last   types.GenerateRequest
}

func (g *scriptedGenerator) Stream(ctx context.Context, req types.GenerateRequest, fn func(string) error) error {
	g.mu.Lock()
	g.calls++
	g.last = req
	g.mu.Unlock()
	for _, c := range g.chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return g.err
}

type testEnv struct {
	srv      *Server
	embedder *countingEmbedder
	gen      *scriptedGenerator
	mem      *store.MemoryStore
}

func newTestEnv(t *testing.T, gen *scriptedGenerator, docs ...models.Document) *testEnv {
	t.Helper()
	mem := store.NewMemory(store.VectorStoreConfig{Collection: "craftsmen", Dimension: 3})
	if len(docs) > 0 {
		_, err := mem.InsertMany(context.Background(), docs)
		require.NoError(t, err)
	}
	emb := &countingEmbedder{}
	svc := rag.NewWithConfig(rag.Config{Debug: true}, emb, mem, llm.NewWithGenerator(llm.ChatConfig{}, gen))
	ld := loader.NewWithConfig(loader.LoaderConfig{}, emb, mem, nil)

	srv := New(Config{Streaming: true, EmbeddingModel: "Xenova/all-MiniLM-L6-v2"}, svc, emb, ld)
	return &testEnv{srv: srv, embedder: emb, gen: gen, mem: mem}
}

func (e *testEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func streamLines(body string) []string {
	return strings.Split(strings.TrimRight(body, "\n"), "\n")
}

func TestChatRejectsInvalidMessages(t *testing.T) {
	bodies := map[string]string{
		"malformed json":     `{"messages": [`,
		"missing messages":   `{}`,
		"messages not array": `{"messages": "hi"}`,
		"empty messages":     `{"messages": []}`,
		"null messages":      `{"messages": null}`,
		"numeric content":    `{"messages": [{"role": "user", "content": 42}]}`,
		"missing content":    `{"messages": [{"role": "user"}]}`,
		"null content":       `{"messages": [{"role": "user", "content": null}]}`,
		"blank content":      `{"messages": [{"role": "user", "content": "   "}]}`,
		"array content":      `{"messages": [{"role": "user", "content": ["a"]}]}`,
		"valid then invalid": `{"messages": [{"role": "user", "content": "hi"}, {"role": "user", "content": {}}]}`,
		"unknown final role": `{"messages": [{"role": "robot", "content": "hi"}]}`,
		"system final role":  `{"messages": [{"role": "user", "content": "hi"}, {"role": "system", "content": "be terse"}]}`,
		"assistant final":    `{"messages": [{"role": "user", "content": "hi"}, {"role": "assistant", "content": "hello"}]}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, &scriptedGenerator{chunks: []string{"x"}})

			rec := env.post(t, "/api/chat", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"Invalid message format"}`, rec.Body.String())

			assert.Zero(t, env.embedder.calls)
			assert.Zero(t, env.gen.calls)
		})
	}
}

func TestChatStreamsAnswer(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"Ahmed is ", "a \"carpenter\"."}}
	env := newTestEnv(t, gen, models.Document{
		Text: "اسم الحرفي: أحمد\nالمهنة: نجار", Title: "أحمد - نجار", SourceID: "1", Embedding: []float32{1, 0, 0},
	})

	rec := env.post(t, "/api/chat", `{"messages":[
		{"role":"user","content":42},
		{"role":"assistant","content":"earlier answer"},
		{"role":"user","content":"Who is a carpenter?"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", rec.Header().Get("X-Vercel-AI-Data-Stream"))

	lines := streamLines(rec.Body.String())
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], `f:{"messageId":"msg-`))
	assert.Equal(t, `0:"Ahmed is "`, lines[1])
	assert.Equal(t, `0:"a \"carpenter\"."`, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], `e:{"finishReason":"stop"`))
	assert.True(t, strings.HasPrefix(lines[4], `d:{"finishReason":"stop"`))

	require.Len(t, gen.last.System, 2)
	assert.Contains(t, gen.last.System[0], "--- DOCUMENT 1: أحمد - نجار (Relevance: 1.00) ---")
	assert.Equal(t, "[DEBUG: Found 1 relevant documents]", gen.last.System[1])
	require.Len(t, gen.last.Messages, 2)
	assert.Equal(t, models.RoleAssistant, gen.last.Messages[0].Role)
	assert.NotEmpty(t, gen.last.Messages[1].ID)
}

func TestChatEmptyStoreStillAnswers(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"I don't have specific information about that in my retrieved context."}}
	env := newTestEnv(t, gen)

	rec := env.post(t, "/api/chat", `{"messages":[{"role":"user","content":"plumber?"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `0:"I don't have specific information`)
	assert.Contains(t, gen.last.System[0], rag.NoDocumentsContext)
}

func TestChatGenerationFailure(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{err: errors.New("API key not valid")})

	rec := env.post(t, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
	assert.Contains(t, body["details"], "API key not valid")
}

func TestChatMidStreamFailure(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{chunks: []string{"partial"}, err: errors.New("quota")})

	rec := env.post(t, "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := streamLines(rec.Body.String())
	assert.Contains(t, lines, `0:"partial"`)
	assert.Contains(t, lines, `3:"chat error: quota"`)
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], `d:{"finishReason":"error"`))
}

func TestSample(t *testing.T) {
	gen := &scriptedGenerator{chunks: []string{"hello"}}
	env := newTestEnv(t, gen)

	rec := env.post(t, "/api/sample", `{"messages":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Messages must be an array"}`, rec.Body.String())

	rec = env.post(t, "/api/sample", `{"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `0:"hello"`)
	assert.Zero(t, env.embedder.calls)
	assert.Equal(t, []string{"You are a helpful assistant that answers questions."}, gen.last.System)
}

func TestEmbed(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{})

	rec := env.post(t, "/api/embed", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post(t, "/api/embed", `{"text":"نجار"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"text":"نجار","embedding":[1,0,0],"dimensions":3,"model":"Xenova/all-MiniLM-L6-v2"}`, rec.Body.String())
}

func TestExtract(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{})

	rec := env.post(t, "/api/extract", `{"text":"no blocks"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"craftsmen":[]}`, rec.Body.String())

	text := "--- المستند 1 ---\nاسم الحرفي: أحمد\nالمهنة: نجار\nالحالة: مشغول\nsourceId: 5\n--- نهاية المستند 1 ---"
	payload, _ := json.Marshal(map[string]string{"text": text})
	rec = env.post(t, "/api/extract", string(payload))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"craftsmen":[{"id":"5","name":"أحمد","craft":"نجار","status":"busy"}]}`, rec.Body.String())
}

func TestLoadWithoutSource(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{})

	rec := env.post(t, "/api/load", ``)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)

	env.srv.loader = nil
	rec = env.post(t, "/api/load", ``)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndIndex(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{})
	h := env.srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Craftsman Assistant")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebSocketChat(t *testing.T) {
	env := newTestEnv(t, &scriptedGenerator{chunks: []string{"one ", "two"}})
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "chat", Content: "who can fix a door?"}))

	var streamed []string
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "done" {
			break
		}
		if msg.Type == "stream" {
			streamed = append(streamed, msg.Content)
		}
		assert.NotEqual(t, "error", msg.Type, msg.Content)
	}
	assert.Equal(t, []string{"one ", "two"}, streamed)
}

func TestWebSocketIndexesURL(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><head><title>Site</title></head><body><main>"+
			strings.Repeat("Skilled electricians available across Giza and Cairo. ", 10)+
			"</main></body></html>")
	}))
	defer site.Close()

	env := newTestEnv(t, &scriptedGenerator{chunks: []string{"unused"}})
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Message{Type: "chat", Content: site.URL + "/"}))

	var kinds []string
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		kinds = append(kinds, msg.Type)
		if msg.Type == "done" {
			break
		}
	}
	assert.Contains(t, kinds, "progress")
	assert.NotContains(t, kinds, "stream")
	assert.Zero(t, env.gen.calls)

	n, err := env.mem.Count(context.Background(), 0)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}
