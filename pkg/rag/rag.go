package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
	"github.com/xhad/craftsman/pkg/llm"
	"github.com/xhad/craftsman/pkg/store"
)

const (
	NoDocumentsContext      = "No documents found in the knowledge base."
	NoRelevantContext       = "No sufficiently relevant information found in the knowledge base for this query."
	RetrievalErrorContext   = "Error retrieving context information."
	truncatedContextSuffix  = "\n[Context truncated due to length]"
	relevanceUnavailableTag = "(Relevance score unavailable)"
)

const defaultSystemTemplate = `
You are a knowledgeable assistant specializing in craftsman and home-service information. Your task is to provide helpful responses to user questions based on the retrieved context.

### RETRIEVED CONTEXT ###
%s
### END CONTEXT ###

IMPORTANT INSTRUCTIONS:
1. Base your answers ONLY on the retrieved context above.
2. If the context clearly doesn't contain relevant information, respond with: "I don't have specific information about that in my retrieved context."
3. Use direct quotes from the context when appropriate to support your answers.
4. Use markdown for formatting.
5. Be precise and factual.
6. Only reference information that appears in the context.
7. Never make up information or claim knowledge beyond what's provided in the context.
8. If the context is partially relevant but doesn't fully answer the query, clarify which parts of the question you can address based on the available information.

If you're unsure whether the context provides sufficient information, err on the side of caution and acknowledge the limitations of your knowledge.
`

const samplePrompt = "You are a helpful assistant that answers questions."

// Config represents the retrieval settings of the query handler.
type Config struct {
	MinSimilarity     float64
	VectorLimit       int
	BrowseLimit       int
	BrowseKeywords    []string
	MaxContextLength  int
	SystemTemplate    string   // must contain a single %s for the context
	SampleTemperature *float64 // plain chat without retrieval; nil means 0.7
	Debug             bool
	Logger            *slog.Logger
}

// ChatStreamer is the generation side of the handler; *llm.ChatEngine satisfies it.
type ChatStreamer interface {
	ChatStream(ctx context.Context, system []string, messages []models.ChatMessage, opts ...llm.CallOption) (<-chan llm.StreamChunk, error)
}

// Service answers chat requests with context retrieved from the vector store.
type Service struct {
	config   Config
	embedder types.Embedder
	store    types.VectorStore
	chat     ChatStreamer
	log      *slog.Logger
}

// Retrieval is the outcome of a context lookup.
type Retrieval struct {
	Context   string
	Documents []models.Document
	Err       error
}

// Found reports whether any relevant document made it into the context.
func (r Retrieval) Found() bool {
	return len(r.Documents) > 0
}

func (c *Config) applyDefaults() {
	if c.MinSimilarity == 0 {
		c.MinSimilarity = 0.2
	}
	if c.VectorLimit <= 0 {
		c.VectorLimit = 15
	}
	if c.BrowseLimit <= 0 {
		c.BrowseLimit = 10
	}
	if c.BrowseKeywords == nil {
		c.BrowseKeywords = []string{"taskrabbit"}
	}
	if c.MaxContextLength <= 0 {
		c.MaxContextLength = 30000
	}
	if c.SystemTemplate == "" {
		c.SystemTemplate = defaultSystemTemplate
	}
	if c.SampleTemperature == nil {
		c.SampleTemperature = llm.Float(0.7)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewWithConfig creates a Service from its collaborators.
func NewWithConfig(config Config, embedder types.Embedder, vs types.VectorStore, chat ChatStreamer) *Service {
	config.applyDefaults()
	return &Service{
		config:   config,
		embedder: embedder,
		store:    vs,
		chat:     chat,
		log:      config.Logger.With("component", "rag"),
	}
}

func (s *Service) isBrowseQuery(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, kw := range s.config.BrowseKeywords {
		if q == strings.ToLower(strings.TrimSpace(kw)) {
			return true
		}
	}
	return false
}

// Retrieve embeds the query and builds the context block for the prompt.
// Failures never propagate: they are reported through Retrieval.Err and a
// fallback context string.
func (s *Service) Retrieve(ctx context.Context, query string) Retrieval {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		s.log.Error("failed to embed query", "error", err)
		return Retrieval{Context: RetrievalErrorContext, Err: fmt.Errorf("failed to embed query: %w", err)}
	}
	s.log.Debug("embedded query", "dimensions", len(vector))

	first, err := s.store.FindOne(ctx)
	if err != nil {
		s.log.Error("failed to query vector store", "error", err)
		return Retrieval{Context: RetrievalErrorContext, Err: err}
	}
	if first == nil {
		s.log.Warn("no documents found in collection, check data loading")
		return Retrieval{Context: NoDocumentsContext}
	}

	var docs []models.Document
	if s.isBrowseQuery(query) {
		docs, err = s.store.Find(ctx, types.FindOptions{Limit: s.config.BrowseLimit})
	} else {
		docs, err = s.store.Find(ctx, types.FindOptions{
			Vector:            vector,
			Limit:             s.config.VectorLimit,
			IncludeSimilarity: true,
		})
		if err == nil {
			docs = store.ScoreMissing(vector, docs)
		}
	}
	if err != nil {
		s.log.Error("failed to query vector store", "error", err)
		return Retrieval{Context: RetrievalErrorContext, Err: err}
	}
	s.log.Info("found potential documents", "count", len(docs))

	relevant := docs
	if len(docs) > 0 && docs[0].HasSimilarity() {
		relevant = store.FilterBySimilarity(docs, s.config.MinSimilarity)
		s.log.Info("documents meet similarity threshold", "count", len(relevant), "threshold", s.config.MinSimilarity)
	}

	if len(relevant) == 0 {
		s.log.Warn("no documents meet the criteria for this query")
		return Retrieval{Context: NoRelevantContext}
	}

	return Retrieval{
		Context:   s.formatContext(relevant),
		Documents: relevant,
	}
}

func documentTitle(doc models.Document) string {
	if doc.Title != "" {
		return doc.Title
	}
	line, _, _ := strings.Cut(doc.Text, "\n")
	r := []rune(line)
	return string(r[:min(len(r), 50)]) + "..."
}

func (s *Service) formatContext(docs []models.Document) string {
	blocks := make([]string, 0, len(docs))
	for i, doc := range docs {
		relevance := relevanceUnavailableTag
		if doc.HasSimilarity() {
			relevance = fmt.Sprintf("(Relevance: %.2f)", *doc.Similarity)
		}
		blocks = append(blocks, fmt.Sprintf("--- DOCUMENT %d: %s %s ---\n%s\n--- END DOCUMENT %d ---",
			i+1, documentTitle(doc), relevance, doc.Text, i+1))
	}

	out := strings.Join(blocks, "\n\n")
	if r := []rune(out); len(r) > s.config.MaxContextLength {
		s.log.Info("context too large, truncating", "length", len(r))
		out = string(r[:s.config.MaxContextLength]) + truncatedContextSuffix
	}
	return out
}

// SystemPrompt renders the instructions block around the retrieved context.
func (s *Service) SystemPrompt(docContext string) string {
	return fmt.Sprintf(s.config.SystemTemplate, docContext)
}

func debugLine(r Retrieval) string {
	if !r.Found() {
		return "[DEBUG: No relevant documents found in the database]"
	}
	return fmt.Sprintf("[DEBUG: Found %d relevant documents]", strings.Count(r.Context, "--- DOCUMENT"))
}

// Answer retrieves context for the final message and streams the generated reply.
func (s *Service) Answer(ctx context.Context, messages []models.ChatMessage) (<-chan llm.StreamChunk, Retrieval, error) {
	if len(messages) == 0 {
		return nil, Retrieval{}, fmt.Errorf("no messages to answer")
	}

	query := messages[len(messages)-1].Content
	s.log.Info("processing query", "query", truncate(query, 50))

	retrieval := s.Retrieve(ctx, query)

	system := []string{s.SystemPrompt(retrieval.Context)}
	if s.config.Debug {
		system = append(system, debugLine(retrieval))
	}

	stream, err := s.chat.ChatStream(ctx, system, withIDs(messages))
	if err != nil {
		return nil, retrieval, fmt.Errorf("failed to start generation: %w", err)
	}
	return stream, retrieval, nil
}

// Sample streams a plain reply with no retrieval step, at the sample temperature.
func (s *Service) Sample(ctx context.Context, messages []models.ChatMessage) (<-chan llm.StreamChunk, error) {
	return s.chat.ChatStream(ctx, []string{samplePrompt}, withIDs(messages),
		llm.WithTemperature(*s.config.SampleTemperature))
}

func withIDs(messages []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, len(messages))
	for i, m := range messages {
		m.ID = uuid.NewString()
		out[i] = m
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
