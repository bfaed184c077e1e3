package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
)

// AstraStore talks to a hosted document/vector database through its JSON Data API.
type AstraStore struct {
	config VectorStoreConfig
	client *http.Client
}

func NewAstra(config VectorStoreConfig) (*AstraStore, error) {
	config.applyDefaults()

	if config.Endpoint == "" || config.Token == "" {
		return nil, fmt.Errorf("missing astra endpoint or application token")
	}

	return &AstraStore{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type astraError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

type astraResponse struct {
	Status struct {
		OK          int               `json:"ok"`
		Collections []json.RawMessage `json:"collections"`
		InsertedIDs []json.RawMessage `json:"insertedIds"`
		Count       int               `json:"count"`
	} `json:"status"`
	Data struct {
		Documents []map[string]any `json:"documents"`
		Document  map[string]any   `json:"document"`
	} `json:"data"`
	Errors []astraError `json:"errors"`
}

func (e astraError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("%s: %s", e.ErrorCode, e.Message)
	}
	return e.Message
}

func (s *AstraStore) keyspaceURL() string {
	return fmt.Sprintf("%s/api/json/v1/%s", strings.TrimRight(s.config.Endpoint, "/"), s.config.Namespace)
}

func (s *AstraStore) collectionURL() string {
	return s.keyspaceURL() + "/" + s.config.Collection
}

func (s *AstraStore) command(ctx context.Context, url string, body any) (*astraResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Token", s.config.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("astra request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read astra response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("astra returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var out astraResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode astra response: %w", err)
	}
	if len(out.Errors) > 0 {
		if out.Errors[0].ErrorCode == "COLLECTION_NOT_EXIST" {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, out.Errors[0].Message)
		}
		return nil, out.Errors[0]
	}
	return &out, nil
}

func (s *AstraStore) ListCollections(ctx context.Context) ([]string, error) {
	out, err := s.command(ctx, s.keyspaceURL(), map[string]any{"findCollections": map[string]any{}})
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	names := make([]string, 0, len(out.Status.Collections))
	for _, raw := range out.Status.Collections {
		var name string
		if err := json.Unmarshal(raw, &name); err == nil {
			names = append(names, name)
			continue
		}
		var described struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &described); err == nil && described.Name != "" {
			names = append(names, described.Name)
		}
	}
	return names, nil
}

// EnsureCollection creates the collection with the configured dimension and
// metric unless it already exists.
func (s *AstraStore) EnsureCollection(ctx context.Context) error {
	names, err := s.ListCollections(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == s.config.Collection {
			return nil
		}
	}

	s.config.Logger.Info("creating collection", "collection", s.config.Collection, "dimension", s.config.Dimension, "metric", s.config.Metric)
	_, err = s.command(ctx, s.keyspaceURL(), map[string]any{
		"createCollection": map[string]any{
			"name": s.config.Collection,
			"options": map[string]any{
				"vector": map[string]any{
					"dimension": s.config.Dimension,
					"metric":    s.config.Metric,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func toAstraDocument(doc models.Document) map[string]any {
	out := map[string]any{
		"text":    doc.Text,
		"$vector": doc.Embedding,
	}
	if doc.ID != "" {
		out["_id"] = doc.ID
	}
	if doc.Title != "" {
		out["title"] = doc.Title
	}
	if doc.SourceID != "" {
		out["sourceId"] = doc.SourceID
	}
	if len(doc.Metadata) > 0 {
		out["metadata"] = doc.Metadata
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	out["createdAt"] = map[string]any{"$date": createdAt.UnixMilli()}
	return out
}

func fromAstraDocument(raw map[string]any) models.Document {
	var doc models.Document

	switch id := raw["_id"].(type) {
	case string:
		doc.ID = id
	case nil:
	default:
		doc.ID = fmt.Sprint(id)
	}
	doc.Text, _ = raw["text"].(string)
	doc.Title, _ = raw["title"].(string)
	doc.SourceID, _ = raw["sourceId"].(string)
	doc.Metadata, _ = raw["metadata"].(map[string]any)

	if vec := toFloat32s(raw["$vector"]); len(vec) > 0 {
		doc.Embedding = vec
	} else {
		doc.Embedding = toFloat32s(raw["embedding"])
	}
	if score, ok := raw["$similarity"].(float64); ok {
		doc = doc.WithSimilarity(score)
	}
	if created, ok := raw["createdAt"].(map[string]any); ok {
		if ms, ok := created["$date"].(float64); ok {
			doc.CreatedAt = time.UnixMilli(int64(ms))
		}
	}
	return doc
}

func toFloat32s(v any) []float32 {
	values, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(values))
	for _, value := range values {
		f, ok := value.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}

func insertedID(ids []json.RawMessage) string {
	if len(ids) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(ids[0], &id); err == nil {
		return id
	}
	return strings.Trim(string(ids[0]), `"`)
}

func (s *AstraStore) Insert(ctx context.Context, doc models.Document) (string, error) {
	if err := checkDocument(doc, s.config.Dimension); err != nil {
		return "", err
	}

	out, err := s.command(ctx, s.collectionURL(), map[string]any{
		"insertOne": map[string]any{"document": toAstraDocument(doc)},
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert vector: %w", err)
	}
	return insertedID(out.Status.InsertedIDs), nil
}

// InsertMany sends documents in chunks of BatchSize; the Data API caps the
// number of documents per insertMany command.
func (s *AstraStore) InsertMany(ctx context.Context, docs []models.Document) (int, error) {
	for _, doc := range docs {
		if err := checkDocument(doc, s.config.Dimension); err != nil {
			return 0, err
		}
	}

	inserted := 0
	for start := 0; start < len(docs); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(docs))

		batch := make([]map[string]any, 0, end-start)
		for _, doc := range docs[start:end] {
			batch = append(batch, toAstraDocument(doc))
		}

		out, err := s.command(ctx, s.collectionURL(), map[string]any{
			"insertMany": map[string]any{
				"documents": batch,
				"options":   map[string]any{"ordered": false},
			},
		})
		if err != nil {
			return inserted, fmt.Errorf("failed to insert vectors: %w", err)
		}
		inserted += len(out.Status.InsertedIDs)
	}
	return inserted, nil
}

func (s *AstraStore) Find(ctx context.Context, opts types.FindOptions) ([]models.Document, error) {
	options := map[string]any{}
	if opts.Limit > 0 {
		options["limit"] = opts.Limit
	}

	find := map[string]any{
		"filter":     map[string]any{},
		"projection": map[string]any{"*": 1},
	}
	if len(opts.Vector) > 0 {
		if len(opts.Vector) != s.config.Dimension {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(opts.Vector), s.config.Dimension)
		}
		find["sort"] = map[string]any{"$vector": opts.Vector}
		if opts.IncludeSimilarity {
			options["includeSimilarity"] = true
		}
	}
	find["options"] = options

	out, err := s.command(ctx, s.collectionURL(), map[string]any{"find": find})
	if err != nil {
		return nil, fmt.Errorf("failed to perform vector search: %w", err)
	}

	docs := make([]models.Document, 0, len(out.Data.Documents))
	for _, raw := range out.Data.Documents {
		docs = append(docs, fromAstraDocument(raw))
	}
	return docs, nil
}

func (s *AstraStore) FindOne(ctx context.Context) (*models.Document, error) {
	out, err := s.command(ctx, s.collectionURL(), map[string]any{
		"findOne": map[string]any{"filter": map[string]any{}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	if out.Data.Document == nil {
		return nil, nil
	}
	doc := fromAstraDocument(out.Data.Document)
	return &doc, nil
}

func (s *AstraStore) Count(ctx context.Context, upperBound int) (int, error) {
	if upperBound <= 0 {
		upperBound = 1000
	}
	out, err := s.command(ctx, s.collectionURL(), map[string]any{
		"countDocuments": map[string]any{"filter": map[string]any{}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return min(out.Status.Count, upperBound), nil
}

func (s *AstraStore) Drop(ctx context.Context) error {
	_, err := s.command(ctx, s.keyspaceURL(), map[string]any{
		"deleteCollection": map[string]any{"name": s.config.Collection},
	})
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

func (s *AstraStore) Close() {
	s.client.CloseIdleConnections()
}
