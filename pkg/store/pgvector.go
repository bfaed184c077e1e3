package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorStore maps a collection onto a PostgreSQL table with a pgvector column.
type PGVectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewPGVector(ctx context.Context, config VectorStoreConfig) (*PGVectorStore, error) {
	config.applyDefaults()

	if !identifierPattern.MatchString(config.Collection) {
		return nil, fmt.Errorf("invalid table name %q", config.Collection)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &PGVectorStore{
		config: config,
		pool:   pool,
	}, nil
}

func (vs *PGVectorStore) operator() (op string, opclass string) {
	switch vs.config.Metric {
	case MetricDotProduct:
		return "<#>", "vector_ip_ops"
	case MetricEuclidean:
		return "<->", "vector_l2_ops"
	default:
		return "<=>", "vector_cosine_ops"
	}
}

// similarity converts a pgvector distance into a higher-is-better score.
func (vs *PGVectorStore) similarity(distance float64) float64 {
	switch vs.config.Metric {
	case MetricDotProduct:
		return -distance
	case MetricEuclidean:
		return 1 / (1 + distance)
	default:
		return 1 - distance
	}
}

func (vs *PGVectorStore) EnsureCollection(ctx context.Context) error {
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			title TEXT,
			source_id TEXT,
			metadata JSONB,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.Collection, vs.config.Dimension)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, opclass := vs.operator()
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding %s)
		WITH (lists = 100)`,
		vs.config.Collection, vs.config.Collection, opclass)

	if _, err = vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (vs *PGVectorStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := vs.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema()
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan table names: %w", err)
	}
	return names, nil
}

func (vs *PGVectorStore) insertStatement() string {
	return fmt.Sprintf(`
		INSERT INTO %s (id, text, title, source_id, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			title = EXCLUDED.title,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.Collection)
}

func insertArgs(doc models.Document) []any {
	id := doc.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return []any{
		id,
		sanitizeUTF8(doc.Text),
		sanitizeUTF8(doc.Title),
		doc.SourceID,
		doc.Metadata,
		pgvector.NewVector(doc.Embedding),
		createdAt,
	}
}

func (vs *PGVectorStore) Insert(ctx context.Context, doc models.Document) (string, error) {
	if err := checkDocument(doc, vs.config.Dimension); err != nil {
		return "", err
	}

	args := insertArgs(doc)
	if _, err := vs.pool.Exec(ctx, vs.insertStatement(), args...); err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return args[0].(string), nil
}

func (vs *PGVectorStore) InsertMany(ctx context.Context, docs []models.Document) (int, error) {
	for _, doc := range docs {
		if err := checkDocument(doc, vs.config.Dimension); err != nil {
			return 0, err
		}
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := vs.insertStatement()
	for _, doc := range docs {
		if _, err := tx.Exec(ctx, stmt, insertArgs(doc)...); err != nil {
			return 0, fmt.Errorf("failed to insert document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(docs), nil
}

func (vs *PGVectorStore) Find(ctx context.Context, opts types.FindOptions) ([]models.Document, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	if len(opts.Vector) == 0 {
		query := fmt.Sprintf(`
			SELECT id, text, COALESCE(title, ''), COALESCE(source_id, ''), metadata, created_at
			FROM %s
			LIMIT $1`, vs.config.Collection)
		return vs.collect(ctx, false, query, limit)
	}

	if len(opts.Vector) != vs.config.Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(opts.Vector), vs.config.Dimension)
	}

	op, _ := vs.operator()
	query := fmt.Sprintf(`
		SELECT id, text, COALESCE(title, ''), COALESCE(source_id, ''), metadata, created_at,
			embedding %s $2 AS distance
		FROM %s
		ORDER BY embedding %s $2
		LIMIT $1`,
		op, vs.config.Collection, op)

	docs, err := vs.collect(ctx, true, query, limit, pgvector.NewVector(opts.Vector))
	if err != nil {
		return nil, err
	}
	if !opts.IncludeSimilarity {
		for i := range docs {
			docs[i].Similarity = nil
		}
	}
	return docs, nil
}

func (vs *PGVectorStore) collect(ctx context.Context, withDistance bool, query string, args ...any) ([]models.Document, error) {
	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		dest := []any{&doc.ID, &doc.Text, &doc.Title, &doc.SourceID, &doc.Metadata, &doc.CreatedAt}
		var distance float64
		if withDistance {
			dest = append(dest, &distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if withDistance {
			doc = doc.WithSimilarity(vs.similarity(distance))
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return docs, nil
}

func (vs *PGVectorStore) FindOne(ctx context.Context) (*models.Document, error) {
	docs, err := vs.Find(ctx, types.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return &docs[0], nil
}

func (vs *PGVectorStore) Count(ctx context.Context, upperBound int) (int, error) {
	if upperBound <= 0 {
		upperBound = 1000
	}
	query := fmt.Sprintf(`SELECT count(*) FROM (SELECT 1 FROM %s LIMIT $1) AS bounded`, vs.config.Collection)

	var n int
	if err := vs.pool.QueryRow(ctx, query, upperBound).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (vs *PGVectorStore) Drop(ctx context.Context) error {
	if _, err := vs.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", vs.config.Collection)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return nil
}

func (vs *PGVectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
