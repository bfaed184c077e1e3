// Package loader populates the vector store, either from the craftsmen API
// or from a scraped website. Loading is sequential: records that fail to
// embed or insert are logged and skipped, never retried.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xhad/craftsman/internal/models"
	"github.com/xhad/craftsman/internal/types"
	"github.com/xhad/craftsman/pkg/craftsmen"
	"github.com/xhad/craftsman/pkg/processor"
	"github.com/xhad/craftsman/pkg/scraper"
)

// Source is the craftsmen API as seen by the loader.
type Source interface {
	FetchPage(ctx context.Context, craft string, page int) (*craftsmen.Page, error)
	Ping(ctx context.Context) (int, error)
}

// Event reports loader progress.
type Event struct {
	Stage  string // "page", "record", "url", "chunk"
	Craft  string
	Page   int
	Name   string
	Failed bool
}

type LoaderConfig struct {
	Crafts     []string
	Scraper    scraper.ScraperConfig
	Processor  processor.ProcessorConfig
	OnProgress func(Event)
	Logger     *slog.Logger
	Now        func() time.Time
}

type Loader struct {
	config    LoaderConfig
	embedder  types.Embedder
	store     types.VectorStore
	source    Source
	processor processor.Processor
	log       *slog.Logger
}

// Stats summarises one load run.
type Stats struct {
	Crafts   int `json:"crafts"`
	Pages    int `json:"pages"`
	Inserted int `json:"inserted"`
	Failed   int `json:"failed"`
}

// Inspection is a quick look at the collection contents.
type Inspection struct {
	Count  int
	Sample *models.Document
}

// InspectLimit caps document counts, which the hosted store refuses to run unbounded.
const InspectLimit = 1000

// NewWithConfig wires a loader. source may be nil when only URL loading is used.
func NewWithConfig(config LoaderConfig, embedder types.Embedder, vs types.VectorStore, source Source) *Loader {
	if len(config.Crafts) == 0 {
		config.Crafts = craftsmen.DefaultCrafts
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Loader{
		config:    config,
		embedder:  embedder,
		store:     vs,
		source:    source,
		processor: processor.NewWithConfig(config.Processor),
		log:       config.Logger.With("component", "loader"),
	}
}

func (l *Loader) progress(e Event) {
	if l.config.OnProgress != nil {
		l.config.OnProgress(e)
	}
}

// CheckAPI verifies the craftsmen API is reachable with the configured token.
func (l *Loader) CheckAPI(ctx context.Context) error {
	if l.source == nil {
		return errors.New("craftsmen API is not configured")
	}
	code, err := l.source.Ping(ctx)
	if err != nil {
		return fmt.Errorf("API connection test failed: %w", err)
	}
	l.log.Info("API connection successful", "status", code)
	return nil
}

// Reset drops the collection and creates it again, empty.
func (l *Loader) Reset(ctx context.Context) error {
	if err := l.store.Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	if err := l.store.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	l.log.Info("collection reset")
	return nil
}

// Inspect returns a bounded document count and one sample document.
func (l *Loader) Inspect(ctx context.Context) (*Inspection, error) {
	count, err := l.store.Count(ctx, InspectLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	out := &Inspection{Count: count}
	if count > 0 {
		if out.Sample, err = l.store.FindOne(ctx); err != nil {
			return nil, fmt.Errorf("failed to read sample document: %w", err)
		}
	}
	return out, nil
}

// LoadCraftsmen walks every craft page by page and indexes each craftsman.
// A failing page ends that craft; a failing record is skipped. crafts
// overrides the configured list when given.
func (l *Loader) LoadCraftsmen(ctx context.Context, crafts ...string) (Stats, error) {
	var stats Stats
	if l.source == nil {
		return stats, errors.New("craftsmen API is not configured")
	}
	if len(crafts) == 0 {
		crafts = l.config.Crafts
	}

	if err := l.store.EnsureCollection(ctx); err != nil {
		return stats, fmt.Errorf("failed to prepare collection: %w", err)
	}

	for _, craft := range crafts {
		stats.Crafts++
		l.log.Info("processing craft", "craft", craft)

		for page := 1; ; page++ {
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			resp, err := l.source.FetchPage(ctx, craft, page)
			if err != nil {
				l.log.Error("failed to fetch craftsmen", "craft", craft, "page", page, "error", err)
				l.progress(Event{Stage: "page", Craft: craft, Page: page, Failed: true})
				break
			}
			if len(resp.Data) == 0 {
				l.log.Info("no more data", "craft", craft)
				break
			}

			stats.Pages++
			l.progress(Event{Stage: "page", Craft: craft, Page: page})
			l.log.Info("processing page", "craft", craft, "page", page, "count", len(resp.Data))

			for _, rec := range resp.Data {
				if err := l.insertCraftsman(ctx, rec); err != nil {
					stats.Failed++
					l.log.Error("error processing craftsman", "name", rec.Name, "error", err)
					l.progress(Event{Stage: "record", Craft: craft, Page: page, Name: rec.Name, Failed: true})
					continue
				}
				stats.Inserted++
				l.progress(Event{Stage: "record", Craft: craft, Page: page, Name: rec.Name})
			}

			if resp.LastPage <= page {
				break
			}
		}
	}

	l.log.Info("craftsmen load finished", "inserted", stats.Inserted, "failed", stats.Failed)
	return stats, nil
}

func (l *Loader) embedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := l.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

func (l *Loader) insertCraftsman(ctx context.Context, rec craftsmen.Record) error {
	text := craftsmen.Format(rec)

	vector, err := l.embedOne(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed: %w", err)
	}

	id, err := l.store.Insert(ctx, models.Document{
		Text:      text,
		Title:     craftsmen.Title(rec),
		SourceID:  rec.ID.String(),
		Embedding: vector,
		Metadata:  craftsmen.Metadata(rec, l.config.Now()),
		CreatedAt: l.config.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	l.log.Debug("document inserted", "id", id, "sourceId", rec.ID.String())
	return nil
}

// LoadURL scrapes a site, chunks every page and indexes the chunks.
// observers receive the same events as the configured OnProgress.
func (l *Loader) LoadURL(ctx context.Context, rawURL string, observers ...func(Event)) (Stats, error) {
	var stats Stats
	emit := func(e Event) {
		l.progress(e)
		for _, fn := range observers {
			fn(e)
		}
	}

	cfg := l.config.Scraper
	cfg.BaseURL = rawURL
	if cfg.Logger == nil {
		cfg.Logger = l.config.Logger
	}
	userProgress := cfg.OnProgress
	cfg.OnProgress = func(u string) {
		if userProgress != nil {
			userProgress(u)
		}
		emit(Event{Stage: "url", Name: u})
	}

	s, err := scraper.NewWithConfig(cfg)
	if err != nil {
		return stats, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	pages, err := s.Scrape(ctx, rawURL)
	if err != nil && len(pages) == 0 {
		return stats, fmt.Errorf("failed to scrape %s: %w", rawURL, err)
	}
	stats.Pages = len(pages)

	processed, err := l.processor.Process(pages)
	if err != nil {
		return stats, err
	}

	if err := l.store.EnsureCollection(ctx); err != nil {
		return stats, fmt.Errorf("failed to prepare collection: %w", err)
	}

	for _, page := range processed {
		if len(page.Chunks) == 0 {
			continue
		}

		vectors, err := l.embedder.EmbedDocuments(ctx, page.Chunks)
		if err != nil || len(vectors) != len(page.Chunks) {
			stats.Failed += len(page.Chunks)
			l.log.Error("failed to embed page", "url", page.URL, "error", err)
			continue
		}

		for i, chunk := range page.Chunks {
			_, err := l.store.Insert(ctx, models.Document{
				Text:      chunk,
				Title:     page.Title,
				SourceID:  page.URL,
				Embedding: vectors[i],
				Metadata:  chunkMetadata(page, i, l.config.Now()),
				CreatedAt: l.config.Now(),
			})
			if err != nil {
				stats.Failed++
				l.log.Error("failed to insert chunk", "url", page.URL, "chunk", i, "error", err)
				emit(Event{Stage: "chunk", Name: page.URL, Failed: true})
				continue
			}
			stats.Inserted++
			emit(Event{Stage: "chunk", Name: page.URL})
		}
	}

	l.log.Info("url load finished", "url", rawURL, "pages", stats.Pages, "inserted", stats.Inserted, "failed", stats.Failed)
	return stats, nil
}

func chunkMetadata(page models.ProcessedPage, index int, now time.Time) map[string]interface{} {
	md := make(map[string]interface{}, len(page.Metadata)+4)
	for k, v := range page.Metadata {
		md[k] = v
	}
	md["url"] = page.URL
	md["chunk"] = index
	md["chunks"] = len(page.Chunks)
	md["timestamp"] = now.UTC().Format(time.RFC3339)
	return md
}
