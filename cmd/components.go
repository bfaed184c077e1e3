package main

import (
	"context"
	"fmt"

	"github.com/xhad/craftsman/internal/types"
	"github.com/xhad/craftsman/pkg/craftsmen"
	"github.com/xhad/craftsman/pkg/llm"
	"github.com/xhad/craftsman/pkg/loader"
	"github.com/xhad/craftsman/pkg/processor"
	"github.com/xhad/craftsman/pkg/rag"
	"github.com/xhad/craftsman/pkg/scraper"
	"github.com/xhad/craftsman/pkg/store"
)

func (a *app) newEmbedder(ctx context.Context) (*llm.Embedder, error) {
	c := a.cfg.Embedding
	emb, err := llm.NewEmbedderWithConfig(ctx, llm.EmbedderConfig{
		Provider:  c.Provider,
		Model:     c.Model,
		BaseURL:   c.URL,
		APIKey:    c.APIKey,
		Normalize: true,
		BatchSize: c.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return emb, nil
}

func (a *app) newStore(ctx context.Context) (types.VectorStore, error) {
	c := a.cfg.Store
	vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
		Backend:    c.Backend,
		Collection: c.Collection,
		Dimension:  c.Dimension,
		Metric:     c.Metric,
		BatchSize:  c.BatchSize,
		Endpoint:   c.Endpoint,
		Token:      c.Token,
		Namespace:  c.Namespace,
		ConnString: c.URL,
		Logger:     a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	return vs, nil
}

func (a *app) newChatEngine(ctx context.Context) (*llm.ChatEngine, error) {
	c := a.cfg.LLM
	engine, err := llm.NewWithConfig(ctx, llm.ChatConfig{
		Provider:    c.Provider,
		Model:       c.Model,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}
	return engine, nil
}

func (a *app) newRAG(embedder types.Embedder, vs types.VectorStore, chat rag.ChatStreamer) *rag.Service {
	c := a.cfg.Retrieval
	return rag.NewWithConfig(rag.Config{
		MinSimilarity:    c.MinSimilarity,
		VectorLimit:      c.VectorLimit,
		BrowseLimit:      c.BrowseLimit,
		BrowseKeywords:   c.BrowseKeywords,
		MaxContextLength: c.MaxContextLength,
		Debug:            c.Debug,
		Logger:           a.log,
	}, embedder, vs, chat)
}

// newLoader builds a loader. The craftsmen API client is only attached
// when an API URL is configured.
func (a *app) newLoader(embedder types.Embedder, vs types.VectorStore, onProgress func(loader.Event)) (*loader.Loader, error) {
	var source loader.Source
	if c := a.cfg.Craftsmen; c.APIURL != "" {
		client, err := craftsmen.NewWithConfig(craftsmen.ClientConfig{
			APIURL:    c.APIURL,
			Token:     c.Token,
			PageSize:  c.PageSize,
			RateLimit: c.RateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize craftsmen client: %w", err)
		}
		source = client
	}

	sc, pc := a.cfg.Scraper, a.cfg.Processor
	return loader.NewWithConfig(loader.LoaderConfig{
		Crafts: a.cfg.Craftsmen.Crafts,
		Scraper: scraper.ScraperConfig{
			MaxDepth:          sc.MaxDepth,
			MaxPages:          sc.MaxPages,
			RateLimit:         sc.RateLimit,
			IgnorePatterns:    sc.IgnorePatterns,
			AllowedExtensions: sc.AllowedExtensions,
			Logger:            a.log,
		},
		Processor: processor.ProcessorConfig{
			ChunkSize:       pc.ChunkSize,
			ChunkOverlap:    pc.ChunkOverlap,
			MinChunkLength:  pc.MinChunkLength,
			Lowercase:       pc.Lowercase,
			RemoveStopwords: pc.RemoveStopwords,
		},
		OnProgress: onProgress,
		Logger:     a.log,
	}, embedder, vs, source), nil
}
