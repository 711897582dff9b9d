package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github/itish2003/newsrag/archive"
	"github/itish2003/newsrag/cache"
	"github/itish2003/newsrag/config"
	"github/itish2003/newsrag/embedding"
	"github/itish2003/newsrag/generation"
	"github/itish2003/newsrag/services"
	"github/itish2003/newsrag/session"
	"github/itish2003/newsrag/vectorindex"
)

// app holds every collaborator built from the configuration.
type app struct {
	cfg *config.AppConfig
	log *logrus.Logger

	kv        cache.Store
	sessions  *session.Store
	index     *vectorindex.Index
	embedder  embedding.Gateway
	generator generation.Gateway
	recorder  archive.Recorder
	// archive is set when the SQLite archive is enabled.
	archive *archive.SQLiteArchive
	rag       services.RAGService
	ingest    *services.IngestionService

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	kv, err := newCacheStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.kv = kv
	a.closers = append(a.closers, kv.Close)
	a.sessions = session.NewStore(kv, cfg.SessionTTL(), log)

	geminiClients := map[string]*genai.Client{}
	geminiClient := func(key string) (*genai.Client, error) {
		if c, ok := geminiClients[key]; ok {
			return c, nil
		}
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		geminiClients[key] = c
		return c, nil
	}

	embedProvider, err := newEmbeddingProvider(cfg, geminiClient)
	if err != nil {
		return nil, err
	}
	a.embedder = embedding.New(embedProvider, cfg.Embedding.Dimension, cfg.Embedding.Degrade, log)

	genProvider, err := newGenerationProvider(cfg, geminiClient)
	if err != nil {
		return nil, err
	}
	a.generator = generation.New(genProvider, cfg.Pipeline.HistoryWindow, log)

	backend, err := newIndexBackend(cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := backend.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	a.index = vectorindex.New(backend, cfg.Embedding.Dimension, log)

	a.recorder = archive.Noop{}
	if cfg.Archive.Enabled {
		rec, err := archive.OpenSQLite(ctx, cfg.Archive.SQLitePath, cfg.Archive.QueueSize, log)
		if err != nil {
			return nil, err
		}
		a.recorder = rec
		a.archive = rec
		a.closers = append(a.closers, rec.Close)
	}

	a.rag = services.NewRAGService(services.RAGDeps{
		Embedder:  a.embedder,
		Index:     a.index,
		Generator: a.generator,
		Cache:     a.kv,
		Sessions:  a.sessions,
		Archive:   a.recorder,
		Log:       log,
	}, services.RAGOptions{
		TopK:          cfg.Pipeline.TopK,
		ScoreFloor:    cfg.Pipeline.ScoreFloor,
		HistoryWindow: cfg.Pipeline.HistoryWindow,
		QueryTTL:      cfg.QueryTTL(),
	})
	a.ingest = services.NewIngestionService(a.embedder, a.index, services.IngestionOptions{
		BatchSize:        cfg.Ingestion.BatchSize,
		BatchPause:       cfg.BatchPause(),
		MinTitleLength:   cfg.Ingestion.MinTitleLength,
		MinContentLength: cfg.Ingestion.MinContentLength,
	}, log)

	log.WithFields(logrus.Fields{
		"embedding":  a.embedder.Mode(),
		"generation": a.generator.Mode(),
		"index":      a.index.Backend(),
		"cache":      cfg.Cache.Type,
		"archive":    cfg.Archive.Enabled,
	}).Info("Pipeline assembled")
	ok = true
	return a, nil
}

// Close releases backends in reverse order of construction.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("Warning: failed to close resource")
		}
	}
	a.closers = nil
}

func newCacheStore(ctx context.Context, cfg *config.AppConfig) (cache.Store, error) {
	switch cfg.Cache.Type {
	case "redis":
		store := cache.NewRedisStore(cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return cache.NewMemoryStore(cfg.Cache.MaxEntries)
	}
}

// A missing credential selects the fallback gateway: the provider is nil.
func newEmbeddingProvider(cfg *config.AppConfig, geminiClient func(string) (*genai.Client, error)) (embedding.Provider, error) {
	switch cfg.Embedding.Provider {
	case "gemini":
		if cfg.Embedding.Gemini.APIKey == "" {
			return nil, nil
		}
		client, err := geminiClient(cfg.Embedding.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		return embedding.NewGeminiProvider(client, cfg.Embedding.Model, cfg.Embedding.Dimension)
	case "ollama":
		httpClient := &http.Client{Timeout: time.Duration(cfg.Embedding.TimeoutSecs) * time.Second}
		return embedding.NewOllamaProvider(httpClient, cfg.Embedding.Ollama.BaseURL, cfg.Embedding.Ollama.Model), nil
	default:
		return nil, nil
	}
}

func newGenerationProvider(cfg *config.AppConfig, geminiClient func(string) (*genai.Client, error)) (generation.Provider, error) {
	if cfg.Generation.Provider != "gemini" || cfg.Generation.Gemini.APIKey == "" {
		return nil, nil
	}
	client, err := geminiClient(cfg.Generation.Gemini.APIKey)
	if err != nil {
		return nil, err
	}
	return generation.NewGeminiProvider(client, generation.GeminiOptions{
		Model:           cfg.Generation.Model,
		Temperature:     cfg.Generation.Temperature,
		TopK:            cfg.Generation.TopK,
		TopP:            cfg.Generation.TopP,
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		SafetyThreshold: cfg.Generation.SafetyThreshold,
	})
}

func newIndexBackend(cfg *config.AppConfig) (vectorindex.Backend, error) {
	switch cfg.VectorIndex.Type {
	case "qdrant":
		q := cfg.VectorIndex.Qdrant
		return vectorindex.NewQdrantBackend(vectorindex.QdrantConfig{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: cfg.VectorIndex.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	case "chroma":
		url := ""
		if cfg.VectorIndex.Chroma != nil {
			url = cfg.VectorIndex.Chroma.URL
		}
		return vectorindex.NewChromaBackend(url, cfg.VectorIndex.Collection)
	default:
		return vectorindex.NewMemoryBackend(), nil
	}
}
