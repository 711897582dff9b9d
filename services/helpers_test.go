package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github/itish2003/newsrag/cache"
	"github/itish2003/newsrag/embedding"
	"github/itish2003/newsrag/generation"
	"github/itish2003/newsrag/models"
	"github/itish2003/newsrag/session"
	"github/itish2003/newsrag/vectorindex"
)

const testDim = 3

// topicEmbedder maps text onto one of three orthogonal topic axes, which
// gives predictable similarities without a provider.
type topicEmbedder struct {
	mu       sync.Mutex
	calls    int
	err      error
	batchErr error
}

func (e *topicEmbedder) vector(text string) models.Embedding {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "market"), strings.Contains(t, "stocks"):
		return models.Embedding{1, 0, 0}
	case strings.Contains(t, "weather"), strings.Contains(t, "storm"):
		return models.Embedding{0, 1, 0}
	default:
		return models.Embedding{0, 0, 1}
	}
}

func (e *topicEmbedder) Embed(_ context.Context, text string) (models.Embedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *topicEmbedder) EmbedMany(ctx context.Context, texts []string) ([]models.Embedding, error) {
	if e.batchErr != nil {
		return nil, e.batchErr
	}
	out := make([]models.Embedding, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *topicEmbedder) Dimension() int { return testDim }
func (e *topicEmbedder) Mode() string   { return "live:topic" }

var _ embedding.Gateway = (*topicEmbedder)(nil)

// recordingGenerator answers "answer to <query>" and remembers every request.
type recordingGenerator struct {
	mu       sync.Mutex
	requests []generation.Request
	err      error
	// gate, when set, blocks Generate until it is closed.
	gate chan struct{}
}

func (g *recordingGenerator) record(req generation.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
}

func (g *recordingGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func (g *recordingGenerator) last() generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

func (g *recordingGenerator) Generate(_ context.Context, req generation.Request) (*generation.Answer, error) {
	g.record(req)
	if g.gate != nil {
		<-g.gate
	}
	if g.err != nil {
		return nil, g.err
	}
	return &generation.Answer{Text: "answer to " + req.Query, Citations: generation.Citations(req.Context)}, nil
}

func (g *recordingGenerator) GenerateStream(ctx context.Context, req generation.Request) *generation.Stream {
	a, err := g.Generate(ctx, req)
	if err != nil {
		return generation.FailedStream(err)
	}
	return generation.StaticStream(a)
}

func (g *recordingGenerator) Mode() string { return "live:recording" }

type harness struct {
	svc      RAGService
	embedder *topicEmbedder
	gen      *recordingGenerator
	index    *vectorindex.Index
	kv       *cache.MemoryStore
	sessions *session.Store
	ingest   *IngestionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	kv, err := cache.NewMemoryStore(1000)
	require.NoError(t, err)

	h := &harness{
		embedder: &topicEmbedder{},
		gen:      &recordingGenerator{},
		index:    vectorindex.New(vectorindex.NewMemoryBackend(), testDim, nil),
		kv:       kv,
		sessions: session.NewStore(kv, 24*time.Hour, nil),
	}
	h.svc = NewRAGService(RAGDeps{
		Embedder:  h.embedder,
		Index:     h.index,
		Generator: h.gen,
		Cache:     kv,
		Sessions:  h.sessions,
	}, RAGOptions{TopK: 5, ScoreFloor: 0.7, HistoryWindow: 5, QueryTTL: 30 * time.Minute})
	h.ingest = NewIngestionService(h.embedder, h.index, IngestionOptions{BatchSize: 5, MinTitleLength: 5, MinContentLength: 20}, nil)
	return h
}

func marketDoc() models.Document {
	return models.Document{
		Title:       "Market rallies",
		Content:     "Stocks rose 2% today on strong earnings",
		URL:         "http://a/1",
		Source:      "wire",
		PublishedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}
