package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/newsrag/models"
)

// fakeQdrant implements the handful of endpoints the backend uses.
type fakeQdrant struct {
	mu      sync.Mutex
	exists  bool
	created map[string]any
	points  map[string]qdrantPoint
	apiKeys []string
}

func newFakeQdrant() *fakeQdrant { return &fakeQdrant{points: map[string]qdrantPoint{}} }

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	path := strings.TrimPrefix(r.URL.Path, "/collections/news")
	switch {
	case path == "" && r.Method == http.MethodGet:
		if !f.exists {
			http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	case path == "" && r.Method == http.MethodPut:
		_ = json.NewDecoder(r.Body).Decode(&f.created)
		f.exists = true
		_, _ = w.Write([]byte(`{"result":true}`))
	case path == "" && r.Method == http.MethodDelete:
		f.exists = false
		f.points = map[string]qdrantPoint{}
		_, _ = w.Write([]byte(`{"result":true}`))
	case path == "/points" && r.Method == http.MethodPut:
		var body struct {
			Points []qdrantPoint `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			f.points[p.ID] = p
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case path == "/points/search":
		var body struct {
			Vector         []float32 `json:"vector"`
			Limit          int       `json:"limit"`
			ScoreThreshold float64   `json:"score_threshold"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		type result struct {
			Score   float64       `json:"score"`
			Payload qdrantPayload `json:"payload"`
		}
		var out []result
		for _, p := range f.points {
			s := cosine(p.Vector, body.Vector)
			if s >= body.ScoreThreshold {
				out = append(out, result{Score: s, Payload: p.Payload})
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": out})
	case path == "/points/scroll":
		var pts []qdrantPoint
		for _, p := range f.points {
			p.Vector = nil
			pts = append(pts, p)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points": pts, "next_page_offset": nil}})
	case path == "/points/count":
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"count": len(f.points)}})
	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusBadRequest)
	}
}

func TestQdrantBackend_ThroughIndex(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	backend := NewQdrantBackend(QdrantConfig{URL: srv.URL + "/", APIKey: "k", Collection: "news"})
	ix := New(backend, 2, nil)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, []models.IndexEntry{
		entry("doc-1", 1, 0),
		entry("doc-2", 0, 1),
	}))
	require.NotNil(t, fake.created)
	vectors := fake.created["vectors"].(map[string]any)
	assert.Equal(t, "Cosine", vectors["distance"])
	assert.EqualValues(t, 2, vectors["size"])

	hits, err := ix.Search(ctx, models.Embedding{1, 0.1}, 5, 0.7)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].ID)
	assert.Equal(t, "http://x/doc-1", hits[0].Payload.URL)

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := ix.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, ix.DeleteCollection(ctx))
	assert.False(t, fake.exists)

	for _, k := range fake.apiKeys {
		assert.Equal(t, "k", k)
	}
}

func TestQdrantBackend_ExistingCollectionNotRecreated(t *testing.T) {
	fake := newFakeQdrant()
	fake.exists = true
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ix := New(NewQdrantBackend(QdrantConfig{URL: srv.URL, Collection: "news"}), 2, nil)
	require.NoError(t, ix.EnsureCollection(context.Background()))
	assert.Nil(t, fake.created)
}

func TestQdrantBackend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	ix := New(NewQdrantBackend(QdrantConfig{URL: srv.URL, Collection: "news"}), 2, nil)
	_, err := ix.Search(context.Background(), models.Embedding{1, 0}, 5, 0.7)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestPointIDIsStable(t *testing.T) {
	assert.Equal(t, pointID("http://a/1"), pointID("http://a/1"))
	assert.NotEqual(t, pointID("http://a/1"), pointID("http://a/2"))
}
