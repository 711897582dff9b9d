package vectorindex

import (
	"context"
	"errors"
	"math"
	"sync"

	"github/itish2003/newsrag/models"
)

// MemoryBackend is an in-process store using brute-force cosine similarity.
type MemoryBackend struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	entries   map[string]models.IndexEntry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]models.IndexEntry)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimension == 0 {
		m.dimension = dimension
	}
	return nil
}

func (m *MemoryBackend) Upsert(_ context.Context, entries []models.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if len(e.Vector) != m.dimension {
			return models.ErrDimensionMismatch
		}
	}
	for _, e := range entries {
		if _, ok := m.entries[e.ID]; !ok {
			m.order = append(m.order, e.ID)
		}
		vec := make(models.Embedding, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		m.entries[e.ID] = e
	}
	return nil
}

func (m *MemoryBackend) Search(_ context.Context, vector models.Embedding, limit int, scoreFloor float64) ([]models.SearchHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]models.SearchHit, 0, limit)
	for _, id := range m.order {
		e := m.entries[id]
		score := cosine(e.Vector, vector)
		if score < scoreFloor {
			continue
		}
		hits = append(hits, models.SearchHit{ID: e.ID, Score: score, Payload: e.Payload})
	}
	// Index sorts and truncates.
	return hits, nil
}

func (m *MemoryBackend) List(_ context.Context) ([]models.IndexEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.IndexEntry, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		out = append(out, models.IndexEntry{ID: e.ID, Payload: e.Payload})
	}
	return out, nil
}

func (m *MemoryBackend) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryBackend) DeleteCollection(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimension = 0
	m.order = nil
	m.entries = make(map[string]models.IndexEntry)
	return nil
}

func cosine(a, b models.Embedding) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
