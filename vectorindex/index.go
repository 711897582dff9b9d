// Package vectorindex stores document vectors in a single collection and
// answers top-k similarity searches.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
)

// Backend is a collection-scoped vector store. Scores returned by Search are
// cosine similarities.
type Backend interface {
	Name() string
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, entries []models.IndexEntry) error
	Search(ctx context.Context, vector models.Embedding, limit int, scoreFloor float64) ([]models.SearchHit, error)
	// List returns every entry without its vector.
	List(ctx context.Context) ([]models.IndexEntry, error)
	Count(ctx context.Context) (int, error)
	DeleteCollection(ctx context.Context) error
}

// Index enforces the collection invariants in front of a Backend: a fixed
// dimension, lazy idempotent creation, and the k/floor contract of Search.
type Index struct {
	backend   Backend
	dimension int
	log       logrus.FieldLogger

	mu    sync.Mutex
	ready bool
}

func New(backend Backend, dimension int, log logrus.FieldLogger) *Index {
	return &Index{
		backend:   backend,
		dimension: dimension,
		log:       logging.Component(log, "vectorindex"),
	}
}

func (ix *Index) Dimension() int { return ix.dimension }

func (ix *Index) Backend() string { return ix.backend.Name() }

// EnsureCollection creates the collection on first use. Safe to call
// repeatedly; a failed attempt is retried on the next call.
func (ix *Index) EnsureCollection(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.ready {
		return nil
	}
	if err := ix.backend.EnsureCollection(ctx, ix.dimension); err != nil {
		return storeErr("ensure collection", err)
	}
	ix.ready = true
	ix.log.WithField("backend", ix.backend.Name()).WithField("dimension", ix.dimension).Info("INDEX: collection ready")
	return nil
}

// Upsert writes entries, overwriting by id. A dimension mismatch on any
// entry rejects the whole batch before anything is written.
func (ix *Index) Upsert(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("%w: index entry without id", models.ErrInvalidInput)
		}
		if len(e.Vector) != ix.dimension {
			return fmt.Errorf("%w: entry %s has %d dimensions, collection has %d",
				models.ErrDimensionMismatch, e.ID, len(e.Vector), ix.dimension)
		}
	}
	if err := ix.EnsureCollection(ctx); err != nil {
		return err
	}
	if err := ix.backend.Upsert(ctx, entries); err != nil {
		return storeErr("upsert", err)
	}
	return nil
}

// Search returns at most k hits with score >= scoreFloor, best first.
// An empty result is not an error.
func (ix *Index) Search(ctx context.Context, vector models.Embedding, k int, scoreFloor float64) ([]models.SearchHit, error) {
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			models.ErrDimensionMismatch, len(vector), ix.dimension)
	}
	if k <= 0 {
		return []models.SearchHit{}, nil
	}
	if err := ix.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	hits, err := ix.backend.Search(ctx, vector, k, scoreFloor)
	if err != nil {
		return nil, storeErr("search", err)
	}

	out := make([]models.SearchHit, 0, len(hits))
	for _, h := range hits {
		h.Score = clampScore(h.Score)
		if h.Score < scoreFloor {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (ix *Index) List(ctx context.Context) ([]models.IndexEntry, error) {
	if err := ix.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	entries, err := ix.backend.List(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	return entries, nil
}

func (ix *Index) Count(ctx context.Context) (int, error) {
	if err := ix.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	n, err := ix.backend.Count(ctx)
	if err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

// DeleteCollection drops the collection. The next call recreates it.
func (ix *Index) DeleteCollection(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.backend.DeleteCollection(ctx); err != nil {
		return storeErr("delete collection", err)
	}
	ix.ready = false
	ix.log.WithField("backend", ix.backend.Name()).Warn("INDEX: collection deleted")
	return nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, models.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", models.ErrStoreUnavailable, op, err)
}

// clampScore maps a cosine similarity into [0,1]; opposed vectors score 0.
func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
