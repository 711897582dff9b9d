package vectorindex

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/newsrag/models"
)

func entry(id string, vec ...float32) models.IndexEntry {
	return models.IndexEntry{ID: id, Vector: vec, Payload: models.Payload{Title: "title " + id, URL: "http://x/" + id}}
}

type countingBackend struct {
	*MemoryBackend
	ensures int
	failing error
}

func (c *countingBackend) EnsureCollection(ctx context.Context, dim int) error {
	c.ensures++
	if c.failing != nil {
		return c.failing
	}
	return c.MemoryBackend.EnsureCollection(ctx, dim)
}

func TestIndex_SearchHonoursKFloorAndOrder(t *testing.T) {
	ix := New(NewMemoryBackend(), 2, nil)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, []models.IndexEntry{
		entry("a", 1, 0),
		entry("b", 0.9, 0.1),
		entry("c", 0.7, 0.7),
		entry("d", 0, 1),
		entry("e", -1, 0),
	}))

	hits, err := ix.Search(ctx, models.Embedding{1, 0}, 2, 0.5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)

	all, err := ix.Search(ctx, models.Embedding{1, 0}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, h := range all {
		assert.GreaterOrEqual(t, h.Score, 0.5)
		assert.LessOrEqual(t, h.Score, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, all[i-1].Score, h.Score)
		}
	}

	none, err := ix.Search(ctx, models.Embedding{0, -1}, 5, 0.7)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIndex_DimensionMismatchRejectsWholeBatch(t *testing.T) {
	ix := New(NewMemoryBackend(), 3, nil)
	ctx := context.Background()

	err := ix.Upsert(ctx, []models.IndexEntry{entry("ok", 1, 0, 0), entry("bad", 1, 0)})
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)

	n, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ix.Search(ctx, models.Embedding{1}, 5, 0)
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestIndex_UpsertOverwritesByID(t *testing.T) {
	ix := New(NewMemoryBackend(), 2, nil)
	ctx := context.Background()

	require.NoError(t, ix.Upsert(ctx, []models.IndexEntry{entry("a", 1, 0)}))
	updated := entry("a", 0, 1)
	updated.Payload.Title = "rewritten"
	require.NoError(t, ix.Upsert(ctx, []models.IndexEntry{updated}))

	list, err := ix.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "rewritten", list[0].Payload.Title)
	assert.Nil(t, list[0].Vector)

	hits, err := ix.Search(ctx, models.Embedding{0, 1}, 1, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "rewritten", hits[0].Payload.Title)
}

func TestIndex_EnsureCollectionIsLazyAndIdempotent(t *testing.T) {
	b := &countingBackend{MemoryBackend: NewMemoryBackend()}
	ix := New(b, 2, nil)
	ctx := context.Background()
	assert.Zero(t, b.ensures)

	for i := 0; i < 3; i++ {
		require.NoError(t, ix.EnsureCollection(ctx))
	}
	_, err := ix.Search(ctx, models.Embedding{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, b.ensures)

	require.NoError(t, ix.DeleteCollection(ctx))
	require.NoError(t, ix.Upsert(ctx, []models.IndexEntry{entry("a", 1, 0)}))
	assert.Equal(t, 2, b.ensures)
}

func TestIndex_BackendFailureIsStoreUnavailable(t *testing.T) {
	b := &countingBackend{MemoryBackend: NewMemoryBackend(), failing: errors.New("connection refused")}
	ix := New(b, 2, nil)

	_, err := ix.Search(context.Background(), models.Embedding{1, 0}, 5, 0.7)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)

	b.failing = nil
	_, err = ix.Search(context.Background(), models.Embedding{1, 0}, 5, 0.7)
	assert.NoError(t, err, "a failed ensure is retried")
}

func TestIndex_ZeroK(t *testing.T) {
	ix := New(NewMemoryBackend(), 2, nil)
	hits, err := ix.Search(context.Background(), models.Embedding{1, 0}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
