package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
)

type stubProvider struct {
	calls int
	fn    func(texts []string) ([]models.Embedding, error)
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) EmbedBatch(_ context.Context, texts []string) ([]models.Embedding, error) {
	s.calls++
	return s.fn(texts)
}

func constVectors(dim int) func([]string) ([]models.Embedding, error) {
	return func(texts []string) ([]models.Embedding, error) {
		out := make([]models.Embedding, len(texts))
		for i := range texts {
			v := make(models.Embedding, dim)
			v[0] = float32(i + 1)
			out[i] = v
		}
		return out, nil
	}
}

func norm(v models.Embedding) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestFallbackVector_DeterministicAndNormalised(t *testing.T) {
	a := FallbackVector("markets rally on rate cut", 64)
	b := FallbackVector("markets rally on rate cut", 64)
	c := FallbackVector("storm hits coast", 64)

	require.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.InDelta(t, 1.0, norm(a), 1e-5)
	assert.Empty(t, FallbackVector("x", 0))
}

func TestNew_NilProviderIsFallback(t *testing.T) {
	g := New(nil, 16, true, logging.Discard())

	assert.Equal(t, "fallback", g.Mode())
	assert.Equal(t, 16, g.Dimension())

	v, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackVector("hello", 16), v)
}

func TestLiveGateway_PreservesOrder(t *testing.T) {
	p := &stubProvider{fn: constVectors(4)}
	g := New(p, 4, false, logging.Discard())

	out, err := g.EmbedMany(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, v := range out {
		assert.Equal(t, float32(i+1), v[0])
	}
	assert.Equal(t, "live:stub", g.Mode())
	assert.Equal(t, 1, p.calls)
}

func TestLiveGateway_ProviderFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	failing := func([]string) ([]models.Embedding, error) { return nil, boom }

	t.Run("degrade answers with fallback", func(t *testing.T) {
		g := New(&stubProvider{fn: failing}, 8, true, logging.Discard())
		v, err := g.Embed(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, FallbackVector("q", 8), v)
	})

	t.Run("strict surfaces provider error", func(t *testing.T) {
		g := New(&stubProvider{fn: failing}, 8, false, logging.Discard())
		_, err := g.Embed(context.Background(), "q")
		require.Error(t, err)
		assert.ErrorIs(t, err, models.ErrProviderUnavailable)
		assert.ErrorIs(t, err, boom)
	})
}

func TestLiveGateway_CountMismatch(t *testing.T) {
	short := func([]string) ([]models.Embedding, error) {
		return []models.Embedding{make(models.Embedding, 4)}, nil
	}
	g := New(&stubProvider{fn: short}, 4, false, logging.Discard())

	_, err := g.EmbedMany(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestLiveGateway_WrongDimension(t *testing.T) {
	p := &stubProvider{fn: constVectors(3)}

	strict := New(p, 4, false, logging.Discard())
	_, err := strict.Embed(context.Background(), "a")
	assert.ErrorIs(t, err, models.ErrDimensionMismatch)

	lenient := New(p, 4, true, logging.Discard())
	v, err := lenient.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, FallbackVector("a", 4), v)
}

func TestEmbedMany_Empty(t *testing.T) {
	p := &stubProvider{fn: constVectors(4)}
	out, err := New(p, 4, true, logging.Discard()).EmbedMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, p.calls)
}
