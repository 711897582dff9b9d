// Package embedding converts text into fixed-dimension vectors. A Gateway is
// built once, either around a live provider or as a pure fallback, so callers
// never branch on configuration.
package embedding

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
)

// Gateway is what the orchestrators depend on.
type Gateway interface {
	Embed(ctx context.Context, text string) (models.Embedding, error)
	// EmbedMany preserves input order.
	EmbedMany(ctx context.Context, texts []string) ([]models.Embedding, error)
	Dimension() int
	// Mode reports "live:<provider>" or "fallback".
	Mode() string
}

// Provider is a live embedding backend.
type Provider interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string) ([]models.Embedding, error)
}

// New returns a Gateway around provider. A nil provider means no credential
// is configured: the gateway is built in fallback form. With degrade set,
// provider failures are answered with the deterministic fallback vector;
// otherwise they fail with models.ErrProviderUnavailable.
func New(provider Provider, dimension int, degrade bool, log logrus.FieldLogger) Gateway {
	log = logging.Component(log, "embedding")
	if provider == nil {
		log.WithField("reason", models.ErrConfigurationDegraded).Warn("EMBEDDING: no provider configured, using deterministic fallback vectors")
		return &fallbackGateway{dimension: dimension}
	}
	return &liveGateway{provider: provider, dimension: dimension, degrade: degrade, log: log}
}

type liveGateway struct {
	provider  Provider
	dimension int
	degrade   bool
	log       logrus.FieldLogger
}

func (g *liveGateway) Dimension() int { return g.dimension }

func (g *liveGateway) Mode() string { return "live:" + g.provider.Name() }

func (g *liveGateway) Embed(ctx context.Context, text string) (models.Embedding, error) {
	out, err := g.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (g *liveGateway) EmbedMany(ctx context.Context, texts []string) ([]models.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := g.provider.EmbedBatch(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("%s returned %d vectors for %d inputs", g.provider.Name(), len(vecs), len(texts))
	}
	if err != nil {
		if !g.degrade {
			return nil, fmt.Errorf("%w: %s: %w", models.ErrProviderUnavailable, g.provider.Name(), err)
		}
		g.log.WithError(err).WithField("inputs", len(texts)).Warn("EMBEDDING: provider failed, using fallback vectors")
		return fallbackMany(texts, g.dimension), nil
	}

	for i, v := range vecs {
		if len(v) == g.dimension {
			continue
		}
		if !g.degrade {
			return nil, fmt.Errorf("%w: %s returned %d dimensions, want %d", models.ErrDimensionMismatch, g.provider.Name(), len(v), g.dimension)
		}
		g.log.WithField("got", len(v)).WithField("want", g.dimension).Warn("EMBEDDING: provider vector has wrong dimension, using fallback")
		vecs[i] = FallbackVector(texts[i], g.dimension)
	}
	return vecs, nil
}

type fallbackGateway struct {
	dimension int
}

func (g *fallbackGateway) Dimension() int { return g.dimension }

func (g *fallbackGateway) Mode() string { return "fallback" }

func (g *fallbackGateway) Embed(_ context.Context, text string) (models.Embedding, error) {
	return FallbackVector(text, g.dimension), nil
}

func (g *fallbackGateway) EmbedMany(_ context.Context, texts []string) ([]models.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return fallbackMany(texts, g.dimension), nil
}

func fallbackMany(texts []string, dimension int) []models.Embedding {
	out := make([]models.Embedding, len(texts))
	for i, t := range texts {
		out[i] = FallbackVector(t, dimension)
	}
	return out
}
