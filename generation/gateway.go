// Package generation turns a query, its retrieved context and a bounded
// conversation history into a cited answer.
package generation

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github/itish2003/newsrag/logging"
	"github/itish2003/newsrag/models"
)

// Request is the input of one generation call.
type Request struct {
	Query   string
	Context []models.SearchHit
	History []models.Message
}

// Answer is the aggregate output of a generation call.
type Answer struct {
	Text      string
	Citations []models.Citation
}

// Provider is a text completion backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
	// CompleteStream calls emit for each fragment in order. Returning an
	// error from emit stops the stream.
	CompleteStream(ctx context.Context, p Prompt, emit func(string) error) error
}

// Gateway is what the query orchestrator depends on.
type Gateway interface {
	Generate(ctx context.Context, req Request) (*Answer, error)
	GenerateStream(ctx context.Context, req Request) *Stream
	Mode() string
}

// New builds a Gateway. With a nil provider the canned fallback answers
// every request.
func New(provider Provider, historyWindow int, log logrus.FieldLogger) Gateway {
	log = logging.Component(log, "generation")
	if provider == nil {
		log.WithField("reason", models.ErrConfigurationDegraded).Warn("GENERATION: no provider configured, answering with canned disclaimers")
		provider = NewCannedProvider()
	}
	return &gateway{provider: provider, historyWindow: historyWindow, log: log}
}

type gateway struct {
	provider      Provider
	historyWindow int
	log           logrus.FieldLogger
}

func (g *gateway) Mode() string {
	if _, ok := g.provider.(*CannedProvider); ok {
		return "fallback"
	}
	return "live:" + g.provider.Name()
}

func (g *gateway) Generate(ctx context.Context, req Request) (*Answer, error) {
	prompt := BuildPrompt(req, g.historyWindow)
	text, err := g.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrProviderUnavailable, g.provider.Name(), err)
	}
	g.log.WithField("context", len(req.Context)).WithField("history", len(prompt.History)).Debug("GENERATION: answer produced")
	return &Answer{Text: text, Citations: Citations(req.Context)}, nil
}

func (g *gateway) GenerateStream(ctx context.Context, req Request) *Stream {
	prompt := BuildPrompt(req, g.historyWindow)
	citations := Citations(req.Context)
	return startStream(ctx, func(ctx context.Context, emit func(string) error) (string, error) {
		var text []byte
		err := g.provider.CompleteStream(ctx, prompt, func(fragment string) error {
			text = append(text, fragment...)
			return emit(fragment)
		})
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", models.ErrProviderUnavailable, g.provider.Name(), err)
		}
		return string(text), nil
	}, citations)
}

// Citations lists the supplied context as citation records, in retrieval
// order. The result is never nil.
func Citations(hits []models.SearchHit) []models.Citation {
	out := make([]models.Citation, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.CitationFromHit(h))
	}
	return out
}
