package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github/itish2003/newsrag/models"
)

// GeminiProvider embeds text with a Gemini embedding model.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	dimension int32
}

// NewGeminiProvider wraps an already-built Gemini client.
func NewGeminiProvider(client *genai.Client, model string, dimension int) (*GeminiProvider, error) {
	if client == nil {
		return nil, errors.New("gemini client is nil")
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiProvider{client: client, model: model, dimension: int32(dimension)}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([]models.Embedding, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.Text(t)...)
	}
	dim := p.dimension
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	out := make([]models.Embedding, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, models.Embedding(e.Values))
	}
	return out, nil
}
