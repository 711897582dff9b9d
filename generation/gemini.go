package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiOptions are the sampling and safety parameters of a GeminiProvider.
type GeminiOptions struct {
	Model           string
	Temperature     float32
	TopK            float32
	TopP            float32
	MaxOutputTokens int32
	// SafetyThreshold is a genai.HarmBlockThreshold name such as
	// BLOCK_MEDIUM_AND_ABOVE.
	SafetyThreshold string
}

// GeminiProvider completes prompts with a Gemini model.
type GeminiProvider struct {
	client *genai.Client
	opts   GeminiOptions
}

func NewGeminiProvider(client *genai.Client, opts GeminiOptions) (*GeminiProvider, error) {
	if client == nil {
		return nil, errors.New("gemini client is nil")
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-flash"
	}
	return &GeminiProvider{client: client, opts: opts}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) config(prompt Prompt) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:       ptr(p.opts.Temperature),
		TopP:              ptr(p.opts.TopP),
		TopK:              ptr(p.opts.TopK),
		MaxOutputTokens:   p.opts.MaxOutputTokens,
		SystemInstruction: systemInstruction(prompt.System),
	}
	if p.opts.SafetyThreshold != "" {
		threshold := genai.HarmBlockThreshold(p.opts.SafetyThreshold)
		for _, category := range []genai.HarmCategory{
			genai.HarmCategoryHarassment,
			genai.HarmCategoryHateSpeech,
			genai.HarmCategorySexuallyExplicit,
			genai.HarmCategoryDangerousContent,
		} {
			cfg.SafetySettings = append(cfg.SafetySettings, &genai.SafetySetting{Category: category, Threshold: threshold})
		}
	}
	return cfg
}

func (p *GeminiProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	result, err := p.client.Models.GenerateContent(ctx, p.opts.Model, genai.Text(prompt.Text()), p.config(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini api call failed: %w", err)
	}
	text := responseText(result)
	if text == "" {
		return "", errors.New("gemini returned no text")
	}
	return text, nil
}

func (p *GeminiProvider) CompleteStream(ctx context.Context, prompt Prompt, emit func(string) error) error {
	for result, err := range p.client.Models.GenerateContentStream(ctx, p.opts.Model, genai.Text(prompt.Text()), p.config(prompt)) {
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}
		if err := emit(responseText(result)); err != nil {
			return err
		}
	}
	return nil
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func ptr[T any](v T) *T { return &v }
