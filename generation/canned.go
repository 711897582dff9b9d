package generation

import (
	"context"
	"strings"
	"sync/atomic"
)

var cannedDisclaimers = []string{
	"The answer service is not configured right now, so I can't summarise these articles. The sources listed below may still help.",
	"I'm unable to generate an answer at the moment. Please review the attached sources directly.",
	"Answer generation is currently unavailable. The related articles are listed as sources.",
}

// CannedProvider answers with a fixed rotation of disclaimers. It is used
// when no generation credential is configured.
type CannedProvider struct {
	next atomic.Uint64
}

func NewCannedProvider() *CannedProvider { return &CannedProvider{} }

func (p *CannedProvider) Name() string { return "canned" }

func (p *CannedProvider) Complete(_ context.Context, _ Prompt) (string, error) {
	i := p.next.Add(1) - 1
	return cannedDisclaimers[i%uint64(len(cannedDisclaimers))], nil
}

// CompleteStream emits the disclaimer word by word.
func (p *CannedProvider) CompleteStream(ctx context.Context, prompt Prompt, emit func(string) error) error {
	text, _ := p.Complete(ctx, prompt)
	for _, word := range strings.SplitAfter(text, " ") {
		if err := emit(word); err != nil {
			return err
		}
	}
	return nil
}
