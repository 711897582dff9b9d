package generation

import (
	"fmt"
	"strings"

	"github/itish2003/newsrag/models"
)

// ContextSeparator sits between context excerpts in the prompt.
const ContextSeparator = "\n\n---\n\n"

const maxExcerptChars = 1500

// Prompt is the provider-neutral rendering of a Request.
type Prompt struct {
	System  string
	Context string
	History []models.Message
	Query   string
}

// BuildPrompt renders req, keeping at most historyWindow recent messages.
func BuildPrompt(req Request, historyWindow int) Prompt {
	history := req.History
	if historyWindow >= 0 && len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	excerpts := make([]string, 0, len(req.Context))
	for i, h := range req.Context {
		excerpts = append(excerpts, renderExcerpt(i+1, h))
	}

	return Prompt{
		System:  systemPrompt,
		Context: strings.Join(excerpts, ContextSeparator),
		History: history,
		Query:   req.Query,
	}
}

// Text is the single user turn sent to the model.
func (p Prompt) Text() string {
	var b strings.Builder
	b.WriteString("Context:\n")
	if p.Context == "" {
		b.WriteString("(no relevant articles were found)\n")
	} else {
		b.WriteString(p.Context)
		b.WriteString("\n")
	}
	if len(p.History) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range p.History {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	b.WriteString("\nAnswer only from the context above. If the context is insufficient to answer, say so explicitly.\n")
	fmt.Fprintf(&b, "\nQuestion: %s\n", p.Query)
	return b.String()
}

func renderExcerpt(n int, h models.SearchHit) string {
	p := h.Payload
	body := p.Content
	if body == "" {
		body = p.Summary
	}
	if r := []rune(body); len(r) > maxExcerptChars {
		body = string(r[:maxExcerptChars]) + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", n, p.Title)
	if p.Source != "" {
		fmt.Fprintf(&b, " (%s", p.Source)
		if !p.PublishedAt.IsZero() {
			fmt.Fprintf(&b, ", %s", p.PublishedAt.Format("2006-01-02"))
		}
		b.WriteString(")")
	}
	if p.URL != "" {
		fmt.Fprintf(&b, "\n%s", p.URL)
	}
	fmt.Fprintf(&b, "\n%s", body)
	return b.String()
}
