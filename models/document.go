package models

import "time"

// Document is a raw article handed to the indexing path by the acquisition side.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	Summary     string    `json:"summary,omitempty"`
}

// Embedding is a fixed-length vector owned by exactly one document or query.
type Embedding []float32

// Payload is the document-derived metadata stored next to a vector.
type Payload struct {
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"publishedAt"`
	Summary     string    `json:"summary,omitempty"`
}

// PayloadFromDocument copies the indexable fields of d.
func PayloadFromDocument(d Document) Payload {
	return Payload{
		Title:       d.Title,
		Content:     d.Content,
		URL:         d.URL,
		Source:      d.Source,
		PublishedAt: d.PublishedAt,
		Summary:     d.Summary,
	}
}

// IndexEntry is one point of the vector collection.
type IndexEntry struct {
	ID      string    `json:"id"`
	Vector  Embedding `json:"vector,omitempty"`
	Payload Payload   `json:"payload"`
}

// SearchHit is a single similarity match. Score is cosine similarity in [0,1].
type SearchHit struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Payload Payload `json:"payload"`
}

// Citation points an answer back at the document it was conditioned on.
type Citation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	Score       float64   `json:"score"`
}

// CitationFromHit builds the citation record for a retrieved hit.
func CitationFromHit(h SearchHit) Citation {
	return Citation{
		ID:          h.ID,
		Title:       h.Payload.Title,
		URL:         h.Payload.URL,
		Source:      h.Payload.Source,
		PublishedAt: h.Payload.PublishedAt,
		Score:       h.Score,
	}
}
