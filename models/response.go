package models

import "time"

// QueryResult is the envelope returned for every answered query.
// Note is only set when retrieval found no relevant context.
type QueryResult struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	Query     string     `json:"query"`
	SessionID string     `json:"sessionId"`
	Timestamp time.Time  `json:"timestamp"`
	Cached    bool       `json:"cached"`
	Note      string     `json:"note,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type HistoryResponse struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
}

type ListSessionsResponse struct {
	Count    int        `json:"count"`
	Sessions []*Session `json:"sessions"`
}

type IngestDocumentsResponse struct {
	Received int `json:"received"`
	Ingested int `json:"ingested"`
}

// IndexedDocument is a listing row of the vector collection.
type IndexedDocument struct {
	ID      string  `json:"id"`
	Payload Payload `json:"payload"`
}

type ListDocumentsResponse struct {
	Count     int               `json:"count"`
	Documents []IndexedDocument `json:"documents"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
