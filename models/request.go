package models

type CreateSessionRequest struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

type AskRequest struct {
	Query string `json:"query" binding:"required"`
}

type IngestDocumentsRequest struct {
	Documents []Document `json:"documents" binding:"required"`
}
