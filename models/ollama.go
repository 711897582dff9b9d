package models

// OllamaEmbedRequest is the body of Ollama's batched /api/embed call.
type OllamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// OllamaEmbedResponse carries one vector per input, in input order.
type OllamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}
