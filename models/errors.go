package models

import "errors"

// Error kinds surfaced by the pipeline. Stage errors wrap both the stage
// sentinel and the underlying kind, so errors.Is works for either.
var (
	// ErrInvalidInput indicates a query failed validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates an operation referenced an absent session.
	ErrNotFound = errors.New("not found")

	// ErrStoreUnavailable indicates the cache, session or vector backing store
	// could not be reached. Fatal for the current call only.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrProviderUnavailable indicates an embedding or generation call failed.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrConfigurationDegraded marks a missing credential. Never fatal; it
	// selects the fallback implementation of a gateway.
	ErrConfigurationDegraded = errors.New("configuration degraded")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	ErrEmbeddingFailed  = errors.New("embedding failed")
	ErrRetrievalFailed  = errors.New("retrieval failed")
	ErrGenerationFailed = errors.New("generation failed")
)

// ErrorKind names the taxonomy entry of err, for logs and API bodies.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrEmbeddingFailed):
		return "EmbeddingFailed"
	case errors.Is(err, ErrRetrievalFailed):
		return "RetrievalFailed"
	case errors.Is(err, ErrGenerationFailed):
		return "GenerationFailed"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, ErrProviderUnavailable):
		return "ProviderError"
	case errors.Is(err, ErrDimensionMismatch):
		return "DimensionMismatch"
	default:
		return "Internal"
	}
}
