package models

import "errors"

// Sentinel errors shared across the indexer, search and chat paths.
// Wrap with fmt.Errorf("...: %w", Err...) and match with errors.Is.
var (
	// ErrProvider indicates the embedding or generation provider failed.
	ErrProvider = errors.New("provider error")

	// ErrInvalidQuery indicates an empty query or out-of-range parameters.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrDimensionMismatch indicates two vectors of different length were compared,
	// or a provider returned a vector of unexpected length.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIndexing indicates an episode could not be indexed. Nothing was persisted.
	ErrIndexing = errors.New("indexing failed")

	// ErrNotFound indicates the requested episode, session or job does not exist.
	ErrNotFound = errors.New("not found")
)

// Error kinds reported to API and tool callers.
const (
	KindInvalidQuery      = "invalid_query"
	KindNotFound          = "not_found"
	KindProvider          = "provider"
	KindDimensionMismatch = "dimension_mismatch"
	KindIndexing          = "indexing"
	KindInternal          = "internal"
)

// ErrorKind maps err to its reported kind. Indexing wins over provider so a
// failed index run is reported as such even when the provider caused it.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidQuery):
		return KindInvalidQuery
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrIndexing):
		return KindIndexing
	case errors.Is(err, ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, ErrProvider):
		return KindProvider
	default:
		return KindInternal
	}
}
