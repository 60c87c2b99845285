package index

import "errors"

var (
	// ErrUnreachable means the Qdrant server could not be reached.
	ErrUnreachable = errors.New("search index unreachable")

	// ErrRepositoryNotFound means no record exists for the repository.
	ErrRepositoryNotFound = errors.New("repository record not found")

	// ErrNoResults is the expected outcome of a query that matches nothing.
	ErrNoResults = errors.New("no search results")

	// ErrNoResponse means retrieval succeeded but the model produced no text.
	ErrNoResponse = errors.New("no response generated")

	// ErrDimensionMismatch means an embedding has the wrong vector size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
