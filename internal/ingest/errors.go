package ingest

import "errors"

var (
	// ErrRepositoryNotFound means validation could not see the repository.
	ErrRepositoryNotFound = errors.New("repository not found or inaccessible")

	// ErrNoFiles means the repository tree held nothing ingestable.
	ErrNoFiles = errors.New("no ingestable files in repository")
)
