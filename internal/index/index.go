// Package index defines the search-index boundary: chunk storage, lexical/
// semantic retrieval, response generation and repository bookkeeping. The
// concrete implementation runs on Qdrant with OpenAI embeddings.
package index

import (
	"context"
	"time"
)

// SearchResult is one retrieved chunk. Ephemeral, produced per query.
type SearchResult struct {
	Text     string  // Chunk text including its file header
	Path     string  // Source file path within the repository
	FileURL  string  // Stable URL of the source file
	Language string  // Language tag (file extension)
	Score    float64 // Backend similarity score, 0 when not provided
}

// SearchFilter narrows a search to one repository and optionally a language.
type SearchFilter struct {
	Repository string
	Language   string
}

// GenerateResult is the outcome of retrieval-augmented generation.
type GenerateResult struct {
	Response   string         // Generated answer text
	UsedChunks []SearchResult // Chunks handed to the model as context
	Model      string         // Generation model identifier
}

// RepositoryStatus marks a repository record as live or soft-deleted.
type RepositoryStatus string

const (
	StatusActive   RepositoryStatus = "active"
	StatusArchived RepositoryStatus = "archived"
)

// RepositoryRecord tracks aggregate ingestion state for one repository.
// Updated incrementally during ingestion and finalized at completion.
type RepositoryRecord struct {
	Owner           string
	Name            string
	TotalFiles      int
	TotalChunks     int
	Status          RepositoryStatus
	LastProcessedAt time.Time
}

// FullName returns "owner/name".
func (r RepositoryRecord) FullName() string {
	return r.Owner + "/" + r.Name
}

// RepositoryStats summarizes stored chunks for one repository.
type RepositoryStats struct {
	TotalFiles   int
	TotalChunks  int
	FirstIndexed time.Time
	LastIndexed  time.Time
}

// SearchIndex persists chunks and serves retrieval and generation. Chunks
// are write-once: Store replaces all chunks for (repository, path), so
// re-ingesting a file is an idempotent overwrite.
type SearchIndex interface {
	// Store replaces the stored chunks for one file with texts.
	Store(ctx context.Context, repository, path, language string, texts []string) error

	// Search returns up to limit chunks ranked by relevance to query.
	Search(ctx context.Context, query string, filter *SearchFilter, limit int) ([]SearchResult, error)

	// Generate retrieves context for query and produces an answer.
	// Returns ErrNoResults when retrieval finds nothing and ErrNoResponse
	// when the model yields no text; both are expected outcomes, not faults.
	Generate(ctx context.Context, query, repository string) (*GenerateResult, error)

	// UpsertRepository writes or overwrites the repository record.
	UpsertRepository(ctx context.Context, rec *RepositoryRecord) error

	// RepositoryStats aggregates stored chunk counts and index timestamps.
	RepositoryStats(ctx context.Context, repository string) (*RepositoryStats, error)

	// ListProcessedRepositories returns active repository records, most
	// recently processed first.
	ListProcessedRepositories(ctx context.Context) ([]RepositoryRecord, error)

	// ArchiveRepository soft-deletes a repository record.
	ArchiveRepository(ctx context.Context, owner, name string) error

	Close() error
}
