package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/code-expert/internal/embedding"
)

// CollectionName is the single Qdrant collection for chunks and repository
// records, distinguished by the payload "type" field.
const CollectionName = "code_chunks"

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536

const (
	pointTypeChunk      = "chunk"
	pointTypeRepository = "repository"
)

// Qdrant implements SearchIndex over a Qdrant collection with OpenAI
// embeddings for retrieval and chat completions for generation.
type Qdrant struct {
	client      *qdrant.Client
	embedder    *embedding.Embedder
	chat        *embedding.Client
	chatModel   string
	searchLimit int
	logger      *slog.Logger
}

// NewQdrant connects to Qdrant, verifies health with retry, and ensures the
// collection exists. Fails fast when the server is unreachable.
func NewQdrant(host string, port int, embedder *embedding.Embedder, chat *embedding.Client, chatModel string, searchLimit int, logger *slog.Logger) (*Qdrant, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if searchLimit <= 0 {
		searchLimit = 10
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	q := &Qdrant{
		client:      client,
		embedder:    embedder,
		chat:        chat,
		chatModel:   chatModel,
		searchLimit: searchLimit,
		logger:      logger,
	}

	ctx := context.Background()
	if err := q.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return q, nil
}

// healthCheckWithRetry probes Qdrant with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (q *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		result, err := q.client.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		if result == nil || result.Title == "" {
			return fmt.Errorf("health check returned invalid response")
		}
		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// ensureCollection creates the collection and payload indexes if missing.
// Named vectors let repository records (no vector) and chunks (with a
// "content" vector) share the collection. Idempotent.
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == CollectionName {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			"content": {
				Size:     VectorDimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	// Without these indexes filtered queries degrade badly.
	for _, field := range []string{"type", "repository", "path", "language", "status"} {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("create index for field %s: %w", field, err)
		}
	}

	return nil
}

// Store replaces all chunk points for (repository, path) with texts. The
// delete-then-insert makes re-ingestion of a file an idempotent overwrite.
func (q *Qdrant) Store(ctx context.Context, repository, path, language string, texts []string) error {
	if err := q.deleteFileChunks(ctx, repository, path); err != nil {
		return err
	}
	if len(texts) == 0 {
		return nil
	}

	vectors, err := q.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks for %s: %w", path, err)
	}

	now := time.Now().UTC()
	fileURL := fmt.Sprintf("https://github.com/%s/blob/HEAD/%s", repository, path)

	points := make([]*qdrant.PointStruct, len(texts))
	for i, text := range texts {
		if len(vectors[i]) != VectorDimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(vectors[i]), VectorDimension)
		}
		points[i] = &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(uuid.New().String()),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				"content": qdrant.NewVector(vectors[i]...),
			}),
			Payload: qdrant.NewValueMap(map[string]any{
				"type":        pointTypeChunk,
				"repository":  repository,
				"path":        path,
				"language":    language,
				"content":     text,
				"file_url":    fileURL,
				"chunk_index": i,
				"indexed_at":  now.Format(time.RFC3339),
			}),
		}
	}

	return q.upsertWithRetry(ctx, points)
}

func (q *Qdrant) deleteFileChunks(ctx context.Context, repository, path string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("type", pointTypeChunk),
				qdrant.NewMatch("repository", repository),
				qdrant.NewMatch("path", path),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("delete chunks for %s: %w", path, err)
	}
	return nil
}

// upsertWithRetry writes points with exponential backoff, batched in groups
// of 100.
func (q *Qdrant) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	const batchSize = 100
	for i := 0; i < len(points); i += batchSize {
		end := min(i+batchSize, len(points))
		batch := points[i:end]

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 500 * time.Millisecond
		b.MaxInterval = 10 * time.Second
		b.MaxElapsedTime = 30 * time.Second

		operation := func() error {
			_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
				CollectionName: CollectionName,
				Points:         batch,
			})
			return err
		}
		if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// Search embeds the query and runs filtered vector search over chunks.
func (q *Qdrant) Search(ctx context.Context, query string, filter *SearchFilter, limit int) ([]SearchResult, error) {
	vectors, err := q.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	must := []*qdrant.Condition{
		qdrant.NewMatch("type", pointTypeChunk),
	}
	if filter != nil {
		if filter.Repository != "" {
			must = append(must, qdrant.NewMatch("repository", filter.Repository))
		}
		if filter.Language != "" {
			must = append(must, qdrant.NewMatch("language", filter.Language))
		}
	}

	vectorName := "content"
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(vectors[0]...),
		Using:          &vectorName,
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		payload := r.Payload
		out = append(out, SearchResult{
			Text:     payload["content"].GetStringValue(),
			Path:     payload["path"].GetStringValue(),
			FileURL:  payload["file_url"].GetStringValue(),
			Language: payload["language"].GetStringValue(),
			Score:    float64(r.Score),
		})
	}
	return out, nil
}

// UpsertRepository writes the repository record at a deterministic point ID
// so successive checkpoint writes overwrite in place.
func (q *Qdrant) UpsertRepository(ctx context.Context, rec *RepositoryRecord) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(repositoryPointID(rec.Owner, rec.Name)),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":              pointTypeRepository,
			"repository":        rec.FullName(),
			"owner":             rec.Owner,
			"name":              rec.Name,
			"total_files":       rec.TotalFiles,
			"total_chunks":      rec.TotalChunks,
			"status":            string(rec.Status),
			"last_processed_at": rec.LastProcessedAt.UTC().Format(time.RFC3339),
		}),
	}
	return q.upsertWithRetry(ctx, []*qdrant.PointStruct{point})
}

// RepositoryStats aggregates chunk counts and index timestamps by scrolling
// the repository's chunk points.
func (q *Qdrant) RepositoryStats(ctx context.Context, repository string) (*RepositoryStats, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("type", pointTypeChunk),
			qdrant.NewMatch("repository", repository),
		},
	}

	stats := &RepositoryStats{}
	paths := make(map[string]struct{})
	var offset *qdrant.PointId
	batchSize := uint32(512)

	for {
		results, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: CollectionName,
			Filter:         filter,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("path", "indexed_at"),
		})
		if err != nil {
			return nil, fmt.Errorf("scroll chunks: %w", err)
		}

		for _, r := range results {
			stats.TotalChunks++
			if p := r.Payload["path"].GetStringValue(); p != "" {
				paths[p] = struct{}{}
			}
			if ts, err := time.Parse(time.RFC3339, r.Payload["indexed_at"].GetStringValue()); err == nil {
				if stats.FirstIndexed.IsZero() || ts.Before(stats.FirstIndexed) {
					stats.FirstIndexed = ts
				}
				if ts.After(stats.LastIndexed) {
					stats.LastIndexed = ts
				}
			}
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	stats.TotalFiles = len(paths)
	return stats, nil
}

// ListProcessedRepositories returns active repository records, most recently
// processed first.
func (q *Qdrant) ListProcessedRepositories(ctx context.Context) ([]RepositoryRecord, error) {
	results, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: CollectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("type", pointTypeRepository),
				qdrant.NewMatch("status", string(StatusActive)),
			},
		},
		Limit:       qdrant.PtrOf(uint32(1000)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll repositories: %w", err)
	}

	records := make([]RepositoryRecord, 0, len(results))
	for _, r := range results {
		records = append(records, recordFromPayload(r.Payload))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastProcessedAt.After(records[j].LastProcessedAt)
	})
	return records, nil
}

// ArchiveRepository flips the repository record to archived. Soft delete;
// chunks stay in place.
func (q *Qdrant) ArchiveRepository(ctx context.Context, owner, name string) error {
	results, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: CollectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("type", pointTypeRepository),
				qdrant.NewMatch("repository", owner+"/"+name),
			},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return fmt.Errorf("lookup repository record: %w", err)
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: %s/%s", ErrRepositoryNotFound, owner, name)
	}

	rec := recordFromPayload(results[0].Payload)
	rec.Status = StatusArchived
	return q.UpsertRepository(ctx, &rec)
}

// Close releases the Qdrant client connection.
func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

func recordFromPayload(payload map[string]*qdrant.Value) RepositoryRecord {
	rec := RepositoryRecord{
		Owner:       payload["owner"].GetStringValue(),
		Name:        payload["name"].GetStringValue(),
		TotalFiles:  int(payload["total_files"].GetIntegerValue()),
		TotalChunks: int(payload["total_chunks"].GetIntegerValue()),
		Status:      RepositoryStatus(payload["status"].GetStringValue()),
	}
	if ts, err := time.Parse(time.RFC3339, payload["last_processed_at"].GetStringValue()); err == nil {
		rec.LastProcessedAt = ts
	}
	return rec
}

// repositoryPointID derives a stable UUID for a repository record.
func repositoryPointID(owner, name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("code-expert/repository/"+owner+"/"+name)).String()
}
