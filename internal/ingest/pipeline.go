package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bull/code-expert/internal/chunker"
	"github.com/bull/code-expert/internal/github"
	"github.com/bull/code-expert/internal/index"
)

// DefaultBatchSize is how many files are fetched and stored concurrently.
// Kept small so one run stays well inside API rate budgets.
const DefaultBatchSize = 2

// checkpointInterval is how many batches pass between repository record
// checkpoints. A crash loses at most this much bookkeeping, never chunks.
const checkpointInterval = 10

// SourceHost is the repository hosting side of ingestion.
type SourceHost interface {
	ValidateRepository(ctx context.Context, owner, name string) bool
	GetRepositoryTree(ctx context.Context, owner, name string) ([]github.FileEntry, error)
	GetFileContent(ctx context.Context, owner, name string, entry github.FileEntry) []byte
	Close()
}

// Progress is called after each file completes, whatever the outcome.
// processed counts completions so far, total is the full tree file count.
// Invocations are serialized; the callback needs no locking of its own.
type Progress func(processed, total int, path string)

// Result summarizes one ingestion run.
type Result struct {
	TotalFiles   int // Files in the repository tree before filtering
	Succeeded    int
	Failed       int // Files that failed chunking or storage
	Skipped      int // Files excluded by filter rules or unreadable content
	ChunksStored int
	Duration     time.Duration
}

// Pipeline ingests one repository end to end: validate, list the tree,
// fetch and chunk each file, store chunks in the search index. A pipeline
// is single-use; Run closes its host and index when it returns.
type Pipeline struct {
	host      SourceHost
	idx       index.SearchIndex
	splitter  *chunker.Splitter
	batchSize int
	progress  Progress
	logger    *slog.Logger

	mu        sync.Mutex
	processed map[string]bool
	succeeded int
	failed    int
	skipped   int
	chunks    int
	done      int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize overrides the per-batch concurrency.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithProgress installs a per-file progress callback.
func WithProgress(fn Progress) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// NewPipeline creates an ingestion pipeline over host and idx.
func NewPipeline(host SourceHost, idx index.SearchIndex, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		host:      host,
		idx:       idx,
		splitter:  chunker.NewSplitter(),
		batchSize: DefaultBatchSize,
		logger:    logger,
		processed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests owner/name. Partial failure is success as long as at least
// one file made it through; zero successes out of a nonempty selection is
// an error. The repository record is checkpointed before processing, every
// checkpointInterval batches, and at the end regardless of outcome. Host
// and index are always closed before Run returns.
func (p *Pipeline) Run(ctx context.Context, owner, name string) (*Result, error) {
	start := time.Now()
	recordRunStart()
	defer func() {
		p.host.Close()
		if err := p.idx.Close(); err != nil {
			p.logger.Warn("closing index", "error", err)
		}
		recordRunDuration(time.Since(start).Seconds())
	}()

	p.logger.Info("validating repository", "owner", owner, "name", name)
	if !p.host.ValidateRepository(ctx, owner, name) {
		return nil, fmt.Errorf("%s/%s: %w", owner, name, ErrRepositoryNotFound)
	}

	p.logger.Info("listing repository tree", "owner", owner, "name", name)
	entries, err := p.host.GetRepositoryTree(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("list tree: %w", err)
	}

	selected := make([]github.FileEntry, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if skip, reason := shouldSkip(e.Path); skip {
			p.logger.Debug("skipping file", "path", e.Path, "reason", reason)
			skipped++
			continue
		}
		selected = append(selected, e)
	}
	recordFilesSkipped(skipped)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", owner, name, ErrNoFiles)
	}
	p.mu.Lock()
	p.skipped = skipped
	p.mu.Unlock()
	p.logger.Info("processing files",
		"total", len(entries), "selected", len(selected), "skipped", skipped,
		"batch_size", p.batchSize)

	repository := owner + "/" + name

	// Begin tracking before the first file so the record exists during
	// runs shorter than a checkpoint interval.
	p.checkpoint(ctx, owner, name)

	batches := 0
	for i := 0; i < len(selected); i += p.batchSize {
		end := i + p.batchSize
		if end > len(selected) {
			end = len(selected)
		}
		p.runBatch(ctx, owner, name, repository, selected[i:end], len(entries))
		batches++

		if batches%checkpointInterval == 0 {
			p.checkpoint(ctx, owner, name)
		}
		if ctx.Err() != nil {
			break
		}
	}

	p.mu.Lock()
	result := &Result{
		TotalFiles:   len(entries),
		Succeeded:    p.succeeded,
		Failed:       p.failed,
		Skipped:      p.skipped,
		ChunksStored: p.chunks,
		Duration:     time.Since(start),
	}
	p.mu.Unlock()

	// Final stats are written however the run ended, so the record always
	// reflects what actually landed in the index.
	p.checkpoint(context.WithoutCancel(ctx), owner, name)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if result.Succeeded == 0 {
		return result, fmt.Errorf("ingest %s: no files stored out of %d", repository, result.TotalFiles)
	}

	p.logger.Info("ingestion complete",
		"repository", repository,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"chunks", result.ChunksStored,
		"duration", result.Duration,
	)
	return result, nil
}

// runBatch processes one slice of files concurrently and joins before
// returning. A failed file never takes its batch siblings down. Counter
// updates and the progress callback happen under the pipeline mutex, so
// progress invocations are serialized.
func (p *Pipeline) runBatch(ctx context.Context, owner, name, repository string, batch []github.FileEntry, total int) {
	var wg sync.WaitGroup
	for _, entry := range batch {
		wg.Add(1)
		go func(entry github.FileEntry) {
			defer wg.Done()
			unreadable, err := p.processFile(ctx, owner, name, repository, entry)
			p.mu.Lock()
			p.done++
			done := p.done
			switch {
			case err != nil:
				p.failed++
				recordFileFailed()
			case unreadable:
				p.skipped++
				recordFilesSkipped(1)
			default:
				p.succeeded++
				recordFileProcessed()
			}
			if p.progress != nil {
				p.progress(done, total, entry.Path)
			}
			p.mu.Unlock()
			if err != nil {
				p.logger.Warn("file failed", "path", entry.Path, "error", err)
			}
		}(entry)
	}
	wg.Wait()
}

// processFile fetches, chunks and stores one file. Missing content and
// non-text content are routine skips (unreadable=true), not failures; only
// storage problems count as errors. Files a run has already stored are
// counted as succeeded without refetching.
func (p *Pipeline) processFile(ctx context.Context, owner, name, repository string, entry github.FileEntry) (unreadable bool, err error) {
	p.mu.Lock()
	if p.processed[entry.Path] {
		p.mu.Unlock()
		return false, nil
	}
	p.mu.Unlock()

	content := p.host.GetFileContent(ctx, owner, name, entry)
	if content == nil {
		p.logger.Debug("skipping file", "path", entry.Path, "reason", "no content")
		return true, nil
	}
	if !utf8.Valid(content) {
		p.logger.Debug("skipping file", "path", entry.Path, "reason", "not valid UTF-8")
		return true, nil
	}

	chunks := p.splitter.Split(string(content), entry.Path)
	if len(chunks) == 0 {
		// Too small to index, but the file itself was handled fine.
		p.markProcessed(entry.Path, 0)
		return false, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	if err := p.idx.Store(ctx, repository, entry.Path, languageOf(entry.Path), texts); err != nil {
		return false, fmt.Errorf("store %s: %w", entry.Path, err)
	}

	p.markProcessed(entry.Path, len(chunks))
	recordChunksStored(len(chunks))
	return false, nil
}

func (p *Pipeline) markProcessed(path string, chunks int) {
	p.mu.Lock()
	p.processed[path] = true
	p.chunks += chunks
	p.mu.Unlock()
}

// checkpoint persists the repository record with counts so far.
func (p *Pipeline) checkpoint(ctx context.Context, owner, name string) {
	p.mu.Lock()
	rec := &index.RepositoryRecord{
		Owner:           owner,
		Name:            name,
		TotalFiles:      p.succeeded,
		TotalChunks:     p.chunks,
		Status:          index.StatusActive,
		LastProcessedAt: time.Now(),
	}
	p.mu.Unlock()

	if err := p.idx.UpsertRepository(ctx, rec); err != nil {
		p.logger.Warn("checkpoint failed", "repository", rec.FullName(), "error", err)
	}
}
