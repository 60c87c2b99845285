// Package main provides the code-expert CLI for repository ingestion and
// code question answering.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bull/code-expert/internal/config"
	"github.com/bull/code-expert/internal/embedding"
	ghclient "github.com/bull/code-expert/internal/github"
	"github.com/bull/code-expert/internal/index"
	"github.com/bull/code-expert/internal/ingest"
	"github.com/bull/code-expert/internal/rag"
	"github.com/bull/code-expert/internal/ratelimit"
)

var (
	configPath string
	cfg        config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "expert",
	Short: "Repository ingestion and code Q&A",
	Long:  "Ingests GitHub repositories into a vector index and answers questions about their code",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger = newLogger(cfg.LogLevel)
		return nil
	},
	SilenceUsage: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <repository-url>",
	Short: "Ingest a GitHub repository into the search index",
	Long: `Fetches every ingestable file from a GitHub repository, splits them
into chunks and stores the chunks in Qdrant.

Environment variables:
  GITHUB_TOKEN   GitHub token for private repos and higher rate limits
  OPENAI_API_KEY OpenAI API key for embeddings (required)
  QDRANT_HOST    Qdrant hostname (default: localhost)
  QDRANT_PORT    Qdrant gRPC port (default: 6334)`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <owner/repo> <question>",
	Short: "Ask a question about an ingested repository",
	Args:  cobra.ExactArgs(2),
	RunE:  runAsk,
}

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List ingested repositories",
	Args:  cobra.NoArgs,
	RunE:  runRepos,
}

var statsCmd = &cobra.Command{
	Use:   "stats <owner/repo>",
	Short: "Show index statistics for a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var archiveCmd = &cobra.Command{
	Use:   "archive <owner/repo>",
	Short: "Archive a repository record",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchive,
}

var (
	askFiltered bool
	askCompare  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	askCmd.Flags().BoolVar(&askFiltered, "filtered", false, "filter retrieved chunks by relevance before answering")
	askCmd.Flags().BoolVar(&askCompare, "compare", false, "run both modes and print the metrics summary")
	rootCmd.AddCommand(ingestCmd, askCmd, reposCmd, statsCmd, archiveCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	owner, name, err := ParseRepoURL(args[0])
	if err != nil {
		return err
	}

	idx, err := newIndex(ctx)
	if err != nil {
		return err
	}

	limiter := ratelimit.NewLimiter(cfg.CallsPerHour, logger)
	host, err := ghclient.NewClient(cfg.GithubToken, limiter, logger)
	if err != nil {
		idx.Close()
		return fmt.Errorf("create GitHub client: %w", err)
	}

	fmt.Printf("Ingesting %s/%s...\n", owner, name)

	var bar *progressbar.ProgressBar
	pipeline := ingest.NewPipeline(host, idx, logger,
		ingest.WithBatchSize(cfg.BatchSize),
		ingest.WithProgress(func(processed, total int, path string) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("processing"),
					progressbar.OptionShowCount(),
				)
			}
			_ = bar.Set(processed)
		}),
	)

	result, err := pipeline.Run(ctx, owner, name)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println("Ingestion complete!")
	fmt.Printf("  Files: %d/%d\n", result.Succeeded, result.TotalFiles)
	fmt.Printf("  Skipped: %d\n", result.Skipped)
	fmt.Printf("  Chunks: %d\n", result.ChunksStored)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	repository, question := args[0], args[1]
	if !strings.Contains(repository, "/") {
		return fmt.Errorf("repository must be owner/repo, got %q", repository)
	}

	idx, err := newIndex(ctx)
	if err != nil {
		return err
	}
	defer idx.Close()

	base := rag.NewEvaluator(idx, nil, logger)
	filtered := rag.NewFilteredEvaluator(base, cfg.SearchLimit, logger)
	filtered.SetQualityThreshold(cfg.QualityThreshold)

	if askCompare {
		return runComparison(ctx, base, filtered, question, repository)
	}

	var res *rag.QueryResult
	if askFiltered {
		res, err = filtered.ProcessQuery(ctx, question, "filtered", repository)
	} else {
		res, err = base.ProcessQuery(ctx, question, "base", repository)
	}
	if err != nil {
		return err
	}

	fmt.Println(res.Response)
	fmt.Println()
	printMetrics(res.Metrics)
	return nil
}

// runComparison answers the question in both modes and prints the averaged
// history so the modes can be compared side by side.
func runComparison(ctx context.Context, base *rag.Evaluator, filtered *rag.FilteredEvaluator, question, repository string) error {
	baseRes, err := base.ProcessQuery(ctx, question, "base", repository)
	if err != nil {
		return err
	}
	filtRes, err := filtered.ProcessQuery(ctx, question, "filtered", repository)
	if err != nil {
		return err
	}

	fmt.Println("=== Base ===")
	fmt.Println(baseRes.Response)
	printMetrics(baseRes.Metrics)
	fmt.Println()
	fmt.Println("=== Filtered ===")
	fmt.Println(filtRes.Response)
	printMetrics(filtRes.Metrics)

	sum := base.Summary()
	fmt.Println()
	fmt.Printf("Summary over %d queries:\n", sum.Experiments)
	fmt.Printf("  Context relevance: %.3f\n", sum.ContextRelevance)
	fmt.Printf("  Groundedness:      %.3f\n", sum.Groundedness)
	fmt.Printf("  Answer relevance:  %.3f\n", sum.AnswerRelevance)
	fmt.Printf("  Response quality:  %.3f\n", sum.ResponseQuality)
	return nil
}

func runRepos(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	idx, err := newIndex(ctx)
	if err != nil {
		return err
	}
	defer idx.Close()

	records, err := idx.ListProcessedRepositories(ctx)
	if err != nil {
		return fmt.Errorf("list repositories: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No repositories ingested yet.")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%-40s files=%-5d chunks=%-6d last=%s\n",
			rec.FullName(), rec.TotalFiles, rec.TotalChunks,
			rec.LastProcessedAt.Format(time.RFC3339))
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	idx, err := newIndex(ctx)
	if err != nil {
		return err
	}
	defer idx.Close()

	stats, err := idx.RepositoryStats(ctx, args[0])
	if err != nil {
		if errors.Is(err, index.ErrRepositoryNotFound) {
			return fmt.Errorf("%s is not in the index", args[0])
		}
		return err
	}
	fmt.Printf("%s\n", args[0])
	fmt.Printf("  Files:  %d\n", stats.TotalFiles)
	fmt.Printf("  Chunks: %d\n", stats.TotalChunks)
	fmt.Printf("  First indexed: %s\n", stats.FirstIndexed.Format(time.RFC3339))
	fmt.Printf("  Last indexed:  %s\n", stats.LastIndexed.Format(time.RFC3339))
	return nil
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	owner, name, ok := strings.Cut(args[0], "/")
	if !ok {
		return fmt.Errorf("repository must be owner/repo, got %q", args[0])
	}

	idx, err := newIndex(ctx)
	if err != nil {
		return err
	}
	defer idx.Close()

	if err := idx.ArchiveRepository(ctx, owner, name); err != nil {
		if errors.Is(err, index.ErrRepositoryNotFound) {
			return fmt.Errorf("%s is not in the index", args[0])
		}
		return err
	}
	fmt.Printf("Archived %s\n", args[0])
	return nil
}

// newIndex builds the Qdrant-backed search index from config.
func newIndex(ctx context.Context) (index.SearchIndex, error) {
	client, err := embedding.NewClient(cfg.OpenAIKey)
	if err != nil {
		return nil, fmt.Errorf("create OpenAI client: %w", err)
	}
	embedder := embedding.NewEmbedder(client, cfg.EmbeddingModel, 0)

	idx, err := index.NewQdrant(cfg.QdrantHost, cfg.QdrantPort, embedder, client, cfg.ChatModel, cfg.SearchLimit, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to Qdrant: %w", err)
	}
	return idx, nil
}

func printMetrics(m rag.QueryMetrics) {
	fmt.Printf("[%s] relevance=%.3f groundedness=%.3f answer=%.3f quality=%.3f chunks=%d\n",
		m.Mode, m.ContextRelevance, m.Groundedness, m.AnswerRelevance,
		m.ResponseQuality, m.ChunkCount)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
