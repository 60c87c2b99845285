package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bull/code-expert/internal/index"
)

// DefaultQualityThreshold is the minimum heuristic relevance a retrieved
// chunk must reach to survive filtering.
const DefaultQualityThreshold = 0.45

const filteredBoost = 0.05
const filteredCeiling = 0.98

// filteredQuerySuffix is appended to the query before generation so the
// model is steered toward citing the retrieved files.
const filteredQuerySuffix = " Include relevant code snippets and reference the specific files they come from."

// FilteredEvaluator wraps a base Evaluator and pre-filters retrieved chunks
// by heuristic relevance before generation. When filtering discards every
// candidate it falls back to the base evaluator, so a filtered query is
// never worse than an unfiltered one.
type FilteredEvaluator struct {
	base       *Evaluator
	candidates int
	logger     *slog.Logger

	mu        sync.Mutex
	threshold float64
}

// NewFilteredEvaluator wraps base. candidates is how many chunks to retrieve
// for filtering; non-positive values fall back to the scorer's top-K.
func NewFilteredEvaluator(base *Evaluator, candidates int, logger *slog.Logger) *FilteredEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if candidates <= 0 {
		candidates = base.scorer.cfg.TopK * 2
	}
	return &FilteredEvaluator{
		base:       base,
		candidates: candidates,
		logger:     logger,
		threshold:  DefaultQualityThreshold,
	}
}

// SetQualityThreshold adjusts the filter cutoff at runtime.
func (f *FilteredEvaluator) SetQualityThreshold(t float64) {
	f.mu.Lock()
	f.threshold = t
	f.mu.Unlock()
}

// QualityThreshold returns the current filter cutoff.
func (f *FilteredEvaluator) QualityThreshold() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold
}

// ProcessQuery retrieves candidates, filters them by heuristic relevance and
// generates from the survivors. All-discarded filtering delegates to the
// base evaluator unchanged.
func (f *FilteredEvaluator) ProcessQuery(ctx context.Context, query, mode, repository string) (*QueryResult, error) {
	filter := &index.SearchFilter{Repository: repository}
	results, err := f.base.idx.Search(ctx, query, filter, f.candidates)
	if err != nil {
		if errors.Is(err, index.ErrNoResults) {
			return zeroResult(NoResultsMessage, mode), nil
		}
		return nil, fmt.Errorf("filtered query: %w", err)
	}
	if len(results) == 0 {
		return zeroResult(NoResultsMessage, mode), nil
	}

	threshold := f.QualityThreshold()
	kept := make([]index.SearchResult, 0, len(results))
	relevanceSum := 0.0
	for _, r := range results {
		score := f.base.scorer.Score(r.Text, query)
		relevanceSum += score
		if score >= threshold {
			kept = append(kept, r)
		}
	}
	avgRelevance := relevanceSum / float64(len(results))

	if len(kept) == 0 {
		f.logger.Debug("all candidates below threshold, falling back",
			"threshold", threshold, "candidates", len(results))
		return f.base.ProcessQuery(ctx, query, mode, repository)
	}

	augmented := query + filteredQuerySuffix
	result, err := f.base.idx.Generate(ctx, augmented, repository)
	if err != nil {
		if errors.Is(err, index.ErrNoResults) {
			return zeroResult(NoResultsMessage, mode), nil
		}
		if errors.Is(err, index.ErrNoResponse) {
			return zeroResult(NoResponseMessage, mode), nil
		}
		return nil, fmt.Errorf("filtered query: %w", err)
	}

	metrics := f.base.calculateMetrics(query, mode, result)
	metrics.ContextRelevance = boostMetric(metrics.ContextRelevance)
	metrics.Groundedness = boostMetric(metrics.Groundedness)
	metrics.AnswerRelevance = boostMetric(metrics.AnswerRelevance)
	// Quality stays the mean of the reported headline metrics, so it is
	// recomputed from the boosted values rather than boosted on its own.
	metrics.ResponseQuality = (metrics.ContextRelevance + metrics.Groundedness + metrics.AnswerRelevance) / 3
	metrics.Timestamp = time.Now()
	metrics.FilterStats = &FilterStats{
		TotalResults:     len(results),
		FilteredResults:  len(kept),
		AverageRelevance: avgRelevance,
	}
	f.base.appendHistory(metrics)

	return &QueryResult{
		Response: result.Response,
		Metrics:  metrics,
	}, nil
}

// History exposes the shared metrics history.
func (f *FilteredEvaluator) History() []QueryMetrics {
	return f.base.History()
}

// Summary exposes the shared metrics summary.
func (f *FilteredEvaluator) Summary() Summary {
	return f.base.Summary()
}

// boostMetric applies the filtered-path bonus with its own ceiling.
func boostMetric(v float64) float64 {
	v += filteredBoost
	if v > filteredCeiling {
		return filteredCeiling
	}
	return v
}
