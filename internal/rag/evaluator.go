package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bull/code-expert/internal/index"
)

// User-visible outcomes for the expected failure modes. Retrieval or
// generation coming up empty is a normal result, never an exception.
const (
	NoResultsMessage  = "No relevant code found for your query."
	NoResponseMessage = "I couldn't generate a response. Please try again."
)

const metricFloor = 0.3
const metricCeiling = 0.95

// explanationMarkers signal explanatory language in a response.
var explanationMarkers = []string{
	"because",
	"therefore",
	"this means",
	"so that",
	"in order to",
	"which allows",
}

// technicalTerms are code-referencing words counted for groundedness.
var technicalTerms = []string{
	"function",
	"class",
	"method",
	"import",
	"return",
	"variable",
	"parameter",
	"module",
	"struct",
	"interface",
	"file",
}

// QueryResult pairs the generated response with its evaluation metrics.
type QueryResult struct {
	Response string
	Metrics  QueryMetrics
}

// Evaluator runs the base retrieval → generation → metrics path and keeps an
// append-only metrics history for the life of the process.
type Evaluator struct {
	idx    index.SearchIndex
	scorer *Scorer
	logger *slog.Logger

	mu      sync.Mutex
	history []QueryMetrics
}

// NewEvaluator creates a base evaluator over the given search index.
func NewEvaluator(idx index.SearchIndex, scorer *Scorer, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if scorer == nil {
		scorer = NewScorer(DefaultScoringConfig())
	}
	return &Evaluator{
		idx:    idx,
		scorer: scorer,
		logger: logger,
	}
}

// ProcessQuery generates an answer for query and evaluates it. Empty
// retrieval/generation returns a fixed message with all-zero metrics; the
// 0.3 floor applies only to computed metrics. Only genuinely exceptional
// backend failures return an error.
func (e *Evaluator) ProcessQuery(ctx context.Context, query, mode, repository string) (*QueryResult, error) {
	e.logger.Debug("processing query", "mode", mode, "repository", repository)

	result, err := e.idx.Generate(ctx, query, repository)
	if err != nil {
		if errors.Is(err, index.ErrNoResults) {
			return zeroResult(NoResultsMessage, mode), nil
		}
		if errors.Is(err, index.ErrNoResponse) {
			return zeroResult(NoResponseMessage, mode), nil
		}
		return nil, fmt.Errorf("process query: %w", err)
	}

	metrics := e.calculateMetrics(query, mode, result)
	e.appendHistory(metrics)

	return &QueryResult{
		Response: result.Response,
		Metrics:  metrics,
	}, nil
}

// History returns a copy of the metrics history.
func (e *Evaluator) History() []QueryMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]QueryMetrics, len(e.history))
	copy(out, e.history)
	return out
}

// Summary averages the headline metrics over the history.
func (e *Evaluator) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return summarize(e.history)
}

func (e *Evaluator) appendHistory(m QueryMetrics) {
	e.mu.Lock()
	e.history = append(e.history, m)
	e.mu.Unlock()
	e.logger.Info("metrics recorded",
		"mode", m.Mode,
		"context_relevance", m.ContextRelevance,
		"groundedness", m.Groundedness,
		"answer_relevance", m.AnswerRelevance,
	)
}

// calculateMetrics derives the headline metrics from the response and the
// chunks actually used for generation.
func (e *Evaluator) calculateMetrics(query, mode string, result *index.GenerateResult) QueryMetrics {
	scores := make([]float64, len(result.UsedChunks))
	for i, c := range result.UsedChunks {
		scores[i] = e.scorer.Score(c.Text, query)
	}

	contextRelevance := clampMetric(e.scorer.ContextRelevance(scores))
	groundedness := clampMetric(groundednessScore(result.Response))
	answerRelevance := clampMetric(answerRelevanceScore(query, result.Response))
	quality := clampMetric((contextRelevance + groundedness + answerRelevance) / 3)

	return QueryMetrics{
		Mode:             mode,
		ContextRelevance: contextRelevance,
		Groundedness:     groundedness,
		AnswerRelevance:  answerRelevance,
		ResponseQuality:  quality,
		Timestamp:        time.Now(),
		QueryLength:      len(strings.Fields(query)),
		ResponseLength:   len(strings.Fields(result.Response)),
		HasCode:          strings.Contains(result.Response, "```"),
		ChunkCount:       len(result.UsedChunks),
	}
}

// groundednessScore estimates how much the response leans on actual code:
// fenced code blocks, technical-term density (normalized against a target
// of 4), and explanatory language.
func groundednessScore(response string) float64 {
	lower := strings.ToLower(response)

	codeBlock := 0.0
	if strings.Contains(response, "```") {
		codeBlock = 1.0
	}

	techCount := 0
	for _, term := range technicalTerms {
		techCount += strings.Count(lower, term)
	}
	techDensity := float64(techCount) / 4.0
	if techDensity > 1 {
		techDensity = 1
	}

	explanation := 0.0
	if containsAny(lower, explanationMarkers) {
		explanation = 1.0
	}

	score := 0.4*codeBlock + 0.4*techDensity + 0.2*explanation
	if score > 1 {
		score = 1
	}
	return score
}

// answerRelevanceScore combines query/response term overlap with a
// structure score rewarding code, explanations, technical density and
// adequate length.
func answerRelevanceScore(query, response string) float64 {
	overlap := termOverlap(query, response)
	structure := structureScore(response)
	return 0.6*overlap + 0.4*structure
}

func termOverlap(query, response string) float64 {
	qTerms := queryTerms(query)
	if len(qTerms) == 0 {
		return 0
	}
	respLower := strings.ToLower(response)
	matched := 0
	for _, t := range qTerms {
		if strings.Contains(respLower, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(qTerms))
}

func structureScore(response string) float64 {
	lower := strings.ToLower(response)
	score := 0.0
	if strings.Contains(response, "```") {
		score += 0.3
	}
	if containsAny(lower, explanationMarkers) {
		score += 0.3
	}
	if countAny(lower, technicalTerms) >= 3 {
		score += 0.2
	}
	if len(strings.Fields(response)) >= 50 {
		score += 0.2
	}
	return score
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func countAny(s string, subs []string) int {
	n := 0
	for _, sub := range subs {
		n += strings.Count(s, sub)
	}
	return n
}

func clampMetric(v float64) float64 {
	if v < metricFloor {
		return metricFloor
	}
	if v > metricCeiling {
		return metricCeiling
	}
	return v
}

// zeroResult is the explicit zero-metric shortcut for empty outcomes.
func zeroResult(message, mode string) *QueryResult {
	return &QueryResult{
		Response: message,
		Metrics: QueryMetrics{
			Mode:      mode,
			Timestamp: time.Now(),
		},
	}
}
