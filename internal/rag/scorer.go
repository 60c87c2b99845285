// Package rag contains the query-time half of the system: heuristic
// relevance scoring, retrieval-augmented evaluators and their metrics.
package rag

import (
	"sort"
	"strings"
)

// ScoringConfig holds the hand-tuned scoring constants. The defaults are
// the reference values; they are parameters, not derived truths.
type ScoringConfig struct {
	QueryMatchWeight float64 // Weight of the query-term sub-score
	CodeWeight       float64 // Weight of the code-likelihood sub-score
	QualityWeight    float64 // Weight of the content-quality sub-score
	Floor            float64 // Lower clamp for every score
	Ceiling          float64 // Upper clamp for every score
	LongChunkTerms   int     // Term count above which the long-chunk bonus applies
	LongChunkBonus   float64 // Multiplicative bonus for long chunks
	TopK             int     // How many top scores feed context relevance
}

// DefaultScoringConfig returns the reference constants.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		QueryMatchWeight: 0.4,
		CodeWeight:       0.4,
		QualityWeight:    0.2,
		Floor:            0.3,
		Ceiling:          0.95,
		LongChunkTerms:   50,
		LongChunkBonus:   1.15,
		TopK:             5,
	}
}

// codeMarkers are structural hints that a chunk contains real code rather
// than prose or configuration noise.
var codeMarkers = []struct {
	marker string
	weight float64
}{
	{"def ", 0.15},
	{"func ", 0.15},
	{"class ", 0.15},
	{"type ", 0.1},
	{"import ", 0.1},
	{"from ", 0.05},
	{"return", 0.1},
	{"if ", 0.05},
	{"for ", 0.05},
	{"while ", 0.05},
	{"=>", 0.05},
	{"()", 0.05},
}

// qualityKeywords mark documentation-ish content worth surfacing for
// questions about purpose and usage.
var qualityKeywords = []string{
	"readme",
	"description",
	"purpose",
	"features",
	"usage",
	"example",
	"documentation",
}

// Scorer computes heuristic relevance for (chunk, query) pairs. Scores are
// always inside [Floor, Ceiling] so they stay comparable and never collapse
// downstream averages to 0 or 1.
type Scorer struct {
	cfg ScoringConfig
}

// NewScorer creates a Scorer. A zero-value config falls back to defaults.
func NewScorer(cfg ScoringConfig) *Scorer {
	if cfg.QueryMatchWeight == 0 && cfg.CodeWeight == 0 && cfg.QualityWeight == 0 {
		cfg = DefaultScoringConfig()
	}
	return &Scorer{cfg: cfg}
}

// Score rates one chunk against the query.
func (s *Scorer) Score(chunkText, query string) float64 {
	chunkLower := strings.ToLower(chunkText)
	terms := queryTerms(query)

	score := s.cfg.QueryMatchWeight*s.queryMatchScore(chunkLower, terms) +
		s.cfg.CodeWeight*s.codeScore(chunkLower) +
		s.cfg.QualityWeight*s.qualityScore(chunkLower)

	if len(strings.Fields(chunkText)) > s.cfg.LongChunkTerms {
		score *= s.cfg.LongChunkBonus
	}

	return s.clamp(score)
}

// ContextRelevance averages the TopK highest scores, rewarding a few
// excellent matches over many mediocre ones. Returns 0 for no candidates.
func (s *Scorer) ContextRelevance(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	k := min(s.cfg.TopK, len(sorted))
	sum := 0.0
	for _, v := range sorted[:k] {
		sum += v
	}
	return sum / float64(k)
}

// queryMatchScore averages per-term scores. Present terms are rewarded for
// early position and repetition; absent terms get the floor rather than
// zero, so scores degrade gracefully.
func (s *Scorer) queryMatchScore(chunkLower string, terms []string) float64 {
	if len(terms) == 0 {
		return s.cfg.Floor
	}

	total := 0.0
	for _, term := range terms {
		pos := strings.Index(chunkLower, term)
		if pos < 0 {
			total += s.cfg.Floor
			continue
		}

		positionFactor := 1.0 - float64(pos)/float64(len(chunkLower))
		occurrences := strings.Count(chunkLower, term)
		repeatBonus := float64(min(occurrences, 3)) * 0.1

		termScore := 0.5 + 0.3*positionFactor + repeatBonus
		if termScore > s.cfg.Ceiling {
			termScore = s.cfg.Ceiling
		}
		total += termScore
	}
	return total / float64(len(terms))
}

// codeScore starts at the floor and grows with structural code markers.
func (s *Scorer) codeScore(chunkLower string) float64 {
	score := s.cfg.Floor
	for _, m := range codeMarkers {
		if strings.Contains(chunkLower, m.marker) {
			score += m.weight
		}
	}
	if score > s.cfg.Ceiling {
		score = s.cfg.Ceiling
	}
	return score
}

// qualityScore starts at the floor and grows with documentation keywords.
func (s *Scorer) qualityScore(chunkLower string) float64 {
	score := s.cfg.Floor
	for _, kw := range qualityKeywords {
		if strings.Contains(chunkLower, kw) {
			score += 0.15
		}
	}
	if score > s.cfg.Ceiling {
		score = s.cfg.Ceiling
	}
	return score
}

func (s *Scorer) clamp(v float64) float64 {
	if v < s.cfg.Floor {
		return s.cfg.Floor
	}
	if v > s.cfg.Ceiling {
		return s.cfg.Ceiling
	}
	return v
}

// queryTerms lowercases and tokenizes a query, dropping one-character
// tokens.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}
