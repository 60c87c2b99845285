package rag

import "time"

// QueryMetrics is one evaluation record. Fixed fields rather than an open
// map; filter-specific extras live in the optional FilterStats.
type QueryMetrics struct {
	Mode             string
	ContextRelevance float64
	Groundedness     float64
	AnswerRelevance  float64
	ResponseQuality  float64
	Timestamp        time.Time
	QueryLength      int // Words in the query
	ResponseLength   int // Words in the response
	HasCode          bool
	ChunkCount       int
	FilterStats      *FilterStats // Set only by the filtered evaluator
}

// FilterStats describes one filtering pass.
type FilterStats struct {
	TotalResults     int
	FilteredResults  int
	AverageRelevance float64
}

// Summary averages headline metrics over a history.
type Summary struct {
	Experiments      int
	ContextRelevance float64
	Groundedness     float64
	AnswerRelevance  float64
	ResponseQuality  float64
}

func summarize(history []QueryMetrics) Summary {
	s := Summary{Experiments: len(history)}
	if len(history) == 0 {
		return s
	}
	for _, m := range history {
		s.ContextRelevance += m.ContextRelevance
		s.Groundedness += m.Groundedness
		s.AnswerRelevance += m.AnswerRelevance
		s.ResponseQuality += m.ResponseQuality
	}
	n := float64(len(history))
	s.ContextRelevance /= n
	s.Groundedness /= n
	s.AnswerRelevance /= n
	s.ResponseQuality /= n
	return s
}
