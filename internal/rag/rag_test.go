package rag

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/bull/code-expert/internal/index"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeIndex is a scripted SearchIndex for exercising the evaluators.
type fakeIndex struct {
	searchResults []index.SearchResult
	searchErr     error
	generated     *index.GenerateResult
	generateErr   error

	searchCalls   int
	generateCalls int
	lastQuery     string
}

func (f *fakeIndex) Store(ctx context.Context, repository, path, language string, texts []string) error {
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, query string, filter *index.SearchFilter, limit int) ([]index.SearchResult, error) {
	f.searchCalls++
	return f.searchResults, f.searchErr
}

func (f *fakeIndex) Generate(ctx context.Context, query, repository string) (*index.GenerateResult, error) {
	f.generateCalls++
	f.lastQuery = query
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return f.generated, nil
}

func (f *fakeIndex) UpsertRepository(ctx context.Context, rec *index.RepositoryRecord) error {
	return nil
}

func (f *fakeIndex) RepositoryStats(ctx context.Context, repository string) (*index.RepositoryStats, error) {
	return &index.RepositoryStats{}, nil
}

func (f *fakeIndex) ListProcessedRepositories(ctx context.Context) ([]index.RepositoryRecord, error) {
	return nil, nil
}

func (f *fakeIndex) ArchiveRepository(ctx context.Context, owner, name string) error {
	return nil
}

func (f *fakeIndex) Close() error { return nil }

var goodResponse = `The ingestion pipeline lives in the process function. Because files are
fetched in batches, each batch completes before the next starts. This means
a failed file never blocks its siblings.

` + "```go\nfunc process(ctx context.Context) error { return nil }\n```" + `

The function returns an error only when every file fails, so partial
success is still reported as success. Each parameter is validated first.`

func codeChunks(n int) []index.SearchResult {
	out := make([]index.SearchResult, n)
	for i := range out {
		out[i] = index.SearchResult{
			Text: "File: internal/ingest/pipeline.go\n\nfunc process(ctx context.Context) error {\n\treturn nil\n}",
			Path: "internal/ingest/pipeline.go",
		}
	}
	return out
}

func TestScoreBounds(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())
	chunks := []string{
		"",
		"x",
		"File: a.go\n\nfunc main() { import return class struct interface def }",
		strings.Repeat("function class method import return example usage ", 40),
	}
	for _, c := range chunks {
		got := s.Score(c, "how does the ingestion pipeline process files")
		if got < 0.3 || got > 0.95 {
			t.Errorf("Score(%.20q) = %v, want within [0.3, 0.95]", c, got)
		}
	}
}

func TestContextRelevanceTopK(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	if got := s.ContextRelevance(nil); got != 0 {
		t.Errorf("ContextRelevance(nil) = %v, want 0", got)
	}

	// Only the 5 highest of 7 scores should count.
	scores := []float64{0.9, 0.9, 0.9, 0.9, 0.9, 0.3, 0.3}
	got := s.ContextRelevance(scores)
	if got != 0.9 {
		t.Errorf("ContextRelevance = %v, want 0.9", got)
	}

	// Fewer scores than TopK averages what exists.
	got = s.ContextRelevance([]float64{0.4, 0.8})
	if want := 0.6; got < want-1e-9 || got > want+1e-9 {
		t.Errorf("ContextRelevance = %v, want %v", got, want)
	}
}

func TestProcessQueryNoResults(t *testing.T) {
	idx := &fakeIndex{generateErr: index.ErrNoResults}
	ev := NewEvaluator(idx, nil, discardLogger())

	res, err := ev.ProcessQuery(context.Background(), "anything", "base", "o/r")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if res.Response != NoResultsMessage {
		t.Errorf("Response = %q, want %q", res.Response, NoResultsMessage)
	}
	m := res.Metrics
	if m.ContextRelevance != 0 || m.Groundedness != 0 || m.AnswerRelevance != 0 || m.ResponseQuality != 0 {
		t.Errorf("empty-result metrics not zero: %+v", m)
	}
	if len(ev.History()) != 0 {
		t.Errorf("empty result must not be recorded, history has %d entries", len(ev.History()))
	}
}

func TestProcessQueryNoResponse(t *testing.T) {
	idx := &fakeIndex{generateErr: index.ErrNoResponse}
	ev := NewEvaluator(idx, nil, discardLogger())

	res, err := ev.ProcessQuery(context.Background(), "anything", "base", "o/r")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if res.Response != NoResponseMessage {
		t.Errorf("Response = %q, want %q", res.Response, NoResponseMessage)
	}
}

func TestProcessQueryRecordsMetrics(t *testing.T) {
	idx := &fakeIndex{generated: &index.GenerateResult{
		Response:   goodResponse,
		UsedChunks: codeChunks(3),
		Model:      "gpt-4o",
	}}
	ev := NewEvaluator(idx, nil, discardLogger())

	res, err := ev.ProcessQuery(context.Background(), "how does the pipeline process files", "base", "o/r")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	m := res.Metrics
	for name, v := range map[string]float64{
		"ContextRelevance": m.ContextRelevance,
		"Groundedness":     m.Groundedness,
		"AnswerRelevance":  m.AnswerRelevance,
		"ResponseQuality":  m.ResponseQuality,
	} {
		if v < 0.3 || v > 0.95 {
			t.Errorf("%s = %v, want within [0.3, 0.95]", name, v)
		}
	}
	if !m.HasCode {
		t.Error("HasCode = false for a response with a code block")
	}
	if m.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d, want 3", m.ChunkCount)
	}
	if len(ev.History()) != 1 {
		t.Fatalf("history length = %d, want 1", len(ev.History()))
	}
}

func TestFilteredFallbackMatchesBase(t *testing.T) {
	generated := &index.GenerateResult{
		Response:   goodResponse,
		UsedChunks: codeChunks(2),
	}

	// Candidates that score below any reasonable threshold.
	weak := []index.SearchResult{
		{Text: "File: README.md\n\nzzz qqq vvv kkk www yyy nnn mmm ppp"},
	}

	baseIdx := &fakeIndex{generated: generated}
	base := NewEvaluator(baseIdx, nil, discardLogger())
	baseRes, err := base.ProcessQuery(context.Background(), "how does the pipeline process files", "base", "o/r")
	if err != nil {
		t.Fatalf("base ProcessQuery: %v", err)
	}

	filtIdx := &fakeIndex{searchResults: weak, generated: generated}
	filt := NewFilteredEvaluator(NewEvaluator(filtIdx, nil, discardLogger()), 10, discardLogger())
	filt.SetQualityThreshold(0.99)

	filtRes, err := filt.ProcessQuery(context.Background(), "how does the pipeline process files", "filtered", "o/r")
	if err != nil {
		t.Fatalf("filtered ProcessQuery: %v", err)
	}

	// All candidates discarded: the fallback must produce the base answer
	// with base metrics, no boost, no filter stats.
	if filtRes.Response != baseRes.Response {
		t.Errorf("fallback response %q differs from base %q", filtRes.Response, baseRes.Response)
	}
	if filtRes.Metrics.ResponseQuality != baseRes.Metrics.ResponseQuality {
		t.Errorf("fallback quality %v differs from base %v",
			filtRes.Metrics.ResponseQuality, baseRes.Metrics.ResponseQuality)
	}
	if filtRes.Metrics.FilterStats != nil {
		t.Error("fallback must not carry filter stats")
	}
	// The augmented query is only used when filtering keeps something.
	if strings.Contains(filtIdx.lastQuery, "code snippets") {
		t.Errorf("fallback used augmented query: %q", filtIdx.lastQuery)
	}
}

func TestFilteredBoostAndStats(t *testing.T) {
	idx := &fakeIndex{
		searchResults: codeChunks(4),
		generated: &index.GenerateResult{
			Response:   goodResponse,
			UsedChunks: codeChunks(4),
		},
	}
	base := NewEvaluator(idx, nil, discardLogger())
	filt := NewFilteredEvaluator(base, 10, discardLogger())
	filt.SetQualityThreshold(0.0)

	res, err := filt.ProcessQuery(context.Background(), "how does the pipeline process files", "filtered", "o/r")
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	m := res.Metrics
	if m.FilterStats == nil {
		t.Fatal("FilterStats = nil, want populated")
	}
	if m.FilterStats.TotalResults != 4 || m.FilterStats.FilteredResults != 4 {
		t.Errorf("FilterStats = %+v, want 4 total, 4 kept", m.FilterStats)
	}
	for name, v := range map[string]float64{
		"ContextRelevance": m.ContextRelevance,
		"Groundedness":     m.Groundedness,
		"AnswerRelevance":  m.AnswerRelevance,
		"ResponseQuality":  m.ResponseQuality,
	} {
		if v > 0.98 {
			t.Errorf("%s = %v, want capped at 0.98", name, v)
		}
	}
	// Quality is the mean of the headline metrics as reported, boosts
	// included.
	wantQuality := (m.ContextRelevance + m.Groundedness + m.AnswerRelevance) / 3
	if diff := m.ResponseQuality - wantQuality; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ResponseQuality = %v, want mean of reported metrics %v", m.ResponseQuality, wantQuality)
	}
	if !strings.Contains(idx.lastQuery, "code snippets") {
		t.Errorf("generation query not augmented: %q", idx.lastQuery)
	}
	if len(base.History()) != 1 {
		t.Errorf("history length = %d, want 1", len(base.History()))
	}
}

func TestBoostMetricCap(t *testing.T) {
	if got := boostMetric(0.95); got != 0.98 {
		t.Errorf("boostMetric(0.95) = %v, want 0.98", got)
	}
	if got := boostMetric(0.5); got != 0.55 {
		t.Errorf("boostMetric(0.5) = %v, want 0.55", got)
	}
}

func TestSummaryAverages(t *testing.T) {
	idx := &fakeIndex{generated: &index.GenerateResult{
		Response:   goodResponse,
		UsedChunks: codeChunks(2),
	}}
	ev := NewEvaluator(idx, nil, discardLogger())

	for i := 0; i < 3; i++ {
		if _, err := ev.ProcessQuery(context.Background(), "how does the pipeline process files", "base", "o/r"); err != nil {
			t.Fatalf("ProcessQuery: %v", err)
		}
	}
	sum := ev.Summary()
	if sum.Experiments != 3 {
		t.Errorf("Experiments = %d, want 3", sum.Experiments)
	}
	if sum.ResponseQuality < 0.3 || sum.ResponseQuality > 0.95 {
		t.Errorf("ResponseQuality = %v, want within [0.3, 0.95]", sum.ResponseQuality)
	}
}
