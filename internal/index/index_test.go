package index

import (
	"strings"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

func TestBuildPrompt(t *testing.T) {
	chunks := []SearchResult{
		{Path: "app/main.py", Text: "File: app/main.py\n\ndef main(): ..."},
		{Path: "app/util.py", Text: "File: app/util.py\n\ndef helper(): ..."},
	}

	prompt := buildPrompt("how does startup work?", chunks)

	if !strings.Contains(prompt, "app/main.py") || !strings.Contains(prompt, "app/util.py") {
		t.Error("prompt missing chunk paths")
	}
	if !strings.Contains(prompt, "how does startup work?") {
		t.Error("prompt missing the question")
	}
	if !strings.Contains(prompt, "Chunk 1") || !strings.Contains(prompt, "Chunk 2") {
		t.Error("prompt missing chunk separators")
	}
}

func TestRepositoryPointIDStable(t *testing.T) {
	a := repositoryPointID("octo", "repo")
	b := repositoryPointID("octo", "repo")
	if a != b {
		t.Errorf("point ID not deterministic: %s vs %s", a, b)
	}
	if a == repositoryPointID("octo", "other") {
		t.Error("different repositories map to the same point ID")
	}
}

func TestRecordFromPayload(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	payload := qdrant.NewValueMap(map[string]any{
		"type":              pointTypeRepository,
		"owner":             "octo",
		"name":              "repo",
		"total_files":       12,
		"total_chunks":      87,
		"status":            "active",
		"last_processed_at": now.Format(time.RFC3339),
	})

	rec := recordFromPayload(payload)

	if rec.Owner != "octo" || rec.Name != "repo" {
		t.Errorf("owner/name mismatch: %s/%s", rec.Owner, rec.Name)
	}
	if rec.TotalFiles != 12 || rec.TotalChunks != 87 {
		t.Errorf("counts mismatch: files=%d chunks=%d", rec.TotalFiles, rec.TotalChunks)
	}
	if rec.Status != StatusActive {
		t.Errorf("status: expected active, got %q", rec.Status)
	}
	if !rec.LastProcessedAt.Equal(now) {
		t.Errorf("timestamp mismatch: %v vs %v", rec.LastProcessedAt, now)
	}
	if rec.FullName() != "octo/repo" {
		t.Errorf("FullName: got %q", rec.FullName())
	}
}
