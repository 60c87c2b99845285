package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.CallsPerHour != 5000 {
		t.Errorf("CallsPerHour: expected 5000, got %d", cfg.CallsPerHour)
	}
	if cfg.BatchSize != 2 {
		t.Errorf("BatchSize: expected 2, got %d", cfg.BatchSize)
	}
	if cfg.QdrantPort != 6334 {
		t.Errorf("QdrantPort: expected 6334, got %d", cfg.QdrantPort)
	}
	if cfg.QualityThreshold != 0.45 {
		t.Errorf("QualityThreshold: expected 0.45, got %v", cfg.QualityThreshold)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codeexpert.yaml")
	yaml := "batchSize: 4\nqdrantHost: qdrant.internal\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BatchSize != 4 {
		t.Errorf("BatchSize: expected 4 from yaml, got %d", cfg.BatchSize)
	}
	if cfg.QdrantHost != "qdrant.internal" {
		t.Errorf("QdrantHost: expected qdrant.internal, got %q", cfg.QdrantHost)
	}
	// Untouched fields keep defaults.
	if cfg.SearchLimit != 10 {
		t.Errorf("SearchLimit: expected default 10, got %d", cfg.SearchLimit)
	}
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codeexpert.yaml")
	if err := os.WriteFile(path, []byte("batchSize: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("CODEEXPERT_BATCH_SIZE", "8")
	t.Setenv("CODEEXPERT_GITHUB_TOKEN", "ghp_test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BatchSize != 8 {
		t.Errorf("BatchSize: expected env override 8, got %d", cfg.BatchSize)
	}
	if cfg.GithubToken != "ghp_test" {
		t.Errorf("GithubToken: expected ghp_test, got %q", cfg.GithubToken)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/codeexpert.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("CODEEXPERT_BATCH_SIZE", "0")
	if _, err := Load(""); err == nil {
		t.Error("expected error for zero batch size")
	}

	t.Setenv("CODEEXPERT_BATCH_SIZE", "2")
	t.Setenv("CODEEXPERT_QUALITY_THRESHOLD", "1.5")
	if _, err := Load(""); err == nil {
		t.Error("expected error for out-of-range quality threshold")
	}
}
