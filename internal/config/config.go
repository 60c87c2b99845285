// Package config provides the process-wide configuration for Code Expert.
// Configuration is loaded once at startup and passed into component
// constructors; no package reads environment variables on its own.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CODEEXPERT"

// Config holds all settings for the ingestion and query components.
type Config struct {
	// GitHub
	GithubToken string `yaml:"githubToken" envconfig:"GITHUB_TOKEN"`
	// CallsPerHour bounds outbound GitHub API calls in a rolling hour.
	CallsPerHour int `yaml:"callsPerHour" split_words:"true"`

	// OpenAI
	OpenAIKey      string `yaml:"openaiApiKey" envconfig:"OPENAI_API_KEY"`
	EmbeddingModel string `yaml:"embeddingModel" split_words:"true"`
	ChatModel      string `yaml:"chatModel" split_words:"true"`

	// Qdrant
	QdrantHost string `yaml:"qdrantHost" split_words:"true"`
	QdrantPort int    `yaml:"qdrantPort" split_words:"true"`

	// Ingestion
	BatchSize int `yaml:"batchSize" split_words:"true"`

	// Query
	SearchLimit      int     `yaml:"searchLimit" split_words:"true"`
	QualityThreshold float64 `yaml:"qualityThreshold" split_words:"true"`

	LogLevel string `yaml:"logLevel" split_words:"true"`
}

// Load builds a Config with precedence defaults < YAML file < environment.
// configPath may be empty; CODEEXPERT_CONFIG or ./codeexpert.yaml is tried
// before falling back to defaults plus environment.
func Load(configPath string) (Config, error) {
	cfg := defaults()

	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else if fileExists("codeexpert.yaml") {
			path = "codeexpert.yaml"
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("env override: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		CallsPerHour:     5000,
		EmbeddingModel:   "text-embedding-3-small",
		ChatModel:        "gpt-4o",
		QdrantHost:       "localhost",
		QdrantPort:       6334,
		BatchSize:        2,
		SearchLimit:      10,
		QualityThreshold: 0.45,
		LogLevel:         "info",
	}
}

func (c *Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.CallsPerHour <= 0 {
		return fmt.Errorf("calls per hour must be positive, got %d", c.CallsPerHour)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("quality threshold must be in [0,1], got %v", c.QualityThreshold)
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	return nil
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
