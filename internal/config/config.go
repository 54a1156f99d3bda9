// Package config provides configuration loading and structs for the news agent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is loaded once at
// startup and passed into each component at construction.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Feeds     []FeedConfig    `yaml:"feeds"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and derived indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
}

// EmbeddingConfig holds embedding boundary settings.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// LLMConfig holds LLM boundary settings (model and temperature are
// configuration-level, not per-request).
type LLMConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Timeout returns the LLM call timeout.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	Workers            int `yaml:"workers"`
	MaxArticlesPerRun  int `yaml:"max_articles_per_run"`
	FeedTimeoutSeconds int `yaml:"feed_timeout_seconds"`
	RunTimeoutSeconds  int `yaml:"run_timeout_seconds"`
	MinContentLength   int `yaml:"min_content_length"`
	BackgroundRuns     int `yaml:"background_runs"`
}

// FeedTimeout returns the per-feed fetch timeout.
func (c *IngestConfig) FeedTimeout() time.Duration {
	return time.Duration(c.FeedTimeoutSeconds) * time.Second
}

// RunTimeout returns the wall-clock bound for a whole ingestion run.
func (c *IngestConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	DefaultLimit            int `yaml:"default_limit"`
	MaxLimit                int `yaml:"max_limit"`
	SnippetLength           int `yaml:"snippet_length"`
	HighlightTimeoutSeconds int `yaml:"highlight_timeout_seconds"`
}

// HighlightTimeout returns the timeout for one AI highlight call.
func (c *SearchConfig) HighlightTimeout() time.Duration {
	return time.Duration(c.HighlightTimeoutSeconds) * time.Second
}

// FeedConfig is one configured RSS feed.
type FeedConfig struct {
	Name    string   `yaml:"name"`
	URL     string   `yaml:"url"`
	Enabled *bool    `yaml:"enabled"`
	Tags    []string `yaml:"tags"`
}

// IsEnabled returns whether the feed is enabled; defaults to true when unset.
func (f *FeedConfig) IsEnabled() bool {
	if f.Enabled != nil {
		return *f.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
