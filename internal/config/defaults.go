package config

import "os"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/db/articles.db"
	}
	if cfg.Storage.VectorIndexPath == "" {
		cfg.Storage.VectorIndexPath = "./data/indices/vectors.bin"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "./data/indices/bleve"
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4000
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 5
	}
	if cfg.Ingest.FeedTimeoutSeconds == 0 {
		cfg.Ingest.FeedTimeoutSeconds = 30
	}
	if cfg.Ingest.RunTimeoutSeconds == 0 {
		cfg.Ingest.RunTimeoutSeconds = 300
	}
	if cfg.Ingest.MinContentLength == 0 {
		cfg.Ingest.MinContentLength = 50
	}
	if cfg.Ingest.BackgroundRuns == 0 {
		cfg.Ingest.BackgroundRuns = 2
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 50
	}
	if cfg.Search.SnippetLength == 0 {
		cfg.Search.SnippetLength = 200
	}
	if cfg.Search.HighlightTimeoutSeconds == 0 {
		cfg.Search.HighlightTimeoutSeconds = 10
	}
}
