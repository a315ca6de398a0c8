package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Database.Driver == "" {
		if cfg.Database.DSN != "" {
			cfg.Database.Driver = "postgres"
		} else {
			cfg.Database.Driver = "sqlite"
		}
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "./data/lawsearch.db"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.BaseURL == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.BaseURL = "https://api.openai.com/v1"
		case "ollama":
			cfg.Embedding.BaseURL = "http://localhost:11434"
		}
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 8191
	}
	if cfg.Embedding.SimilarityThreshold == 0 {
		cfg.Embedding.SimilarityThreshold = 0.3
	}
	if cfg.Embedding.MaxSemanticResults == 0 {
		cfg.Embedding.MaxSemanticResults = 50
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 50
	}
	if cfg.Search.RRFK == 0 {
		cfg.Search.RRFK = 60
	}
	if cfg.Search.DefaultSemanticWeight == 0 {
		cfg.Search.DefaultSemanticWeight = 0.6
	}
	if cfg.Search.KeywordCandidates == 0 {
		cfg.Search.KeywordCandidates = 50
	}
	if cfg.Search.KeywordBackend == "" {
		cfg.Search.KeywordBackend = "store"
	}
	if cfg.Search.BleveIndexPath == "" {
		cfg.Search.BleveIndexPath = "./data/keyword.bleve"
	}
	if cfg.Search.QueryEmbedTimeout == 0 {
		cfg.Search.QueryEmbedTimeout = 5 * time.Second
	}
}
