// Package config provides configuration loading and structs for the lawsearch service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets in the config file.
const (
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvDatabaseURL  = "DATABASE_URL"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig selects and configures the content store.
type DatabaseConfig struct {
	// Driver is "postgres" (Supabase, pgvector) or "sqlite" (local development).
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	SQLitePath string `yaml:"sqlite_path"`
	// Debug logs every SQL query.
	Debug bool `yaml:"debug"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "openai", "ollama" or "mock".
	Provider            string        `yaml:"provider"`
	APIKey              string        `yaml:"api_key"`
	BaseURL             string        `yaml:"base_url"`
	Model               string        `yaml:"model"`
	Dimensions          int           `yaml:"dimensions"`
	BatchSize           int           `yaml:"batch_size"`
	MaxTokens           int           `yaml:"max_tokens"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	MaxSemanticResults  int           `yaml:"max_semantic_results"`
	MaxRetries          int           `yaml:"max_retries"`
	RequestsPerSecond   float64       `yaml:"requests_per_second"`
	Timeout             time.Duration `yaml:"timeout"`
	CacheSize           int           `yaml:"cache_size"`
}

// SearchConfig holds ranking and limit settings.
type SearchConfig struct {
	DefaultLimit          int     `yaml:"default_limit"`
	MaxLimit              int     `yaml:"max_limit"`
	RRFK                  float64 `yaml:"rrf_k"`
	DefaultSemanticWeight float64 `yaml:"default_semantic_weight"`
	KeywordCandidates     int     `yaml:"keyword_candidates"`
	// KeywordBackend is "store" (SQL substring match) or "bleve" (BM25 index).
	KeywordBackend    string        `yaml:"keyword_backend"`
	BleveIndexPath    string        `yaml:"bleve_index_path"`
	QueryEmbedTimeout time.Duration `yaml:"query_embed_timeout"`
}

// Load reads and parses the config file at path, expands paths, applies environment
// overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Database.SQLitePath = expandPath(cfg.Database.SQLitePath, configDir)
	cfg.Search.BleveIndexPath = expandPath(cfg.Search.BleveIndexPath, configDir)

	return &cfg, nil
}

// Default returns a configuration built from defaults and the environment only.
func Default() *Config {
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyEnv fills secrets left empty in the file from the environment.
func ApplyEnv(cfg *Config) {
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = os.Getenv(EnvDatabaseURL)
	}
}

// Save writes the config to path with the API key redacted.
func Save(path string, cfg *Config) error {
	out := *cfg
	if out.Embedding.APIKey != "" {
		out.Embedding.APIKey = ""
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
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
