package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvDatabaseURL, "")
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
embedding:
  provider: mock
  dimensions: 64
  timeout: 5s
search:
  rrf_k: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Embedding.Provider != "mock" || cfg.Embedding.Dimensions != 64 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Embedding.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Embedding.Timeout)
	}
	if cfg.Search.RRFK != 30 {
		t.Errorf("rrf_k = %v, want 30", cfg.Search.RRFK)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite without a DSN", cfg.Database.Driver)
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestLoad_envOverrides(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "sk-from-environment-0123456789")
	t.Setenv(EnvDatabaseURL, "postgres://u:p@localhost:5432/law")
	path := writeConfig(t, "debug: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.APIKey != "sk-from-environment-0123456789" {
		t.Errorf("api key not taken from environment: %q", cfg.Embedding.APIKey)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres when DATABASE_URL is set", cfg.Database.Driver)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_fileKeyWinsOverEnv(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "sk-env")
	path := writeConfig(t, "embedding:\n  api_key: sk-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.APIKey != "sk-file" {
		t.Errorf("api key = %q, want sk-file", cfg.Embedding.APIKey)
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
database:
  sqlite_path: "./data/law.db"
search:
  bleve_index_path: "./data/kw.bleve"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "law.db"); cfg.Database.SQLitePath != want {
		t.Errorf("sqlite_path = %q, want %q", cfg.Database.SQLitePath, want)
	}
	if want := filepath.Join(dir, "data", "kw.bleve"); cfg.Search.BleveIndexPath != want {
		t.Errorf("bleve_index_path = %q, want %q", cfg.Search.BleveIndexPath, want)
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"model", cfg.Embedding.Model, "text-embedding-3-small"},
		{"dimensions", cfg.Embedding.Dimensions, 1536},
		{"batch size", cfg.Embedding.BatchSize, 100},
		{"max tokens", cfg.Embedding.MaxTokens, 8191},
		{"threshold", cfg.Embedding.SimilarityThreshold, 0.3},
		{"max semantic", cfg.Embedding.MaxSemanticResults, 50},
		{"default limit", cfg.Search.DefaultLimit, 10},
		{"max limit", cfg.Search.MaxLimit, 50},
		{"rrf k", cfg.Search.RRFK, 60.0},
		{"weight", cfg.Search.DefaultSemanticWeight, 0.6},
		{"keyword backend", cfg.Search.KeywordBackend, "store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestApplyDefaults_keepsSetValues(t *testing.T) {
	cfg := Config{Embedding: EmbeddingConfig{BatchSize: 7}, Search: SearchConfig{RRFK: 10}}
	ApplyDefaults(&cfg)
	if cfg.Embedding.BatchSize != 7 {
		t.Errorf("batch size overwritten: %d", cfg.Embedding.BatchSize)
	}
	if cfg.Search.RRFK != 10 {
		t.Errorf("rrf k overwritten: %v", cfg.Search.RRFK)
	}
}

func TestSave_redactsAPIKey(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")
	cfg := Default()
	cfg.Embedding.APIKey = "sk-secret"
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Embedding.APIKey != "" {
		t.Errorf("api key persisted: %q", loaded.Embedding.APIKey)
	}
	if cfg.Embedding.APIKey != "sk-secret" {
		t.Error("Save must not mutate the caller's config")
	}
}
