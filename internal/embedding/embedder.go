// Package embedding turns legal text into fixed-dimension vectors through a hosted or local
// provider, with batching, retries, throttling and a query cache.
package embedding

import "context"

// Provider is a single call to an embedding backend. Implementations return one vector per
// input text in input order and classify failures with the package error sentinels.
type Provider interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Close() error
}

// Provider names accepted in configuration.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderMock   = "mock"
)
