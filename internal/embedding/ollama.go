package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaProvider embeds text with a local Ollama server through langchaingo.
type OllamaProvider struct {
	embedder *embeddings.EmbedderImpl
}

// NewOllamaProvider connects to the Ollama server at serverURL using model.
func NewOllamaProvider(serverURL, model string) (*OllamaProvider, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama client: %v", ErrConfigurationInvalid, err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("%w: ollama embedder: %v", ErrConfigurationInvalid, err)
	}
	return &OllamaProvider{embedder: embedder}, nil
}

// CreateEmbeddings embeds texts in input order.
func (p *OllamaProvider) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Kind: ErrProviderUnavailable, Message: err.Error()}
	}
	return vectors, nil
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return ProviderOllama
}

// Close is a no-op; the langchaingo client holds no resources.
func (p *OllamaProvider) Close() error {
	return nil
}
