package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
)

// NewProvider builds the provider named in cfg. It does not validate credentials; call
// ValidateConfig for that.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions, cfg.Timeout), nil
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderMock:
		return NewMockProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrConfigurationInvalid, cfg.Provider)
	}
}

// New builds a Generator for the provider named in cfg.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (*Generator, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return NewGenerator(p, cfg, WithLogger(logger))
}
