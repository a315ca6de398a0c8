package embedding

import (
	"fmt"
	"strings"

	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
)

// MinAPIKeyLength is the shortest credential accepted as plausible.
const MinAPIKeyLength = 20

// Validation is the outcome of ValidateConfig.
type Validation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Err returns the validation failure as an ErrConfigurationInvalid error, or nil.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, v.Error)
}

func invalid(format string, args ...any) Validation {
	return Validation{Error: fmt.Sprintf(format, args...)}
}

// ValidateConfig checks the embedding configuration without touching the network.
func ValidateConfig(cfg config.EmbeddingConfig) Validation {
	switch cfg.Provider {
	case ProviderOpenAI:
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return invalid("api key is not set")
		}
		if len(key) < MinAPIKeyLength {
			return invalid("api key is too short")
		}
	case ProviderOllama:
		if cfg.BaseURL == "" {
			return invalid("base url is required for %s", cfg.Provider)
		}
	case ProviderMock:
	default:
		return invalid("unknown provider %q", cfg.Provider)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return invalid("model is not set")
	}
	if cfg.Dimensions <= 0 {
		return invalid("dimensions must be positive")
	}
	if cfg.BatchSize <= 0 {
		return invalid("batch size must be positive")
	}
	return Validation{Valid: true}
}
